// Package upstream talks to a store's commerce-platform REST API.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"commerce-sync/internal/model"
	"commerce-sync/internal/retry"
	"commerce-sync/internal/syncerr"
)

const (
	// DefaultAPIVersion is used when a store profile leaves api_version empty.
	DefaultAPIVersion = "2024-01"

	// DefaultTimeout bounds a single page request.
	DefaultTimeout = 30 * time.Second

	accessTokenHeader = "X-Shopify-Access-Token"
	maxErrorBody      = 512
)

// Options tune a Session. Zero values take defaults.
type Options struct {
	Timeout   time.Duration
	Retry     retry.Policy
	Transport http.RoundTripper
}

// Session is an authenticated connection to one store's upstream API.
// It is owned by a single store pass and must not be shared.
type Session struct {
	store   model.StoreProfile
	baseURL string
	client  *http.Client
	retry   retry.Policy
	logger  *slog.Logger
}

// NewSession validates the store's API profile and returns a ready session.
func NewSession(store model.StoreProfile, opts Options, logger *slog.Logger) (*Session, error) {
	if store.API.AccessToken == "" {
		return nil, &syncerr.ConfigurationError{StoreID: store.ID, Field: "api.access_token", Msg: "is required"}
	}

	baseURL, err := BaseURL(store.API.Endpoint)
	if err != nil {
		return nil, &syncerr.ConfigurationError{StoreID: store.ID, Field: "api.endpoint", Msg: err.Error()}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		store:   store,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout, Transport: opts.Transport},
		retry:   opts.Retry,
		logger:  logger.With("component", "upstream", "store_id", store.ID),
	}, nil
}

// BaseURL turns a configured endpoint into a scheme-qualified base URL.
// A bare shop name gets the platform's hosted domain.
func BaseURL(endpoint string) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", fmt.Errorf("is required")
	}

	if !strings.Contains(endpoint, "://") {
		if !strings.Contains(endpoint, ".") {
			endpoint += ".myshopify.com"
		}
		endpoint = "https://" + endpoint
	}

	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid url %q", endpoint)
	}

	return strings.TrimRight(u.String(), "/"), nil
}

// Resource returns the upstream collection name for an entity type.
func Resource(entity model.EntityType) (string, error) {
	switch entity {
	case model.EntityCustomers:
		return "customers", nil
	case model.EntityOrders:
		return "orders", nil
	case model.EntityAbandonedCheckouts:
		return "checkouts", nil
	}
	return "", fmt.Errorf("entity type %q has no upstream collection", entity)
}

// FetchPage requests up to limit records of entity with ids greater than sinceID.
func (s *Session) FetchPage(ctx context.Context, entity model.EntityType, sinceID int64, limit int) ([]map[string]any, error) {
	resource, err := Resource(entity)
	if err != nil {
		return nil, err
	}

	var records []map[string]any
	err = retry.Do(ctx, s.retry, func(ctx context.Context) error {
		var fetchErr error
		records, fetchErr = s.fetch(ctx, entity, resource, sinceID, limit)
		if fetchErr != nil && syncerr.Retryable(fetchErr) {
			s.logger.Warn("page fetch failed", "entity", entity, "since_id", sinceID, "error", fetchErr)
		}
		return fetchErr
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (s *Session) fetch(ctx context.Context, entity model.EntityType, resource string, sinceID int64, limit int) ([]map[string]any, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if sinceID > 0 {
		q.Set("since_id", strconv.FormatInt(sinceID, 10))
	}
	if entity != model.EntityCustomers {
		q.Set("status", "any")
	}

	version := s.store.API.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}

	reqURL := fmt.Sprintf("%s/admin/api/%s/%s.json?%s", s.baseURL, version, resource, q.Encode())

	extractErr := func(status int, err error) error {
		return &syncerr.ExtractionError{
			StoreID: s.store.ID,
			Entity:  string(entity),
			Status:  status,
			Auth:    status == http.StatusUnauthorized || status == http.StatusForbidden,
			Err:     err,
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, extractErr(0, err)
	}
	req.Header.Set(accessTokenHeader, s.store.API.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, extractErr(0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, extractErr(resp.StatusCode, fmt.Errorf("upstream returned %s: %s", resp.Status, strings.TrimSpace(string(body))))
	}

	var envelope map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, extractErr(resp.StatusCode, fmt.Errorf("decode %s page: %w", resource, err))
	}

	records, err := decodeRecords(envelope[resource])
	if err != nil {
		return nil, extractErr(resp.StatusCode, fmt.Errorf("decode %s page: %w", resource, err))
	}

	s.logger.Debug("page fetched", "entity", entity, "since_id", sinceID, "count", len(records))
	return records, nil
}

func decodeRecords(raw json.RawMessage) ([]map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var records []map[string]any
	if err := dec.Decode(&records); err != nil {
		return nil, err
	}
	return records, nil
}

// Close releases idle connections held by the session.
func (s *Session) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
