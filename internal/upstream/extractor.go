package upstream

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"commerce-sync/internal/model"
)

// DefaultMinInterval is the minimum spacing between two page requests.
const DefaultMinInterval = 500 * time.Millisecond

// PageFetcher is the part of a Session the extractor needs.
type PageFetcher interface {
	FetchPage(ctx context.Context, entity model.EntityType, sinceID int64, limit int) ([]map[string]any, error)
}

// Page is one batch of raw records together with the cursor after it.
type Page struct {
	Records []map[string]any
	Cursor  model.SyncCursor
	Dropped int
}

// ExtractorOptions tune an Extractor. Zero values take defaults.
type ExtractorOptions struct {
	PageSize    int
	MinInterval time.Duration
}

// Extractor walks one entity type of one store in ascending id order,
// starting after a cursor. Pages are fetched lazily by Next.
//
// Records created upstream with an id below the cursor after the cursor has
// passed them are never returned; extraction only moves forward.
type Extractor struct {
	fetcher     PageFetcher
	cursor      model.SyncCursor
	pageSize    int
	minInterval time.Duration
	lastFetch   time.Time
	done        bool
	logger      *slog.Logger
}

// NewExtractor returns an extractor resuming after cursor.
func NewExtractor(fetcher PageFetcher, cursor model.SyncCursor, opts ExtractorOptions, logger *slog.Logger) *Extractor {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = model.DefaultPageSize
	}
	interval := opts.MinInterval
	if interval < 0 {
		interval = 0
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Extractor{
		fetcher:     fetcher,
		cursor:      cursor,
		pageSize:    pageSize,
		minInterval: interval,
		logger:      logger,
	}
}

// Cursor returns the cursor after the last page returned by Next.
func (e *Extractor) Cursor() model.SyncCursor {
	return e.cursor
}

// Next fetches the next page. It returns false once the upstream returns an
// empty page or stops making progress. After an error the extractor is spent.
func (e *Extractor) Next(ctx context.Context) (Page, bool, error) {
	if e.done {
		return Page{}, false, nil
	}

	if err := e.wait(ctx); err != nil {
		e.done = true
		return Page{}, false, err
	}

	raw, err := e.fetcher.FetchPage(ctx, e.cursor.Entity, e.cursor.LastID, e.pageSize)
	e.lastFetch = time.Now()
	if err != nil {
		e.done = true
		return Page{}, false, err
	}

	if len(raw) == 0 {
		e.done = true
		return Page{}, false, nil
	}

	page := Page{Records: make([]map[string]any, 0, len(raw))}
	next := e.cursor
	for _, rec := range raw {
		id, ok := RecordID(rec)
		if ok && id <= e.cursor.LastID {
			page.Dropped++
			continue
		}
		if ok {
			next.Advance(id)
		}
		page.Records = append(page.Records, rec)
	}

	if next.LastID == e.cursor.LastID {
		// No id moved the cursor, so asking again would return the same page.
		e.done = true
		if len(page.Records) == 0 {
			return Page{}, false, nil
		}
	}

	if page.Dropped > 0 {
		e.logger.Debug("dropped records at or below cursor",
			"entity", e.cursor.Entity, "cursor", e.cursor.LastID, "dropped", page.Dropped)
	}

	e.cursor = next
	page.Cursor = next
	return page, true, nil
}

func (e *Extractor) wait(ctx context.Context) error {
	if e.lastFetch.IsZero() || e.minInterval == 0 {
		return ctx.Err()
	}

	remaining := e.minInterval - time.Since(e.lastFetch)
	if remaining <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RecordID returns a raw record's numeric upstream id.
func RecordID(rec map[string]any) (int64, bool) {
	switch v := rec["id"].(type) {
	case json.Number:
		id, err := v.Int64()
		return id, err == nil
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		return id, err == nil
	}
	return 0, false
}
