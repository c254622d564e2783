package syncerr

import (
	"errors"
	"fmt"
)

// Kind classifies a sync failure so callers can decide what to re-run.
type Kind string

const (
	KindNone          Kind = ""
	KindExtraction    Kind = "extraction"
	KindNormalization Kind = "normalization"
	KindWrite         Kind = "write"
	KindConfiguration Kind = "configuration"
	KindBusy          Kind = "busy"
	KindInternal      Kind = "internal"
)

// ErrStoreBusy is returned when another pass already holds a store's lock.
var ErrStoreBusy = errors.New("store is being synced by another pass")

// ExtractionError is a transport or authentication failure talking to the upstream API.
type ExtractionError struct {
	StoreID string
	Entity  string
	Status  int
	Auth    bool
	Err     error
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("extract %s for store %s", e.Entity, e.StoreID)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Auth {
		msg += " (authentication rejected)"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// NormalizationSkip marks a single raw record that could not be normalized.
// It never aborts a batch; callers count it and move on.
type NormalizationSkip struct {
	Entity string
	Reason string
}

func (e *NormalizationSkip) Error() string {
	return fmt.Sprintf("skip %s record: %s", e.Entity, e.Reason)
}

// WriteError is a staging or merge failure, naming the statement that failed.
type WriteError struct {
	Table     string
	Statement string
	Err       error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %s failed: %v", e.Table, e.Statement, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// ConfigurationError reports a missing or invalid store profile or table shape.
type ConfigurationError struct {
	StoreID string
	Field   string
	Msg     string
}

func (e *ConfigurationError) Error() string {
	switch {
	case e.StoreID != "" && e.Field != "":
		return fmt.Sprintf("store %s: %s: %s", e.StoreID, e.Field, e.Msg)
	case e.StoreID != "":
		return fmt.Sprintf("store %s: %s", e.StoreID, e.Msg)
	case e.Field != "":
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	return e.Msg
}

// KindOf returns the Kind of the first typed error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}

	var (
		extractErr *ExtractionError
		skipErr    *NormalizationSkip
		writeErr   *WriteError
		cfgErr     *ConfigurationError
	)

	switch {
	case errors.Is(err, ErrStoreBusy):
		return KindBusy
	case errors.As(err, &cfgErr):
		return KindConfiguration
	case errors.As(err, &extractErr):
		return KindExtraction
	case errors.As(err, &writeErr):
		return KindWrite
	case errors.As(err, &skipErr):
		return KindNormalization
	}
	return KindInternal
}

// Retryable reports whether err is a transient failure worth another attempt.
// Authentication and configuration problems never are.
func Retryable(err error) bool {
	var extractErr *ExtractionError
	if errors.As(err, &extractErr) {
		if extractErr.Auth {
			return false
		}
		return extractErr.Status == 0 || extractErr.Status == 429 || extractErr.Status >= 500
	}
	var writeErr *WriteError
	return errors.As(err, &writeErr)
}
