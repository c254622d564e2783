package syncerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: KindNone},
		{name: "extraction", err: &ExtractionError{StoreID: "a", Entity: "orders", Status: 502}, want: KindExtraction},
		{name: "wrapped write", err: fmt.Errorf("orders: %w", &WriteError{Table: "orders", Statement: "merge", Err: errors.New("boom")}), want: KindWrite},
		{name: "configuration", err: &ConfigurationError{StoreID: "a", Msg: "missing endpoint"}, want: KindConfiguration},
		{name: "skip", err: &NormalizationSkip{Entity: "orders", Reason: "missing id"}, want: KindNormalization},
		{name: "busy", err: fmt.Errorf("store a: %w", ErrStoreBusy), want: KindBusy},
		{name: "plain", err: errors.New("something else"), want: KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&ExtractionError{Status: 503}))
	assert.True(t, Retryable(&ExtractionError{Status: 429}))
	assert.True(t, Retryable(&ExtractionError{Err: errors.New("connection reset")}))
	assert.False(t, Retryable(&ExtractionError{Status: 401, Auth: true}))
	assert.False(t, Retryable(&ExtractionError{Status: 404}))
	assert.True(t, Retryable(&WriteError{Table: "orders", Statement: "merge"}))
	assert.False(t, Retryable(&ConfigurationError{Msg: "bad"}))
}

func TestErrorMessages(t *testing.T) {
	err := &WriteError{Table: "orders", Statement: "stage", Err: errors.New("disk full")}
	assert.Equal(t, "write orders: stage failed: disk full", err.Error())

	cfg := &ConfigurationError{StoreID: "eu", Field: "api.endpoint", Msg: "is required"}
	assert.Equal(t, "store eu: api.endpoint: is required", cfg.Error())

	ext := &ExtractionError{StoreID: "eu", Entity: "customers", Status: 401, Auth: true}
	assert.Contains(t, ext.Error(), "authentication rejected")
}
