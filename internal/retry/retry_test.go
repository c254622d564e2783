package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"commerce-sync/internal/syncerr"
)

func TestDoSingleAttemptByDefault(t *testing.T) {
	calls := 0
	err := Do(context.Background(), None, func(context.Context) error {
		calls++
		return &syncerr.ExtractionError{Status: 503}
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransientFailures(t *testing.T) {
	p := Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2}

	calls := 0
	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		if calls < 3 {
			return &syncerr.ExtractionError{Status: 502}
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentFailure(t *testing.T) {
	p := Policy{MaxAttempts: 5, InitialDelay: time.Millisecond}

	calls := 0
	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		return &syncerr.ExtractionError{Status: 401, Auth: true}
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoGivesUpWhenExhausted(t *testing.T) {
	p := Policy{MaxAttempts: 2, InitialDelay: time.Millisecond, Retryable: func(error) bool { return true }}

	calls := 0
	boom := errors.New("boom")
	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestDoHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := Policy{MaxAttempts: 10, InitialDelay: time.Hour}
	calls := 0
	err := Do(ctx, p, func(context.Context) error {
		calls++
		return &syncerr.ExtractionError{Status: 500}
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestNextDelayCapped(t *testing.T) {
	p := Policy{MaxAttempts: 10, InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 2}

	d, ok := p.NextDelay(0)
	assert.True(t, ok)
	assert.Equal(t, time.Second, d)

	d, ok = p.NextDelay(5)
	assert.True(t, ok)
	assert.Equal(t, 3*time.Second, d)

	_, ok = p.NextDelay(9)
	assert.False(t, ok)
}
