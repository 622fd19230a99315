package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConflict = errors.New("conflict")

func isConflict(err error) bool { return errors.Is(err, errConflict) }

func TestRetryOnConflict_SucceedsAfterConflicts(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), RetryPolicy{MaxAttempts: 5, BaseDelay: time.Microsecond}, isConflict, func() error {
		calls++
		if calls < 3 {
			return errConflict
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryOnConflict_DomainErrorIsNotRetried(t *testing.T) {
	domain := errors.New("book_not_available")
	calls := 0
	err := RetryOnConflict(context.Background(), DefaultRetryPolicy, isConflict, func() error {
		calls++
		return domain
	})
	assert.Equal(t, domain, err)
	assert.Equal(t, 1, calls)
}

func TestRetryOnConflict_Exhausted(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), RetryPolicy{MaxAttempts: 3}, isConflict, func() error {
		calls++
		return errConflict
	})
	assert.ErrorIs(t, err, ErrTransactionFailed)
	assert.Equal(t, 3, calls)
}

func TestRetryOnConflict_InvalidAttempts(t *testing.T) {
	err := RetryOnConflict(context.Background(), RetryPolicy{}, isConflict, func() error { return nil })
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
}

func TestRetryOnConflict_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := RetryOnConflict(ctx, DefaultRetryPolicy, isConflict, func() error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}
