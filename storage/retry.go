// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// maxRetryDelay caps the exponential backoff between attempts.
const maxRetryDelay = 50 * time.Millisecond

// RetryPolicy bounds how often a conflicting transaction is replayed.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BaseDelay is the pause before the second attempt; it doubles after each retry.
	BaseDelay time.Duration
}

// DefaultRetryPolicy is used by backends that were not given a policy.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 20, BaseDelay: time.Millisecond}

// RetryOnConflict runs operation until it succeeds, fails with an error that
// retryable rejects, or the attempts run out. Exhausting the attempts on a
// retryable error yields ErrTransactionFailed wrapping the last error.
func RetryOnConflict(ctx context.Context, policy RetryPolicy, retryable func(error) bool, operation func() error) error {
	if policy.MaxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = operation()
		if lastErr == nil {
			if attempt > 1 {
				slog.Debug("transaction succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}

		slog.Debug("transaction conflicted, will retry", "attempt", attempt, "maxAttempts", policy.MaxAttempts, "error", lastErr)

		if attempt == policy.MaxAttempts {
			break
		}

		delay := policy.BaseDelay << (attempt - 1)
		if delay > maxRetryDelay || delay < 0 {
			delay = maxRetryDelay
		}
		delay = delay/2 + rand.N(delay/2+1)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w: %v", ErrTransactionFailed, lastErr)
}
