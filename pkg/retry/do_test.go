// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTemporary = errors.New("temporary error")

func TestDo(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		assert.NoError(t, Do(context.Background(), func(ctx context.Context) error { return nil }))
	})

	t.Run("succeeds after retries", func(t *testing.T) {
		attempts := 0
		err := Do(context.Background(), func(ctx context.Context) error {
			attempts++
			if attempts < 3 {
				return errTemporary
			}
			return nil
		}, WithMaxAttempts(3), WithBackoff(Fixed(time.Millisecond)))
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("max attempts", func(t *testing.T) {
		attempts := 0
		err := Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return errTemporary
		}, WithMaxAttempts(4), WithBackoff(Fixed(0)))
		assert.ErrorIs(t, err, errTemporary)
		assert.Equal(t, 4, attempts)
	})

	t.Run("retry if", func(t *testing.T) {
		permanent := errors.New("permanent")
		attempts := 0
		err := Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return permanent
		}, WithMaxAttempts(5), WithRetryIf(func(err error) bool {
			return !errors.Is(err, permanent)
		}))
		assert.ErrorIs(t, err, permanent)
		assert.Equal(t, 1, attempts)
	})

	t.Run("context errors are final", func(t *testing.T) {
		attempts := 0
		err := Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return context.DeadlineExceeded
		}, WithMaxAttempts(3))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 1, attempts)
	})
}

func TestDo_OnRetry(t *testing.T) {
	var seen []int
	var waits []time.Duration
	_ = Do(context.Background(), func(ctx context.Context) error {
		return errTemporary
	},
		WithMaxAttempts(3),
		WithBackoff(Exponential(time.Millisecond)),
		WithJitter(func(d time.Duration) time.Duration { return d / 2 }),
		WithOnRetry(func(attempt int, err error, wait time.Duration) {
			seen = append(seen, attempt)
			waits = append(waits, wait)
		}))
	assert.Equal(t, []int{1, 2}, seen)
	assert.Equal(t, []time.Duration{500 * time.Microsecond, time.Millisecond}, waits)
}

func TestDo_CancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	attempts := 0
	start := time.Now()
	err := Do(ctx, func(ctx context.Context) error {
		attempts++
		return errTemporary
	}, WithMaxAttempts(10), WithBackoff(Fixed(time.Second)))

	assert.ErrorIs(t, err, errTemporary)
	assert.Equal(t, 1, attempts)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestDo_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := Do(ctx, func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestExponential(t *testing.T) {
	b := Exponential(10*time.Millisecond, 50*time.Millisecond)
	for i, want := range []time.Duration{10, 20, 40, 50, 50} {
		assert.Equal(t, want*time.Millisecond, b(i), "attempt %d", i)
	}
	assert.Equal(t, 50*time.Millisecond, b(64))
}

func TestFullJitter(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := FullJitter(10 * time.Millisecond)
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.Less(t, d, 10*time.Millisecond)
	}
	assert.Zero(t, FullJitter(0))
}
