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

// Package retry reruns a unit of work that failed with a retryable error.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// Func is one attempt. It must respect ctx.
type Func func(ctx context.Context) error

// Backoff returns the wait before retry number attempt (0 for the first retry).
type Backoff func(attempt int) time.Duration

// Jitter spreads a wait to avoid retry storms.
type Jitter func(time.Duration) time.Duration

// Fixed waits interval between attempts.
func Fixed(interval time.Duration) Backoff {
	return func(int) time.Duration { return interval }
}

// Exponential doubles base on each retry, capped at max when given.
func Exponential(base time.Duration, max ...time.Duration) Backoff {
	var limit time.Duration
	if len(max) > 0 {
		limit = max[0]
	}
	return func(attempt int) time.Duration {
		d := base << min(attempt, 30)
		if limit > 0 && (d > limit || d <= 0) {
			return limit
		}
		return d
	}
}

// FullJitter picks a wait in [0, d).
func FullJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(d)))
}

type policy struct {
	attempts int
	backoff  Backoff
	jitter   Jitter
	retryIf  func(error) bool
	onRetry  func(attempt int, err error, wait time.Duration)
}

// Option configures Do.
type Option func(*policy)

// WithMaxAttempts caps the attempts, the first one included. Default 3.
func WithMaxAttempts(n int) Option {
	return func(p *policy) {
		if n > 0 {
			p.attempts = n
		}
	}
}

// WithBackoff replaces the default 100ms fixed wait.
func WithBackoff(b Backoff) Option {
	return func(p *policy) {
		if b != nil {
			p.backoff = b
		}
	}
}

func WithJitter(j Jitter) Option {
	return func(p *policy) {
		if j != nil {
			p.jitter = j
		}
	}
}

// WithRetryIf limits retries to errors accepted by fn.
func WithRetryIf(fn func(error) bool) Option {
	return func(p *policy) {
		if fn != nil {
			p.retryIf = fn
		}
	}
}

// WithOnRetry is called before each wait; attempt starts from 1.
func WithOnRetry(fn func(attempt int, err error, wait time.Duration)) Option {
	return func(p *policy) {
		p.onRetry = fn
	}
}

// Do runs fn until it succeeds, returns a non-retryable error or runs out of
// attempts. Context errors are never retried, and a cancelled ctx ends the
// wait early with the last attempt's error.
func Do(ctx context.Context, fn Func, opts ...Option) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p := policy{
		attempts: 3,
		backoff:  Fixed(100 * time.Millisecond),
		retryIf:  func(error) bool { return true },
	}
	for _, opt := range opts {
		opt(&p)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt >= p.attempts || isContextError(err) || !p.retryIf(err) {
			return err
		}

		wait := p.backoff(attempt - 1)
		if p.jitter != nil {
			wait = p.jitter(wait)
		}
		if p.onRetry != nil {
			p.onRetry(attempt, err, wait)
		}
		if !sleep(ctx, wait) {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
