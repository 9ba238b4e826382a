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

package hierarchy

import (
	"context"
	"time"

	repo "github.com/go-arcade/hierarchy/internal/engine/repo/hierarchy"
	"github.com/go-arcade/hierarchy/pkg/errs"
	"github.com/go-arcade/hierarchy/pkg/log"
	"github.com/go-arcade/hierarchy/pkg/retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/go-arcade/hierarchy/engine"

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records err on span and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, errs.KindOf(err).String())
	}
	span.End()
}

// retrier reruns a unit of work on TransientStore errors.
type retrier struct {
	conf    *Conf
	metrics MetricsRecorder
}

func (r retrier) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, func(ctx context.Context) error {
		return repo.Classify(fn(ctx), "%s", op)
	},
		retry.WithMaxAttempts(r.conf.RetryAttempts),
		retry.WithBackoff(retry.Exponential(r.conf.RetryBackoff, time.Second)),
		retry.WithJitter(retry.FullJitter),
		retry.WithRetryIf(errs.IsTransient),
		retry.WithOnRetry(func(attempt int, err error, wait time.Duration) {
			log.WithContext(ctx).Warnw("retrying unit of work", "operation", op, "attempt", attempt, "wait", wait, "error", err)
			r.metrics.RecordRetry(op)
		}),
	)
}
