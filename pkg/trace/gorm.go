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

package trace

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const gormTracerName = "github.com/go-arcade/hierarchy/pkg/trace/gorm"

type gormContextKey int

const (
	spanKey gormContextKey = iota
	startKey
)

// GormPlugin implements gorm.Plugin, one client span per statement.
type GormPlugin struct {
	// WithQuery records the rendered SQL as db.statement
	WithQuery bool
	// WithRows records db.rows_affected
	WithRows bool
}

// Name returns the plugin name
func (p *GormPlugin) Name() string {
	return "opentelemetry"
}

// Initialize registers the before/after callbacks on every processor.
func (p *GormPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	return errors.Join(
		cb.Create().Before("gorm:create").Register("opentelemetry:before", p.before("create")),
		cb.Query().Before("gorm:query").Register("opentelemetry:before", p.before("query")),
		cb.Update().Before("gorm:update").Register("opentelemetry:before", p.before("update")),
		cb.Delete().Before("gorm:delete").Register("opentelemetry:before", p.before("delete")),
		cb.Row().Before("gorm:row").Register("opentelemetry:before", p.before("row")),
		cb.Raw().Before("gorm:raw").Register("opentelemetry:before", p.before("raw")),

		cb.Create().After("gorm:create").Register("opentelemetry:after", p.after),
		cb.Query().After("gorm:query").Register("opentelemetry:after", p.after),
		cb.Update().After("gorm:update").Register("opentelemetry:after", p.after),
		cb.Delete().After("gorm:delete").Register("opentelemetry:after", p.after),
		cb.Row().After("gorm:row").Register("opentelemetry:after", p.after),
		cb.Raw().After("gorm:raw").Register("opentelemetry:after", p.after),
	)
}

func (p *GormPlugin) before(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		if db.Statement == nil {
			return
		}
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		ctx, span := otel.Tracer(gormTracerName).Start(ctx, "gorm."+operation, trace.WithSpanKind(trace.SpanKindClient))
		ctx = context.WithValue(ctx, spanKey, span)
		db.Statement.Context = context.WithValue(ctx, startKey, time.Now())

		attrs := []attribute.KeyValue{
			attribute.String("db.system", db.Dialector.Name()),
			attribute.String("db.operation", operation),
		}
		if db.Statement.Table != "" {
			attrs = append(attrs, attribute.String("db.sql.table", db.Statement.Table))
		}
		span.SetAttributes(attrs...)
	}
}

func (p *GormPlugin) after(db *gorm.DB) {
	if db.Statement == nil || db.Statement.Context == nil {
		return
	}
	span, ok := db.Statement.Context.Value(spanKey).(trace.Span)
	if !ok {
		return
	}
	defer span.End()

	if start, ok := db.Statement.Context.Value(startKey).(time.Time); ok {
		span.SetAttributes(attribute.Int64("db.duration_ms", time.Since(start).Milliseconds()))
	}
	// SQL 在 gorm:xxx 之后才渲染完成
	if p.WithQuery && db.Statement.SQL.Len() > 0 {
		span.SetAttributes(attribute.String("db.statement", db.Statement.SQL.String()))
	}
	if p.WithRows {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	}

	// 查不到记录是业务语义，不算失败
	if err := db.Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// RegisterGormPlugin registers the OpenTelemetry plugin on db
func RegisterGormPlugin(db *gorm.DB, withQuery bool, withRows bool) error {
	return db.Use(&GormPlugin{
		WithQuery: withQuery,
		WithRows:  withRows,
	})
}
