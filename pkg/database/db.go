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

package database

import (
	"context"

	"gorm.io/gorm"
)

// DB 定义数据库接口（抽象）
type DB interface {
	// DB 返回底层的 *gorm.DB
	DB() *gorm.DB
}

// GormDB GORM 数据库实现
type GormDB struct {
	db *gorm.DB
}

// NewGormDB 创建 GORM 数据库实例
func NewGormDB(db *gorm.DB) DB {
	return &GormDB{db: db}
}

// DB 返回底层的 *gorm.DB
func (g *GormDB) DB() *gorm.DB {
	return g.db
}

// Transaction runs fn in a single transaction bound to ctx.
// Returning an error from fn, or cancelling ctx, rolls the transaction back.
func Transaction(ctx context.Context, db DB, fn func(tx *gorm.DB) error) error {
	return db.DB().WithContext(ctx).Transaction(fn)
}
