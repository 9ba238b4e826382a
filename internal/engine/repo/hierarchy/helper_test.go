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
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/go-arcade/hierarchy/internal/engine/model"
	"github.com/go-arcade/hierarchy/pkg/database"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// sequentialIds yields "1", "2", ... so tests can build ids that share prefixes.
func sequentialIds() IDGenerator {
	var n atomic.Int64
	return func() string {
		return strconv.FormatInt(n.Add(1), 10)
	}
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.NewSQLiteConnection(database.SQLiteConfig{
		Path: filepath.Join(t.TempDir(), "hierarchy.db"),
	}, database.Database{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.HierarchyNode{}, &model.InviteCode{}, &model.CascadeJob{}))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

type fixture struct {
	db    *gorm.DB
	nodes INodeRepository
	codes IInviteCodeRepository
	jobs  ICascadeJobRepository
}

func newFixture(t *testing.T) *fixture {
	db := openTestDB(t)
	gdb := database.NewGormDB(db)
	return &fixture{
		db:    db,
		nodes: NewNodeRepo(gdb, sequentialIds()),
		codes: NewInviteCodeRepo(gdb),
		jobs:  NewCascadeJobRepo(gdb),
	}
}
