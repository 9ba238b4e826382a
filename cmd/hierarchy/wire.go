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

//go:build wireinject
// +build wireinject

package main

import (
	"github.com/go-arcade/hierarchy/internal/bootstrap"
	"github.com/go-arcade/hierarchy/internal/engine/audit"
	"github.com/go-arcade/hierarchy/internal/engine/config"
	repo "github.com/go-arcade/hierarchy/internal/engine/repo/hierarchy"
	"github.com/go-arcade/hierarchy/internal/engine/service/hierarchy"
	"github.com/go-arcade/hierarchy/pkg/database"
	"github.com/go-arcade/hierarchy/pkg/event"
	"github.com/go-arcade/hierarchy/pkg/log"
	"github.com/go-arcade/hierarchy/pkg/metrics"
	"github.com/go-arcade/hierarchy/pkg/pprof"
	"github.com/go-arcade/hierarchy/pkg/trace"
	"github.com/google/wire"
)

func initApp(configPath string) (*bootstrap.App, func(), error) {
	panic(wire.Build(
		// 配置层
		config.ProviderSet,
		// 日志
		log.ProviderSet,
		// 链路追踪
		trace.ProviderSet,
		// 数据库
		database.ProviderSet,
		// 仓储层
		repo.ProviderSet,
		// 指标
		metrics.ProviderSet,
		wire.Bind(new(hierarchy.MetricsRecorder), new(*metrics.HierarchyMetricsRecorder)),
		pprof.ProviderSet,
		// 引擎
		event.NewEventBus,
		hierarchy.ProviderSet,
		// 审计
		audit.ProviderSet,
		// 应用层
		bootstrap.NewApp,
	))
}
