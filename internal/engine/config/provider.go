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

package config

import (
	"github.com/go-arcade/hierarchy/internal/engine/audit"
	"github.com/go-arcade/hierarchy/internal/engine/service/hierarchy"
	"github.com/go-arcade/hierarchy/pkg/cache"
	"github.com/go-arcade/hierarchy/pkg/database"
	"github.com/go-arcade/hierarchy/pkg/log"
	"github.com/go-arcade/hierarchy/pkg/metrics"
	"github.com/go-arcade/hierarchy/pkg/pprof"
	"github.com/go-arcade/hierarchy/pkg/trace"
	"github.com/google/wire"
)

// ProviderSet 提供配置层相关的依赖
var ProviderSet = wire.NewSet(
	ProvideConf,
	ProvideLogConfig,
	ProvideDatabaseConfig,
	ProvideHierarchyConfig,
	ProvideMetricsConfig,
	ProvidePprofConfig,
	ProvideTraceConfig,
	ProvideAuditConfig,
	ProvideRedisConfig,
)

// ProvideConf 提供应用配置
func ProvideConf(configPath string) (*AppConfig, error) {
	return LoadConfigFile(configPath)
}

// ProvideLogConfig 提供日志配置
func ProvideLogConfig(appConf *AppConfig) *log.Conf {
	return &appConf.Log
}

// ProvideDatabaseConfig 提供数据库配置
func ProvideDatabaseConfig(appConf *AppConfig) database.Database {
	return appConf.Database
}

// ProvideHierarchyConfig 提供引擎配置
func ProvideHierarchyConfig(appConf *AppConfig) *hierarchy.Conf {
	return &appConf.Hierarchy
}

// ProvideMetricsConfig 提供 Metrics 配置
func ProvideMetricsConfig(appConf *AppConfig) metrics.MetricsConfig {
	return appConf.Metrics
}

// ProvidePprofConfig 提供 Pprof 配置
func ProvidePprofConfig(appConf *AppConfig) pprof.PprofConfig {
	return appConf.Pprof
}

// ProvideTraceConfig 提供 Trace 配置
func ProvideTraceConfig(appConf *AppConfig) trace.Conf {
	return appConf.Trace
}

// ProvideAuditConfig 提供审计配置
func ProvideAuditConfig(appConf *AppConfig) audit.Conf {
	return appConf.Audit
}

// ProvideRedisConfig 提供 Redis 配置
func ProvideRedisConfig(appConf *AppConfig) cache.Redis {
	return appConf.Redis
}
