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
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/go-arcade/hierarchy/internal/engine/audit"
	"github.com/go-arcade/hierarchy/internal/engine/service/hierarchy"
	"github.com/go-arcade/hierarchy/pkg/cache"
	"github.com/go-arcade/hierarchy/pkg/database"
	"github.com/go-arcade/hierarchy/pkg/log"
	"github.com/go-arcade/hierarchy/pkg/metrics"
	"github.com/go-arcade/hierarchy/pkg/pprof"
	"github.com/go-arcade/hierarchy/pkg/trace"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. HIERARCHY_DATABASE_DRIVER.
const EnvPrefix = "HIERARCHY"

type AppConfig struct {
	Log       log.Conf
	Database  database.Database
	Hierarchy hierarchy.Conf
	Metrics   metrics.MetricsConfig
	Pprof     pprof.PprofConfig
	Trace     trace.Conf
	Audit     audit.Conf
	Redis     cache.Redis
}

// SetDefaults fills every section that was left empty.
func (c *AppConfig) SetDefaults() {
	defaults := log.SetDefaults()
	if c.Log.Output == "" {
		c.Log.Output = defaults.Output
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Level
	}
	if c.Log.Path == "" {
		c.Log.Path = defaults.Path
	}
	if c.Log.Filename == "" {
		c.Log.Filename = defaults.Filename
	}
	c.Database.SetDefaults()
	c.Hierarchy.SetDefaults()
	c.Metrics.SetDefaults()
	c.Pprof.SetDefaults()
	c.Trace.SetDefaults()
	c.Audit.SetDefaults()
	c.Redis.SetDefaults()
}

func (c *AppConfig) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if err := c.Hierarchy.Validate(); err != nil {
		return err
	}
	if err := c.Trace.Validate(); err != nil {
		return fmt.Errorf("trace: %w", err)
	}
	if err := c.Audit.Validate(); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	switch c.Database.Driver {
	case database.DriverMySQL, database.DriverSQLite:
	default:
		return fmt.Errorf("database driver %q is not supported", c.Database.Driver)
	}
	return nil
}

// LoadConfigFile load config file
func LoadConfigFile(path string) (*AppConfig, error) {
	config := viper.New()
	config.SetConfigFile(path) //文件名
	config.SetEnvPrefix(EnvPrefix)
	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()
	if err := config.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	cfg, err := decode(config)
	if err != nil {
		return nil, err
	}

	// 引擎持有配置指针，变更只做校验和提示，重启后生效
	config.OnConfigChange(func(e fsnotify.Event) {
		changed, err := decode(config)
		if err != nil {
			log.Warnw("configuration changed but is invalid, keeping the running one", "file", e.Name, "error", err)
			return
		}
		log.Infow("configuration changed, restart to apply",
			"file", e.Name,
			"log_level", changed.Log.Level,
			"chunk_size", changed.Hierarchy.ChunkSize,
			"database_driver", changed.Database.Driver)
	})
	config.WatchConfig()

	log.Infow("config file loaded",
		"path", path,
	)
	return cfg, nil
}

func decode(v *viper.Viper) (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration file: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
