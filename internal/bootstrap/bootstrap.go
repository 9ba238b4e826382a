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

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-arcade/hierarchy/internal/engine/audit"
	"github.com/go-arcade/hierarchy/internal/engine/config"
	"github.com/go-arcade/hierarchy/internal/engine/service/hierarchy"
	"github.com/go-arcade/hierarchy/pkg/database"
	"github.com/go-arcade/hierarchy/pkg/log"
	"github.com/go-arcade/hierarchy/pkg/metrics"
	"github.com/go-arcade/hierarchy/pkg/pprof"
	"github.com/go-arcade/hierarchy/pkg/safe"
	"github.com/robfig/cron"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// DefaultResumeSchedule is the cron spec used by serve to pick up stale cascades.
const DefaultResumeSchedule = "@every 30s"

type App struct {
	Engine  *hierarchy.Engine
	Audit   *audit.Forwarder
	Manager database.Manager
	Metrics *metrics.Server
	Pprof   *pprof.Server
	Tracer  *sdktrace.TracerProvider
	Logger  *zap.Logger
	AppConf *config.AppConfig
}

// InitAppFunc init app function type
type InitAppFunc func(configPath string) (*App, func(), error)

func NewApp(
	engine *hierarchy.Engine,
	forwarder *audit.Forwarder,
	manager database.Manager,
	metricsServer *metrics.Server,
	pprofServer *pprof.Server,
	tracer *sdktrace.TracerProvider,
	logger *zap.Logger,
	appConf *config.AppConfig,
) (*App, func(), error) {
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if metricsServer != nil {
			if err := metricsServer.Stop(ctx); err != nil {
				logger.Error("Failed to stop metrics server", zap.Error(err))
			}
		}
		if pprofServer != nil {
			if err := pprofServer.Stop(ctx); err != nil {
				logger.Error("Failed to stop pprof server", zap.Error(err))
			}
		}
		_ = logger.Sync()
	}

	app := &App{
		Engine:  engine,
		Audit:   forwarder,
		Manager: manager,
		Metrics: metricsServer,
		Pprof:   pprofServer,
		Tracer:  tracer,
		Logger:  logger,
		AppConf: appConf,
	}
	return app, cleanup, nil
}
// Bootstrap init app, return App instance and cleanup function
func Bootstrap(configFile string, initApp InitAppFunc) (*App, func(), error) {
	app, cleanup, err := initApp(configFile)
	if err != nil {
		return nil, nil, err
	}
	app.Logger.Sugar().Infow("hierarchy engine initialized",
		"config", configFile,
		"database_driver", app.AppConf.Database.Driver,
	)
	return app, cleanup, nil
}

// Migrate creates or updates the engine tables.
func Migrate(app *App) error {
	return database.Migrate(app.Manager.Primary())
}

// Run serves metrics and pprof and resumes stale cascades on schedule until
// ctx is done or an exit signal arrives, then shuts down gracefully.
func Run(ctx context.Context, app *App, cleanup func(), schedule string) error {
	defer cleanup()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := app.Metrics.Start(); err != nil {
		return err
	}
	if err := app.Pprof.Start(); err != nil {
		return err
	}

	job := resumeJob(ctx, app.Engine)
	scheduler := cron.New()
	if err := scheduler.AddFunc(schedule, job); err != nil {
		return fmt.Errorf("invalid resume schedule %q: %w", schedule, err)
	}
	scheduler.Start()
	log.Infow("stale cascade resumer scheduled", "schedule", schedule)

	// 启动时先补一次
	job()

	<-ctx.Done()
	log.Info("Shutting down hierarchy engine...")
	scheduler.Stop()
	return nil
}

// resumeJob wraps ResumeStale for the scheduler; a run that starts while the
// previous one is still busy is skipped.
func resumeJob(ctx context.Context, engine *hierarchy.Engine) func() {
	var running atomic.Bool
	return func() {
		if !running.CompareAndSwap(false, true) {
			log.Debug("previous stale cascade scan still running, skipping")
			return
		}
		defer running.Store(false)
		_ = safe.Do(func() { resumeStale(ctx, engine) })
	}
}

func resumeStale(ctx context.Context, engine *hierarchy.Engine) {
	results, err := engine.Cascade.ResumeStale(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Errorw("failed to resume stale cascades", "error", err)
	}
	for _, cs := range results {
		log.Infow("stale cascade completed",
			"job_id", cs.JobId,
			"action", cs.Action,
			"nodes", len(cs.Changes))
	}
}

// Exit flushes the logger and exits with code.
func Exit(code int) {
	_ = log.Sync()
	os.Exit(code)
}
