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

package main

import (
	"github.com/go-arcade/hierarchy/internal/bootstrap"
	"github.com/spf13/cobra"
)

var (
	resumeSchedule string
	migrateOnStart bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve metrics and pprof, resuming stale cascades until stopped",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, cleanup, err := bootstrap.Bootstrap(configFile, initApp)
		if err != nil {
			return err
		}
		if migrateOnStart {
			if err := bootstrap.Migrate(app); err != nil {
				cleanup()
				return err
			}
		}
		return bootstrap.Run(cmd.Context(), app, cleanup, resumeSchedule)
	},
}

func init() {
	serveCmd.Flags().StringVar(&resumeSchedule, "schedule", bootstrap.DefaultResumeSchedule, "cron spec for resuming stale cascades")
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "migrate tables before serving")
}
