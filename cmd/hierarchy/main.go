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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/go-arcade/hierarchy/internal/bootstrap"
	"github.com/go-arcade/hierarchy/pkg/version"
	"github.com/spf13/cobra"
)

var (
	configFile string
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "hierarchy",
	Short:         "campaign recruitment tree engine",
	Long:          "hierarchy manages campaign recruitment trees: invite codes, joins, cascading blocks and tree statistics",
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		err := cmd.Help()
		if err != nil {
			return
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "conf", "conf.d/config.toml", "conf file path, e.g. --conf ./conf.d/config.toml")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "abort the command after this long, 0 waits forever")

	rootCmd.AddCommand(
		migrateCmd,
		initCmd,
		issueCmd,
		revokeCmd,
		rotateCmd,
		lookupCmd,
		joinCmd,
		blockCmd,
		unblockCmd,
		resumeCmd,
		statsCmd,
		seedCmd,
		serveCmd,
		version.VersionCmd,
	)
}

// withApp builds the application for one command and tears it down afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *bootstrap.App) error) error {
	app, cleanup, err := bootstrap.Bootstrap(configFile, initApp)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx, app)
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
		bootstrap.Exit(1)
	}
}
