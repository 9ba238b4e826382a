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

	"github.com/go-arcade/hierarchy/internal/bootstrap"
	"github.com/go-arcade/hierarchy/internal/engine/model"
	"github.com/go-arcade/hierarchy/internal/engine/service/hierarchy"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "create or update the engine tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			if err := bootstrap.Migrate(app); err != nil {
				return err
			}
			app.Logger.Sugar().Infow("tables migrated", "driver", app.AppConf.Database.Driver)
			return nil
		})
	},
}

var initRegion string

var initCmd = &cobra.Command{
	Use:   "init <campaign-id> <member-id>",
	Short: "create the root node of a campaign and its first invite code",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			root, code, err := app.Engine.InitCampaign(ctx, args[0], args[1], initRegion)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"node": root, "inviteCode": code})
		})
	},
}

var issueCmd = &cobra.Command{
	Use:   "issue <node-id>",
	Short: "issue a new invite code for a node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			code, err := app.Engine.Registry.Issue(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), code)
		})
	},
}

var revokeCmd = &cobra.Command{
	Use:   "revoke <node-id>",
	Short: "revoke the active invite code of a node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			return app.Engine.Registry.Revoke(ctx, args[0])
		})
	},
}

var rotateCmd = &cobra.Command{
	Use:   "rotate <node-id>",
	Short: "replace the active invite code of a node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			code, err := app.Engine.Registry.Rotate(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), code)
		})
	},
}

var lookupCmd = &cobra.Command{
	Use:   "lookup <code>",
	Short: "show the full record of an invite code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			code, err := app.Engine.Registry.Lookup(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), code)
		})
	},
}

var joinFlags hierarchy.JoinRequest

var joinCmd = &cobra.Command{
	Use:   "join <code> <member-id>",
	Short: "join a campaign tree with an invite code",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			req := joinFlags
			req.Code, req.MemberId = args[0], args[1]
			res, err := app.Engine.Join.Join(ctx, req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		})
	},
}

type cascadeFunc func(o *hierarchy.CascadeOperator, ctx context.Context, nodeId string) (*model.ChangeSet, error)

func cascadeCmd(use, short string, run cascadeFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <node-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				cs, err := run(app.Engine.Cascade, ctx, args[0])
				// 中断时仍输出已提交的部分，便于用 resume 继续
				if cs != nil {
					if perr := printJSON(cmd.OutOrStdout(), cs); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}
}

var blockCmd = cascadeCmd("block", "block a node and its whole sub-tree, revoking their invite codes",
	(*hierarchy.CascadeOperator).Block)

var unblockCmd = cascadeCmd("unblock", "unblock a node and its whole sub-tree",
	(*hierarchy.CascadeOperator).Unblock)

var resumeCmd = &cobra.Command{
	Use:   "resume [job-id]",
	Short: "finish an interrupted cascade, or every stale one without a job id",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			if len(args) == 1 {
				cs, err := app.Engine.Cascade.Resume(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), cs)
			}
			results, err := app.Engine.Cascade.ResumeStale(ctx)
			if perr := printJSON(cmd.OutOrStdout(), results); perr != nil {
				return perr
			}
			return err
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats <node-id>",
	Short: "show sub-tree size, children, ancestors and depth histogram of a node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			stats, err := app.Engine.Query.Stats(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		})
	},
}

func init() {
	initCmd.Flags().StringVar(&initRegion, "region", "", "region hint of the campaign owner")
	joinCmd.Flags().StringVar(&joinFlags.CampaignId, "campaign", "", "reject codes of other campaigns")
	joinCmd.Flags().StringVar(&joinFlags.RegionHint, "region", "", "region hint passed through to the new node")
}
