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
	"fmt"

	"github.com/go-arcade/hierarchy/internal/bootstrap"
	"github.com/go-arcade/hierarchy/internal/engine/model"
	"github.com/go-arcade/hierarchy/internal/engine/service/hierarchy"
	"github.com/go-arcade/hierarchy/pkg/id"
	"github.com/go-arcade/hierarchy/pkg/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	seedMembers int
	seedWorkers int
)

var seedCmd = &cobra.Command{
	Use:   "seed <campaign-id>",
	Short: "build a demo tree with random members joining concurrently",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if seedMembers <= 0 || seedWorkers <= 0 {
			return fmt.Errorf("--members and --workers must be positive")
		}
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			root, err := seed(ctx, app.Engine, args[0], seedMembers, seedWorkers)
			if err != nil {
				return err
			}
			stats, err := app.Engine.Query.Stats(ctx, root.NodeId)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		})
	},
}

func init() {
	seedCmd.Flags().IntVar(&seedMembers, "members", 100, "number of members to join")
	seedCmd.Flags().IntVar(&seedWorkers, "workers", 8, "concurrent joins")
}

// seed initializes campaignId and lets members join through a shared pool of
// unused codes. Every join returns two codes to the pool: the new member's
// and a fresh one for the parent.
func seed(ctx context.Context, engine *hierarchy.Engine, campaignId string, members, workers int) (*model.HierarchyNode, error) {
	root, code, err := engine.InitCampaign(ctx, campaignId, "owner-"+id.ShortId(), "")
	if err != nil {
		return nil, err
	}

	pool := make(chan string, 2*members+1)
	pool <- code.Code

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < members; i++ {
		var next string
		select {
		case next = <-pool:
		case <-ctx.Done():
			if err := g.Wait(); err != nil {
				return nil, err
			}
			return nil, ctx.Err()
		}

		g.Go(func() error {
			res, err := engine.Join.Join(ctx, hierarchy.JoinRequest{
				Code:       next,
				MemberId:   "member-" + id.ShortId(),
				CampaignId: campaignId,
			})
			if err != nil {
				return err
			}
			parentCode := res.ParentCode
			if parentCode == nil {
				if parentCode, err = engine.Registry.Issue(ctx, res.Node.ParentId()); err != nil {
					return err
				}
			}
			pool <- res.InviteCode.Code
			pool <- parentCode.Code
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Infow("campaign seeded", "campaign_id", campaignId, "members", members)
	return root, nil
}
