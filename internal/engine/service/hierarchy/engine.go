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
	"context"

	"github.com/go-arcade/hierarchy/internal/engine/model"
	repo "github.com/go-arcade/hierarchy/internal/engine/repo/hierarchy"
	"github.com/go-arcade/hierarchy/pkg/database"
	"github.com/go-arcade/hierarchy/pkg/log"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// Engine bundles the components of the hierarchy engine.
type Engine struct {
	Registry *Registry
	Join     *JoinProtocol
	Cascade  *CascadeOperator
	Query    *QueryFacade

	db    database.DB
	nodes repo.INodeRepository
	codes repo.IInviteCodeRepository
}

func NewEngine(
	db database.DB,
	nodes repo.INodeRepository,
	codes repo.IInviteCodeRepository,
	registry *Registry,
	join *JoinProtocol,
	cascade *CascadeOperator,
	query *QueryFacade,
) *Engine {
	return &Engine{
		Registry: registry,
		Join:     join,
		Cascade:  cascade,
		Query:    query,
		db:       db,
		nodes:    nodes,
		codes:    codes,
	}
}

// InitCampaign creates the root node of a campaign for its owner together
// with the root's first invite code. A second call for the same campaign
// fails with Conflict.
func (e *Engine) InitCampaign(ctx context.Context, campaignId, memberId, regionId string) (root *model.HierarchyNode, code *model.InviteCode, err error) {
	ctx, span := startSpan(ctx, "hierarchy.InitCampaign", attribute.String("campaign.id", campaignId))
	defer func() { endSpan(span, err) }()

	err = e.Registry.retry.run(ctx, "init_campaign", func(ctx context.Context) error {
		return database.Transaction(ctx, e.db, func(tx *gorm.DB) error {
			nodes, codes := e.nodes.WithTx(tx), e.codes.WithTx(tx)
			r, err := nodes.CreateRoot(ctx, campaignId, memberId, regionId)
			if err != nil {
				return err
			}
			c, err := e.Registry.issueTx(ctx, nodes, codes, r.NodeId)
			if err != nil {
				return err
			}
			r.InviteCode = c.Code
			root, code = r, c
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}
	e.Registry.metrics.RecordCodeIssued()
	log.WithContext(ctx).Infow("campaign initialized", "campaign_id", campaignId, "root_node_id", root.NodeId, "code", code.Code)
	return root, code, nil
}
