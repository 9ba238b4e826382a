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
	"time"

	"github.com/go-arcade/hierarchy/internal/engine/model"
	repo "github.com/go-arcade/hierarchy/internal/engine/repo/hierarchy"
	"github.com/go-arcade/hierarchy/pkg/database"
	"github.com/go-arcade/hierarchy/pkg/errs"
	"github.com/go-arcade/hierarchy/pkg/log"
	"github.com/go-arcade/hierarchy/pkg/statemachine"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// JoinRequest is a join attempt by an already authenticated member.
type JoinRequest struct {
	Code       string
	MemberId   string
	CampaignId string // optional, rejects codes of other campaigns
	RegionHint string // passed through to the node, never validated
}

// JoinResult is the new node and the code it can recruit with.
type JoinResult struct {
	Node       *model.HierarchyNode
	InviteCode *model.InviteCode
	// ParentCode is the parent's fresh code when ReissueParentCode is enabled
	ParentCode *model.InviteCode
	State      statemachine.JoinState
}

// JoinProtocol redeems a code, creates the child node and issues the
// child's own code as one transaction.
type JoinProtocol struct {
	db       database.DB
	nodes    repo.INodeRepository
	codes    repo.IInviteCodeRepository
	registry *Registry
	conf     *Conf
	metrics  MetricsRecorder
	retry    retrier
}

func NewJoinProtocol(
	db database.DB,
	nodes repo.INodeRepository,
	codes repo.IInviteCodeRepository,
	registry *Registry,
	conf *Conf,
	metrics MetricsRecorder,
) *JoinProtocol {
	metrics = orNoop(metrics)
	return &JoinProtocol{
		db:       db,
		nodes:    nodes,
		codes:    codes,
		registry: registry,
		conf:     conf,
		metrics:  metrics,
		retry:    retrier{conf: conf, metrics: metrics},
	}
}

// Join fails with NotFound when the code is unknown, redeemed or revoked,
// Forbidden when the issuing node is blocked and Conflict when the member
// already has a node in the campaign. On any failure nothing is written.
func (p *JoinProtocol) Join(ctx context.Context, req JoinRequest) (result *JoinResult, err error) {
	ctx, span := startSpan(ctx, "hierarchy.Join",
		attribute.String("campaign.id", req.CampaignId),
		attribute.String("member.id", req.MemberId))
	start := time.Now()
	defer func() {
		p.metrics.RecordJoin(joinResult(err), time.Since(start))
		endSpan(span, err)
	}()

	if req.Code == "" {
		return nil, errs.NotFound("invite code not found")
	}
	if req.MemberId == "" {
		return nil, errs.Forbidden("member identity is required to join")
	}

	err = p.retry.run(ctx, "join", func(ctx context.Context) error {
		r, err := p.joinOnce(ctx, req)
		result = r
		return err
	})
	if err != nil {
		return nil, err
	}

	p.metrics.RecordCodeIssued()
	if result.ParentCode != nil {
		p.metrics.RecordCodeIssued()
	}
	log.WithContext(ctx).Infow("member joined",
		"campaign_id", result.Node.CampaignId,
		"member_id", result.Node.MemberId,
		"node_id", result.Node.NodeId,
		"parent_node_id", result.Node.ParentId(),
		"level", result.Node.Level)
	return result, nil
}

func (p *JoinProtocol) joinOnce(ctx context.Context, req JoinRequest) (*JoinResult, error) {
	fsm := statemachine.NewJoinStateMachine()
	result := &JoinResult{}

	err := database.Transaction(ctx, p.db, func(tx *gorm.DB) error {
		nodes, codes := p.nodes.WithTx(tx), p.codes.WithTx(tx)

		// 先按 节点→邀请码 的顺序加锁，与级联保持一致
		pending, err := codes.GetByCode(ctx, req.Code)
		if err != nil {
			return err
		}
		if !pending.IsActive() {
			return errs.NotFound("invite code not found")
		}
		parent, err := nodes.GetNodeForUpdate(ctx, pending.IssuerNodeId)
		if err != nil {
			return err
		}

		// 条件更新是唯一的兑换判定点
		if _, err := p.registry.RedeemTx(ctx, tx, req.Code, req.CampaignId); err != nil {
			return err
		}
		if err := fsm.TriggerEvent(statemachine.EventRedeem); err != nil {
			return err
		}
		if parent.IsBlocked {
			return errs.Forbidden("node %s is blocked and cannot recruit", parent.NodeId)
		}

		child, err := nodes.CreateChild(ctx, parent, req.MemberId, req.RegionHint)
		if err != nil {
			return err
		}
		if err := codes.SetRedeemedNode(ctx, req.Code, child.NodeId); err != nil {
			return err
		}
		// 兑换后父节点不再持有有效码
		if err := nodes.SetInviteCode(ctx, parent.NodeId, ""); err != nil {
			return err
		}
		if err := fsm.TriggerEvent(statemachine.EventCreate); err != nil {
			return err
		}

		code, err := p.registry.issueTx(ctx, nodes, codes, child.NodeId)
		if err != nil {
			return err
		}
		child.InviteCode = code.Code
		if err := fsm.TriggerEvent(statemachine.EventIssue); err != nil {
			return err
		}

		if p.conf.ReissueParentCode {
			parentCode, err := p.registry.issueTx(ctx, nodes, codes, parent.NodeId)
			if err != nil {
				return err
			}
			result.ParentCode = parentCode
		}

		result.Node = child
		result.InviteCode = code
		return nil
	})
	if err != nil {
		event := statemachine.EventReject
		if fsm.Is(statemachine.JoinNewCodeIssued) {
			event = statemachine.EventDiscard
		}
		from := fsm.Current()
		_ = fsm.TriggerEvent(event)
		log.WithContext(ctx).Debugw("join rejected", "state", from, "error", err)
		return nil, err
	}

	result.State = fsm.Current()
	return result, nil
}

func joinResult(err error) string {
	if err == nil {
		return "ok"
	}
	switch errs.KindOf(err) {
	case errs.KindNotFound:
		return "not_found"
	case errs.KindForbidden:
		return "forbidden"
	case errs.KindConflict:
		return "conflict"
	case errs.KindTransientStore:
		return "transient"
	default:
		return "error"
	}
}
