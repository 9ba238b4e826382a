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
	"errors"

	"github.com/go-arcade/hierarchy/internal/engine/model"
	repo "github.com/go-arcade/hierarchy/internal/engine/repo/hierarchy"
	"github.com/go-arcade/hierarchy/pkg/database"
	"github.com/go-arcade/hierarchy/pkg/errs"
	"github.com/go-arcade/hierarchy/pkg/log"
	"github.com/go-arcade/hierarchy/pkg/statemachine"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// Registry issues, redeems and revokes invite codes.
type Registry struct {
	db      database.DB
	nodes   repo.INodeRepository
	codes   repo.IInviteCodeRepository
	gen     CodeGenerator
	conf    *Conf
	metrics MetricsRecorder
	retry   retrier
}

func NewRegistry(
	db database.DB,
	nodes repo.INodeRepository,
	codes repo.IInviteCodeRepository,
	gen CodeGenerator,
	conf *Conf,
	metrics MetricsRecorder,
) *Registry {
	metrics = orNoop(metrics)
	return &Registry{
		db:      db,
		nodes:   nodes,
		codes:   codes,
		gen:     gen,
		conf:    conf,
		metrics: metrics,
		retry:   retrier{conf: conf, metrics: metrics},
	}
}

// Issue creates a new active code for nodeId.
// It fails with NotFound for an unknown node, Forbidden for a blocked node
// and Conflict when the node already holds an active code.
func (r *Registry) Issue(ctx context.Context, nodeId string) (code *model.InviteCode, err error) {
	ctx, span := startSpan(ctx, "hierarchy.Issue", attribute.String("node.id", nodeId))
	defer func() { endSpan(span, err) }()

	err = r.retry.run(ctx, "issue", func(ctx context.Context) error {
		return database.Transaction(ctx, r.db, func(tx *gorm.DB) error {
			c, err := r.issueTx(ctx, r.nodes.WithTx(tx), r.codes.WithTx(tx), nodeId)
			code = c
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	r.metrics.RecordCodeIssued()
	log.WithContext(ctx).Infow("invite code issued", "node_id", nodeId, "code", code.Code)
	return code, nil
}

// issueTx 在调用方事务内为节点签发邀请码
func (r *Registry) issueTx(ctx context.Context, nodes repo.INodeRepository, codes repo.IInviteCodeRepository, nodeId string) (*model.InviteCode, error) {
	node, err := nodes.GetNodeForUpdate(ctx, nodeId)
	if err != nil {
		return nil, err
	}
	if node.IsBlocked {
		return nil, errs.Forbidden("node %s is blocked and cannot issue invite codes", nodeId)
	}
	if err := r.ensureNoActiveCode(ctx, codes, nodeId); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= r.conf.MaxCodeAttempts; attempt++ {
		value, err := r.gen.Generate()
		if err != nil {
			return nil, err
		}
		slot := nodeId
		code := &model.InviteCode{
			Code:         value,
			IssuerNodeId: nodeId,
			CampaignId:   node.CampaignId,
			Status:       statemachine.InviteActive,
			ActiveSlot:   &slot,
		}
		err = codes.Create(ctx, code)
		if errors.Is(err, errs.ErrConflict) {
			// active_slot 冲突说明已有有效码，否则是随机码碰撞，重新生成
			if err := r.ensureNoActiveCode(ctx, codes, nodeId); err != nil {
				return nil, err
			}
			log.WithContext(ctx).Debugw("invite code collision", "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := nodes.SetInviteCode(ctx, nodeId, code.Code); err != nil {
			return nil, err
		}
		return code, nil
	}
	return nil, errs.Conflict("no unique invite code for node %s after %d attempts", nodeId, r.conf.MaxCodeAttempts)
}

func (r *Registry) ensureNoActiveCode(ctx context.Context, codes repo.IInviteCodeRepository, nodeId string) error {
	_, err := codes.GetActiveByIssuer(ctx, nodeId)
	switch {
	case err == nil:
		return errs.Conflict("node %s already has an active invite code", nodeId)
	case errors.Is(err, errs.ErrNotFound):
		return nil
	default:
		return err
	}
}

// RedeemTx consumes code inside the caller's transaction and returns the
// issuing node id. It exists for composition only: a code must never stay
// redeemed without the child node created in the same transaction, so
// callers outside the engine use JoinProtocol.Join.
func (r *Registry) RedeemTx(ctx context.Context, tx *gorm.DB, code, campaignId string) (string, error) {
	redeemed, err := r.codes.WithTx(tx).Redeem(ctx, code, campaignId)
	if err != nil {
		return "", err
	}
	return redeemed.IssuerNodeId, nil
}

// Revoke invalidates the node's active code, if any. Revoking twice is a no-op.
func (r *Registry) Revoke(ctx context.Context, nodeId string) (err error) {
	ctx, span := startSpan(ctx, "hierarchy.Revoke", attribute.String("node.id", nodeId))
	defer func() { endSpan(span, err) }()

	var revoked string
	err = r.retry.run(ctx, "revoke", func(ctx context.Context) error {
		return database.Transaction(ctx, r.db, func(tx *gorm.DB) error {
			c, err := r.revokeTx(ctx, r.nodes.WithTx(tx), r.codes.WithTx(tx), nodeId)
			revoked = c
			return err
		})
	})
	if err == nil && revoked != "" {
		log.WithContext(ctx).Infow("invite code revoked", "node_id", nodeId, "code", revoked)
	}
	return err
}

func (r *Registry) revokeTx(ctx context.Context, nodes repo.INodeRepository, codes repo.IInviteCodeRepository, nodeId string) (string, error) {
	if _, err := nodes.GetNodeForUpdate(ctx, nodeId); err != nil {
		return "", err
	}
	revoked, err := codes.RevokeByIssuer(ctx, nodeId)
	if err != nil || revoked == "" {
		return revoked, err
	}
	return revoked, nodes.SetInviteCode(ctx, nodeId, "")
}

// Rotate revokes the node's active code and issues a fresh one in one unit.
func (r *Registry) Rotate(ctx context.Context, nodeId string) (code *model.InviteCode, err error) {
	ctx, span := startSpan(ctx, "hierarchy.Rotate", attribute.String("node.id", nodeId))
	defer func() { endSpan(span, err) }()

	err = r.retry.run(ctx, "rotate", func(ctx context.Context) error {
		return database.Transaction(ctx, r.db, func(tx *gorm.DB) error {
			nodes, codes := r.nodes.WithTx(tx), r.codes.WithTx(tx)
			if _, err := r.revokeTx(ctx, nodes, codes, nodeId); err != nil {
				return err
			}
			c, err := r.issueTx(ctx, nodes, codes, nodeId)
			code = c
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	r.metrics.RecordCodeIssued()
	log.WithContext(ctx).Infow("invite code rotated", "node_id", nodeId, "code", code.Code)
	return code, nil
}

// Lookup returns the full record of a code for staff diagnostics.
func (r *Registry) Lookup(ctx context.Context, code string) (*model.InviteCode, error) {
	return r.codes.GetByCode(ctx, code)
}
