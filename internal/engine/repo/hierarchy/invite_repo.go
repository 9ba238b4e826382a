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
	"github.com/go-arcade/hierarchy/pkg/database"
	"github.com/go-arcade/hierarchy/pkg/errs"
	"github.com/go-arcade/hierarchy/pkg/statemachine"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type IInviteCodeRepository interface {
	WithTx(tx *gorm.DB) IInviteCodeRepository
	Create(ctx context.Context, code *model.InviteCode) error
	GetByCode(ctx context.Context, code string) (*model.InviteCode, error)
	GetActiveByIssuer(ctx context.Context, nodeId string) (*model.InviteCode, error)
	Redeem(ctx context.Context, code, campaignId string) (*model.InviteCode, error)
	SetRedeemedNode(ctx context.Context, code, nodeId string) error
	RevokeByIssuer(ctx context.Context, nodeId string) (string, error)
	RevokeByIssuers(ctx context.Context, nodeIds []string) ([]string, error)
	CountActiveInSubtree(ctx context.Context, job *model.CascadeJob) (int64, error)
}

type InviteCodeRepo struct {
	db database.DB
}

func NewInviteCodeRepo(db database.DB) IInviteCodeRepository {
	return &InviteCodeRepo{db: db}
}

// WithTx returns a repository bound to tx.
func (r *InviteCodeRepo) WithTx(tx *gorm.DB) IInviteCodeRepository {
	return &InviteCodeRepo{db: database.NewGormDB(tx)}
}

func (r *InviteCodeRepo) conn(ctx context.Context) *gorm.DB {
	return r.db.DB().WithContext(ctx)
}

// Create 写入新邀请码，code 或 active_slot 冲突时返回 Conflict
func (r *InviteCodeRepo) Create(ctx context.Context, code *model.InviteCode) error {
	return Classify(r.conn(ctx).Create(code).Error, "invite code %s or an active code of node %s already exists", code.Code, code.IssuerNodeId)
}

// GetByCode 根据邀请码查询
func (r *InviteCodeRepo) GetByCode(ctx context.Context, code string) (*model.InviteCode, error) {
	var c model.InviteCode
	if err := r.conn(ctx).Where("code = ?", code).First(&c).Error; err != nil {
		return nil, Classify(err, "invite code not found")
	}
	return &c, nil
}

// GetActiveByIssuer 获取节点当前有效的邀请码
func (r *InviteCodeRepo) GetActiveByIssuer(ctx context.Context, nodeId string) (*model.InviteCode, error) {
	var c model.InviteCode
	err := r.conn(ctx).
		Where("issuer_node_id = ? AND status = ?", nodeId, statemachine.InviteActive).
		First(&c).Error
	if err != nil {
		return nil, Classify(err, "node %s has no active invite code", nodeId)
	}
	return &c, nil
}

// Redeem moves code from ACTIVE to REDEEMED with a single conditional
// update, so concurrent callers see exactly one winner. Unknown, redeemed
// and revoked codes are all reported as NotFound. An empty campaignId
// accepts a code of any campaign.
func (r *InviteCodeRepo) Redeem(ctx context.Context, code, campaignId string) (*model.InviteCode, error) {
	if err := statemachine.CheckInviteTransition(statemachine.InviteActive, statemachine.InviteRedeemed); err != nil {
		return nil, err
	}

	q := r.conn(ctx).Model(&model.InviteCode{}).
		Where("code = ? AND status = ?", code, statemachine.InviteActive)
	if campaignId != "" {
		q = q.Where("campaign_id = ?", campaignId)
	}
	res := q.Updates(map[string]any{
		"status":      statemachine.InviteRedeemed,
		"active_slot": nil,
		"redeemed_at": time.Now(),
	})
	if res.Error != nil {
		return nil, Classify(res.Error, "redeem invite code")
	}
	if res.RowsAffected != 1 {
		return nil, errs.NotFound("invite code not found")
	}
	return r.GetByCode(ctx, code)
}

// SetRedeemedNode 记录兑换产生的子节点
func (r *InviteCodeRepo) SetRedeemedNode(ctx context.Context, code, nodeId string) error {
	err := r.conn(ctx).Model(&model.InviteCode{}).
		Where("code = ?", code).
		Update("redeemed_node_id", nodeId).Error
	return Classify(err, "link invite code to node %s", nodeId)
}

// RevokeByIssuer 作废节点当前有效的邀请码，返回被作废的码，没有时返回空串
func (r *InviteCodeRepo) RevokeByIssuer(ctx context.Context, nodeId string) (string, error) {
	revoked, err := r.RevokeByIssuers(ctx, []string{nodeId})
	if err != nil || len(revoked) == 0 {
		return "", err
	}
	return revoked[0], nil
}

// RevokeByIssuers revokes every active code issued by nodeIds and returns them.
func (r *InviteCodeRepo) RevokeByIssuers(ctx context.Context, nodeIds []string) ([]string, error) {
	if len(nodeIds) == 0 {
		return nil, nil
	}
	if err := statemachine.CheckInviteTransition(statemachine.InviteActive, statemachine.InviteRevoked); err != nil {
		return nil, err
	}

	var codes []string
	err := r.conn(ctx).Model(&model.InviteCode{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("issuer_node_id IN ? AND status = ?", nodeIds, statemachine.InviteActive).
		Order("code ASC").
		Pluck("code", &codes).Error
	if err != nil {
		return nil, Classify(err, "load active codes of %d nodes", len(nodeIds))
	}
	if len(codes) == 0 {
		return nil, nil
	}

	err = r.conn(ctx).Model(&model.InviteCode{}).
		Where("code IN ? AND status = ?", codes, statemachine.InviteActive).
		Updates(map[string]any{
			"status":      statemachine.InviteRevoked,
			"active_slot": nil,
			"revoked_at":  time.Now(),
		}).Error
	if err != nil {
		return nil, Classify(err, "revoke %d invite codes", len(codes))
	}
	return codes, nil
}

// CountActiveInSubtree counts active codes issued inside the job's closed sub-tree.
func (r *InviteCodeRepo) CountActiveInSubtree(ctx context.Context, job *model.CascadeJob) (int64, error) {
	members := closedSubtree(r.conn(ctx).Model(&model.HierarchyNode{}), job.CampaignId, job.NodeId, job.Path).
		Select("node_id")

	var total int64
	err := r.conn(ctx).Model(&model.InviteCode{}).
		Where("status = ? AND issuer_node_id IN (?)", statemachine.InviteActive, members).
		Count(&total).Error
	if err != nil {
		return 0, Classify(err, "count active codes of cascade %s", job.JobId)
	}
	return total, nil
}
