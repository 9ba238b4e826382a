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
	"fmt"
	"sort"

	"github.com/go-arcade/hierarchy/internal/engine/model"
	"github.com/go-arcade/hierarchy/pkg/database"
	"github.com/go-arcade/hierarchy/pkg/errs"
	"github.com/go-arcade/hierarchy/pkg/id"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IDGenerator returns a new node id. Ids must be alphanumeric.
type IDGenerator func() string

// ProvideIDGenerator returns the production node id source.
func ProvideIDGenerator() IDGenerator {
	return id.GetUlid
}

// LevelCount is one bucket of a depth histogram.
type LevelCount struct {
	Level int   `gorm:"column:level" json:"level"`
	Count int64 `gorm:"column:total" json:"count"`
}

type INodeRepository interface {
	WithTx(tx *gorm.DB) INodeRepository
	CreateRoot(ctx context.Context, campaignId, memberId, regionId string) (*model.HierarchyNode, error)
	CreateChild(ctx context.Context, parent *model.HierarchyNode, memberId, regionId string) (*model.HierarchyNode, error)
	GetNode(ctx context.Context, nodeId string) (*model.HierarchyNode, error)
	GetNodeForUpdate(ctx context.Context, nodeId string) (*model.HierarchyNode, error)
	GetNodeByMember(ctx context.Context, campaignId, memberId string) (*model.HierarchyNode, error)
	GetRoot(ctx context.Context, campaignId string) (*model.HierarchyNode, error)
	GetRootForUpdate(ctx context.Context, campaignId string) (*model.HierarchyNode, error)
	GetAncestors(ctx context.Context, nodeId string) ([]*model.HierarchyNode, error)
	GetAncestorsByParent(ctx context.Context, nodeId string) ([]*model.HierarchyNode, error)
	GetDescendants(ctx context.Context, nodeId string) ([]*model.HierarchyNode, error)
	ChildrenOf(ctx context.Context, node *model.HierarchyNode) ([]*model.HierarchyNode, error)
	CountChildren(ctx context.Context, node *model.HierarchyNode) (int64, error)
	CountDescendants(ctx context.Context, node *model.HierarchyNode) (int64, error)
	DepthHistogram(ctx context.Context, node *model.HierarchyNode) ([]LevelCount, error)
	SubtreeChunkForUpdate(ctx context.Context, job *model.CascadeJob, limit int) ([]*model.HierarchyNode, error)
	CountMismatched(ctx context.Context, job *model.CascadeJob) (int64, error)
	SetBlocked(ctx context.Context, nodeIds []string, value bool) error
	SetInviteCode(ctx context.Context, nodeId, code string) error
	ClearInviteCodes(ctx context.Context, nodeIds []string) error
}

type NodeRepo struct {
	db    database.DB
	newId IDGenerator
}

func NewNodeRepo(db database.DB, newId IDGenerator) INodeRepository {
	return &NodeRepo{db: db, newId: newId}
}

// WithTx returns a repository bound to tx.
func (r *NodeRepo) WithTx(tx *gorm.DB) INodeRepository {
	return &NodeRepo{db: database.NewGormDB(tx), newId: r.newId}
}

func (r *NodeRepo) conn(ctx context.Context) *gorm.DB {
	return r.db.DB().WithContext(ctx)
}

// closedSubtree 节点本身及其全部后代
func closedSubtree(db *gorm.DB, campaignId, nodeId, path string) *gorm.DB {
	return db.Where("campaign_id = ? AND (node_id = ? OR path LIKE ?)", campaignId, nodeId, path+model.PathSeparator+"%")
}

// CreateRoot 创建活动根节点
func (r *NodeRepo) CreateRoot(ctx context.Context, campaignId, memberId, regionId string) (*model.HierarchyNode, error) {
	nodeId := r.newId()
	if !model.ValidNodeId(nodeId) {
		return nil, fmt.Errorf("generated node id %q is not alphanumeric", nodeId)
	}
	rootOf := campaignId
	node := &model.HierarchyNode{
		NodeId:         nodeId,
		CampaignId:     campaignId,
		MemberId:       memberId,
		RootCampaignId: &rootOf,
		Level:          0,
		Path:           model.RootPath,
		RegionId:       regionId,
	}
	if err := r.conn(ctx).Create(node).Error; err != nil {
		return nil, Classify(err, "campaign %s already has a root", campaignId)
	}
	return node, nil
}

// CreateChild 在 parent 下创建子节点，level 和 path 由父节点推导
func (r *NodeRepo) CreateChild(ctx context.Context, parent *model.HierarchyNode, memberId, regionId string) (*model.HierarchyNode, error) {
	if parent == nil {
		return nil, errs.NotFound("parent node not found")
	}
	nodeId := r.newId()
	if !model.ValidNodeId(nodeId) {
		return nil, fmt.Errorf("generated node id %q is not alphanumeric", nodeId)
	}
	path := parent.ChildPath(nodeId)
	if len(path) > model.MaxPathLength {
		return nil, errs.Forbidden("recruitment tree of campaign %s is too deep below node %s", parent.CampaignId, parent.NodeId)
	}
	parentId := parent.NodeId
	node := &model.HierarchyNode{
		NodeId:       nodeId,
		CampaignId:   parent.CampaignId,
		MemberId:     memberId,
		ParentNodeId: &parentId,
		Level:        parent.Level + 1,
		Path:         path,
		RegionId:     regionId,
	}
	if err := r.conn(ctx).Create(node).Error; err != nil {
		return nil, Classify(err, "member %s already joined campaign %s", memberId, parent.CampaignId)
	}
	return node, nil
}

func (r *NodeRepo) getNode(db *gorm.DB, nodeId string) (*model.HierarchyNode, error) {
	var n model.HierarchyNode
	if err := db.Where("node_id = ?", nodeId).First(&n).Error; err != nil {
		return nil, Classify(err, "node %s not found", nodeId)
	}
	return &n, nil
}

// GetNode 根据节点ID获取节点
func (r *NodeRepo) GetNode(ctx context.Context, nodeId string) (*model.HierarchyNode, error) {
	return r.getNode(r.conn(ctx), nodeId)
}

// GetNodeForUpdate 获取节点并加排他锁
func (r *NodeRepo) GetNodeForUpdate(ctx context.Context, nodeId string) (*model.HierarchyNode, error) {
	return r.getNode(r.conn(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), nodeId)
}

// GetNodeByMember 根据活动和成员获取节点
func (r *NodeRepo) GetNodeByMember(ctx context.Context, campaignId, memberId string) (*model.HierarchyNode, error) {
	var n model.HierarchyNode
	err := r.conn(ctx).Where("campaign_id = ? AND member_id = ?", campaignId, memberId).First(&n).Error
	if err != nil {
		return nil, Classify(err, "member %s has no node in campaign %s", memberId, campaignId)
	}
	return &n, nil
}

func (r *NodeRepo) getRoot(db *gorm.DB, campaignId string) (*model.HierarchyNode, error) {
	var n model.HierarchyNode
	if err := db.Where("root_campaign_id = ?", campaignId).First(&n).Error; err != nil {
		return nil, Classify(err, "campaign %s has no root", campaignId)
	}
	return &n, nil
}

// GetRoot 获取活动根节点
func (r *NodeRepo) GetRoot(ctx context.Context, campaignId string) (*model.HierarchyNode, error) {
	return r.getRoot(r.conn(ctx), campaignId)
}

// GetRootForUpdate 锁定活动根节点，用于串行化同一活动的级联登记
func (r *NodeRepo) GetRootForUpdate(ctx context.Context, campaignId string) (*model.HierarchyNode, error) {
	return r.getRoot(r.conn(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), campaignId)
}

// GetAncestors returns the ancestors of nodeId root first, read from the
// node's path in one query. The result always has Level entries.
func (r *NodeRepo) GetAncestors(ctx context.Context, nodeId string) ([]*model.HierarchyNode, error) {
	node, err := r.GetNode(ctx, nodeId)
	if err != nil {
		return nil, err
	}
	if node.IsRoot() {
		return []*model.HierarchyNode{}, nil
	}

	segments := model.PathSegments(node.Path)
	ids := segments[:len(segments)-1]

	var found []*model.HierarchyNode
	err = r.conn(ctx).
		Where("campaign_id = ? AND (root_campaign_id = ? OR node_id IN ?)", node.CampaignId, node.CampaignId, ids).
		Find(&found).Error
	if err != nil {
		return nil, Classify(err, "load ancestors of node %s", nodeId)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Level < found[j].Level })

	if len(found) != node.Level {
		return nil, fmt.Errorf("path %s of node %s is inconsistent: %d ancestors at level %d",
			node.Path, nodeId, len(found), node.Level)
	}
	return found, nil
}

// GetAncestorsByParent walks parent pointers up to the root.
func (r *NodeRepo) GetAncestorsByParent(ctx context.Context, nodeId string) ([]*model.HierarchyNode, error) {
	node, err := r.GetNode(ctx, nodeId)
	if err != nil {
		return nil, err
	}
	chain := make([]*model.HierarchyNode, 0, node.Level)
	seen := map[string]bool{node.NodeId: true}
	for !node.IsRoot() {
		parentId := node.ParentId()
		if seen[parentId] {
			return nil, fmt.Errorf("cycle at node %s", parentId)
		}
		seen[parentId] = true
		if node, err = r.GetNode(ctx, parentId); err != nil {
			return nil, err
		}
		chain = append(chain, node)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// GetDescendants 获取全部后代节点（不含自身），按层级排序
func (r *NodeRepo) GetDescendants(ctx context.Context, nodeId string) ([]*model.HierarchyNode, error) {
	node, err := r.GetNode(ctx, nodeId)
	if err != nil {
		return nil, err
	}
	var nodes []*model.HierarchyNode
	err = r.conn(ctx).
		Where("campaign_id = ? AND path LIKE ?", node.CampaignId, node.DescendantPattern()).
		Order("level ASC, node_id ASC").
		Find(&nodes).Error
	if err != nil {
		return nil, Classify(err, "load descendants of node %s", nodeId)
	}
	return nodes, nil
}

// ChildrenOf 获取直接子节点
func (r *NodeRepo) ChildrenOf(ctx context.Context, node *model.HierarchyNode) ([]*model.HierarchyNode, error) {
	var nodes []*model.HierarchyNode
	err := r.conn(ctx).
		Where("campaign_id = ? AND path LIKE ? AND level = ?", node.CampaignId, node.DescendantPattern(), node.Level+1).
		Order("node_id ASC").
		Find(&nodes).Error
	if err != nil {
		return nil, Classify(err, "load children of node %s", node.NodeId)
	}
	return nodes, nil
}

// CountChildren 统计直接子节点数
func (r *NodeRepo) CountChildren(ctx context.Context, node *model.HierarchyNode) (int64, error) {
	var total int64
	err := r.conn(ctx).Model(&model.HierarchyNode{}).
		Where("campaign_id = ? AND path LIKE ? AND level = ?", node.CampaignId, node.DescendantPattern(), node.Level+1).
		Count(&total).Error
	if err != nil {
		return 0, Classify(err, "count children of node %s", node.NodeId)
	}
	return total, nil
}

// CountDescendants 统计后代节点数（不含自身）
func (r *NodeRepo) CountDescendants(ctx context.Context, node *model.HierarchyNode) (int64, error) {
	var total int64
	err := r.conn(ctx).Model(&model.HierarchyNode{}).
		Where("campaign_id = ? AND path LIKE ?", node.CampaignId, node.DescendantPattern()).
		Count(&total).Error
	if err != nil {
		return 0, Classify(err, "count descendants of node %s", node.NodeId)
	}
	return total, nil
}

// DepthHistogram 按 level 统计节点自身及后代的数量
func (r *NodeRepo) DepthHistogram(ctx context.Context, node *model.HierarchyNode) ([]LevelCount, error) {
	var buckets []LevelCount
	err := closedSubtree(r.conn(ctx).Model(&model.HierarchyNode{}), node.CampaignId, node.NodeId, node.Path).
		Select("level, COUNT(*) AS total").
		Group("level").
		Order("level ASC").
		Scan(&buckets).Error
	if err != nil {
		return nil, Classify(err, "depth histogram of node %s", node.NodeId)
	}
	return buckets, nil
}

// SubtreeChunkForUpdate locks and returns up to limit nodes of the job's
// closed sub-tree whose id sorts after the job cursor.
func (r *NodeRepo) SubtreeChunkForUpdate(ctx context.Context, job *model.CascadeJob, limit int) ([]*model.HierarchyNode, error) {
	var nodes []*model.HierarchyNode
	err := closedSubtree(r.conn(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), job.CampaignId, job.NodeId, job.Path).
		Where("node_id > ?", job.LastNodeId).
		Order("node_id ASC").
		Limit(limit).
		Find(&nodes).Error
	if err != nil {
		return nil, Classify(err, "load chunk of cascade %s", job.JobId)
	}
	return nodes, nil
}

// CountMismatched counts nodes of the job's sub-tree whose block flag
// differs from the job's target.
func (r *NodeRepo) CountMismatched(ctx context.Context, job *model.CascadeJob) (int64, error) {
	var total int64
	err := closedSubtree(r.conn(ctx).Model(&model.HierarchyNode{}), job.CampaignId, job.NodeId, job.Path).
		Where("is_blocked <> ?", job.Action.Target()).
		Count(&total).Error
	if err != nil {
		return 0, Classify(err, "verify cascade %s", job.JobId)
	}
	return total, nil
}

// SetBlocked 设置封禁标记，不做级联
func (r *NodeRepo) SetBlocked(ctx context.Context, nodeIds []string, value bool) error {
	if len(nodeIds) == 0 {
		return nil
	}
	err := r.conn(ctx).Model(&model.HierarchyNode{}).
		Where("node_id IN ?", nodeIds).
		Update("is_blocked", value).Error
	return Classify(err, "set is_blocked=%t on %d nodes", value, len(nodeIds))
}

// SetInviteCode 更新节点当前有效邀请码
func (r *NodeRepo) SetInviteCode(ctx context.Context, nodeId, code string) error {
	err := r.conn(ctx).Model(&model.HierarchyNode{}).
		Where("node_id = ?", nodeId).
		Update("invite_code", code).Error
	return Classify(err, "set invite code of node %s", nodeId)
}

// ClearInviteCodes 清空节点的邀请码
func (r *NodeRepo) ClearInviteCodes(ctx context.Context, nodeIds []string) error {
	if len(nodeIds) == 0 {
		return nil
	}
	err := r.conn(ctx).Model(&model.HierarchyNode{}).
		Where("node_id IN ?", nodeIds).
		Update("invite_code", "").Error
	return Classify(err, "clear invite codes of %d nodes", len(nodeIds))
}
