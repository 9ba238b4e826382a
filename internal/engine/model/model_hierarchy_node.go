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

package model

import (
	"regexp"
	"strings"

	"github.com/go-arcade/hierarchy/pkg/database"
)

const (
	// RootPath is the path of every campaign root
	RootPath = "/root"
	// PathSeparator separates node id segments in a path
	PathSeparator = "/"
	// MaxPathLength bounds the path column. With 26 character ULIDs a tree
	// can be 25 levels deep below the root.
	MaxPathLength = 700
)

var nodeIdPattern = regexp.MustCompile(`^[0-9A-Za-z]+$`)

func init() {
	database.RegisterModels(&HierarchyNode{}, &InviteCode{}, &CascadeJob{})
}

// HierarchyNode is a member's position in a campaign recruitment tree.
type HierarchyNode struct {
	BaseModel
	NodeId         string  `gorm:"column:node_id;size:32;not null;uniqueIndex:uk_node_id" json:"nodeId"`                                                           // 节点ID
	CampaignId     string  `gorm:"column:campaign_id;size:64;not null;uniqueIndex:uk_campaign_member,priority:1;index:idx_campaign_path,priority:1" json:"campaignId"` // 所属活动
	MemberId       string  `gorm:"column:member_id;size:64;not null;uniqueIndex:uk_campaign_member,priority:2" json:"memberId"`                                    // 成员ID
	ParentNodeId   *string `gorm:"column:parent_node_id;size:32;index:idx_parent_node" json:"parentNodeId"`                                                        // 上级节点，根节点为空
	RootCampaignId *string `gorm:"column:root_campaign_id;size:64;uniqueIndex:uk_root_campaign" json:"-"`                                                          // 仅根节点有值，保证每个活动唯一根节点
	Level          int     `gorm:"column:level;not null" json:"level"`                                                                                             // 深度，根为0
	Path           string  `gorm:"column:path;size:700;not null;index:idx_campaign_path,priority:2" json:"path"`                                                   // 物化路径
	IsBlocked      bool    `gorm:"column:is_blocked;not null;default:false" json:"isBlocked"`                                                                      // 是否封禁
	InviteCode     string  `gorm:"column:invite_code;size:32" json:"inviteCode"`                                                                                   // 当前有效邀请码
	RegionId       string  `gorm:"column:region_id;size:64" json:"regionId"`                                                                                       // 区域提示，不校验
}

func (HierarchyNode) TableName() string {
	return "t_hierarchy_node"
}

// IsRoot reports whether the node is its campaign's root.
func (n *HierarchyNode) IsRoot() bool {
	return n.ParentNodeId == nil
}

// ParentId returns the parent node id, empty for the root.
func (n *HierarchyNode) ParentId() string {
	if n.ParentNodeId == nil {
		return ""
	}
	return *n.ParentNodeId
}

// DescendantPattern is the LIKE pattern matching every strict descendant.
// The trailing separator keeps /root/2 from matching /root/20.
func (n *HierarchyNode) DescendantPattern() string {
	return n.Path + PathSeparator + "%"
}

// ChildPath builds the path of a child with the given node id.
func (n *HierarchyNode) ChildPath(nodeId string) string {
	return n.Path + PathSeparator + nodeId
}

// PathSegments returns the node ids of the strict ancestors below the root,
// root side first, followed by the node's own id. The root has none.
func PathSegments(path string) []string {
	rest := strings.TrimPrefix(path, RootPath)
	rest = strings.TrimPrefix(rest, PathSeparator)
	if rest == "" {
		return nil
	}
	return strings.Split(rest, PathSeparator)
}

// ValidNodeId reports whether id is usable as a path segment.
func ValidNodeId(id string) bool {
	return nodeIdPattern.MatchString(id)
}
