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
	"time"

	"github.com/go-arcade/hierarchy/pkg/statemachine"
)

// InviteCode is a single-use token a node hands out to recruit one child.
type InviteCode struct {
	BaseModel
	Code           string                    `gorm:"column:code;size:32;not null;uniqueIndex:uk_code" json:"code"`                 // 邀请码
	IssuerNodeId   string                    `gorm:"column:issuer_node_id;size:32;not null;index:idx_issuer" json:"issuerNodeId"` // 签发节点
	CampaignId     string                    `gorm:"column:campaign_id;size:64;not null;index:idx_code_campaign" json:"campaignId"`
	Status         statemachine.InviteStatus `gorm:"column:status;size:16;not null;index:idx_status" json:"status"`
	ActiveSlot     *string                   `gorm:"column:active_slot;size:32;uniqueIndex:uk_active_slot" json:"-"` // ACTIVE 时等于签发节点ID，保证每个节点最多一个有效码
	RedeemedNodeId string                    `gorm:"column:redeemed_node_id;size:32" json:"redeemedNodeId"`
	RedeemedAt     *time.Time                `gorm:"column:redeemed_at" json:"redeemedAt"`
	RevokedAt      *time.Time                `gorm:"column:revoked_at" json:"revokedAt"`
}

func (InviteCode) TableName() string {
	return "t_invite_code"
}

func (c *InviteCode) IsActive() bool {
	return c.Status == statemachine.InviteActive
}
