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

type CascadeAction string

const (
	ActionBlock   CascadeAction = "BLOCK"
	ActionUnblock CascadeAction = "UNBLOCK"
)

// Target is the is_blocked value the action drives the sub-tree to.
func (a CascadeAction) Target() bool {
	return a == ActionBlock
}

// CascadeJob is the durable cursor of a chunked block or unblock.
type CascadeJob struct {
	BaseModel
	JobId      string                     `gorm:"column:job_id;size:36;not null;uniqueIndex:uk_job_id" json:"jobId"`
	CampaignId string                     `gorm:"column:campaign_id;size:64;not null;index:idx_job_campaign_status,priority:1" json:"campaignId"`
	NodeId     string                     `gorm:"column:node_id;size:32;not null" json:"nodeId"` // 级联起点
	Path       string                     `gorm:"column:path;size:700;not null" json:"path"`
	Action     CascadeAction              `gorm:"column:action;size:16;not null" json:"action"`
	Status     statemachine.CascadeStatus `gorm:"column:status;size:16;not null;index:idx_job_campaign_status,priority:2" json:"status"`
	LastNodeId string                     `gorm:"column:last_node_id;size:32;not null;default:''" json:"lastNodeId"` // 游标，已处理的最大节点ID
	Processed  int64                      `gorm:"column:processed;not null;default:0" json:"processed"`
	Chunks     int                        `gorm:"column:chunks;not null;default:0" json:"chunks"`
	Passes     int                        `gorm:"column:passes;not null;default:1" json:"passes"`
	LeaseUntil time.Time                  `gorm:"column:lease_until" json:"leaseUntil"`
	FinishedAt *time.Time                 `gorm:"column:finished_at" json:"finishedAt"`
}

func (CascadeJob) TableName() string {
	return "t_cascade_job"
}

// Covers reports whether path lies inside the job's closed sub-tree.
func (j *CascadeJob) Covers(path string) bool {
	return path == j.Path || len(path) > len(j.Path) && path[:len(j.Path)+1] == j.Path+PathSeparator
}

// Overlaps reports whether two closed sub-trees share a node.
func (j *CascadeJob) Overlaps(path string) bool {
	other := CascadeJob{Path: path}
	return j.Covers(path) || other.Covers(j.Path)
}
