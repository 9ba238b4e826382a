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

import "time"

const ChangeSetEventName = "hierarchy.cascade.changeset"

// NodeChange is one node's is_blocked value around a cascade chunk.
type NodeChange struct {
	NodeId string `json:"nodeId"`
	Before bool   `json:"before"`
	After  bool   `json:"after"`
}

// ChangeSet is the audit record of a cascade chunk, or of a whole cascade
// once merged. It is emitted on the event bus and never persisted here.
type ChangeSet struct {
	JobId        string        `json:"jobId"`
	CampaignId   string        `json:"campaignId"`
	NodeId       string        `json:"nodeId"`
	Action       CascadeAction `json:"action"`
	Changes      []NodeChange  `json:"changes"`
	RevokedCodes []string      `json:"revokedCodes"`
	Chunk        int           `json:"chunk"`
	Final        bool          `json:"final"`
	Timestamp    time.Time     `json:"timestamp"`
}

func (c *ChangeSet) EventName() string {
	return ChangeSetEventName
}

func (c *ChangeSet) EventType() string {
	return string(c.Action)
}

// NodeIds returns the affected node ids in change order.
func (c *ChangeSet) NodeIds() []string {
	ids := make([]string, 0, len(c.Changes))
	for _, ch := range c.Changes {
		ids = append(ids, ch.NodeId)
	}
	return ids
}

// Merge folds a later chunk into c. A node seen twice keeps its first
// Before and its latest After.
func (c *ChangeSet) Merge(other *ChangeSet) {
	if other == nil {
		return
	}
	index := make(map[string]int, len(c.Changes))
	for i, ch := range c.Changes {
		index[ch.NodeId] = i
	}
	for _, ch := range other.Changes {
		if i, ok := index[ch.NodeId]; ok {
			c.Changes[i].After = ch.After
			continue
		}
		index[ch.NodeId] = len(c.Changes)
		c.Changes = append(c.Changes, ch)
	}
	c.RevokedCodes = append(c.RevokedCodes, other.RevokedCodes...)
	c.Chunk = other.Chunk
	c.Final = other.Final
	c.Timestamp = other.Timestamp
}
