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
	"database/sql"

	"github.com/go-arcade/hierarchy/internal/engine/model"
	repo "github.com/go-arcade/hierarchy/internal/engine/repo/hierarchy"
	"github.com/go-arcade/hierarchy/pkg/database"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// SubtreeStats is a consistent snapshot of one node's neighbourhood.
type SubtreeStats struct {
	Node           *model.HierarchyNode   `json:"node"`
	SubtreeSize    int64                  `json:"subtreeSize"`
	DirectChildren int64                  `json:"directChildren"`
	Ancestors      []*model.HierarchyNode `json:"ancestors"`
	Histogram      []repo.LevelCount      `json:"histogram"`
	// CascadeInProgress is set while an unfinished cascade covers part of
	// the sub-tree, in which case block flags may be mixed.
	CascadeInProgress bool `json:"cascadeInProgress"`
}

// QueryFacade answers read-only questions about the tree. Every call runs
// in one read-only transaction on a replica when one is configured.
type QueryFacade struct {
	db    database.DB
	nodes repo.INodeRepository
	jobs  repo.ICascadeJobRepository
}

func NewQueryFacade(db database.DB, nodes repo.INodeRepository, jobs repo.ICascadeJobRepository) *QueryFacade {
	return &QueryFacade{db: db, nodes: nodes, jobs: jobs}
}

func (q *QueryFacade) read(ctx context.Context, fn func(nodes repo.INodeRepository, jobs repo.ICascadeJobRepository) error) error {
	return database.ReadDB(q.db.DB()).WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(q.nodes.WithTx(tx), q.jobs.WithTx(tx))
	}, &sql.TxOptions{ReadOnly: true})
}

// SubtreeSize counts the strict descendants of nodeId.
func (q *QueryFacade) SubtreeSize(ctx context.Context, nodeId string) (int64, error) {
	var total int64
	err := q.read(ctx, func(nodes repo.INodeRepository, _ repo.ICascadeJobRepository) error {
		node, err := nodes.GetNode(ctx, nodeId)
		if err != nil {
			return err
		}
		total, err = nodes.CountDescendants(ctx, node)
		return err
	})
	return total, err
}

// DirectChildren returns the children of nodeId ordered by node id.
func (q *QueryFacade) DirectChildren(ctx context.Context, nodeId string) ([]*model.HierarchyNode, error) {
	var children []*model.HierarchyNode
	err := q.read(ctx, func(nodes repo.INodeRepository, _ repo.ICascadeJobRepository) error {
		node, err := nodes.GetNode(ctx, nodeId)
		if err != nil {
			return err
		}
		children, err = nodes.ChildrenOf(ctx, node)
		return err
	})
	return children, err
}

func (q *QueryFacade) DirectChildCount(ctx context.Context, nodeId string) (int64, error) {
	var total int64
	err := q.read(ctx, func(nodes repo.INodeRepository, _ repo.ICascadeJobRepository) error {
		node, err := nodes.GetNode(ctx, nodeId)
		if err != nil {
			return err
		}
		total, err = nodes.CountChildren(ctx, node)
		return err
	})
	return total, err
}

// AncestorChain returns the ancestors of nodeId, root first. The root has none.
func (q *QueryFacade) AncestorChain(ctx context.Context, nodeId string) ([]*model.HierarchyNode, error) {
	var chain []*model.HierarchyNode
	err := q.read(ctx, func(nodes repo.INodeRepository, _ repo.ICascadeJobRepository) error {
		var err error
		chain, err = nodes.GetAncestors(ctx, nodeId)
		return err
	})
	return chain, err
}

// Descendants returns every strict descendant of nodeId, shallowest first.
func (q *QueryFacade) Descendants(ctx context.Context, nodeId string) ([]*model.HierarchyNode, error) {
	var found []*model.HierarchyNode
	err := q.read(ctx, func(nodes repo.INodeRepository, _ repo.ICascadeJobRepository) error {
		var err error
		found, err = nodes.GetDescendants(ctx, nodeId)
		return err
	})
	return found, err
}

// DepthHistogram counts nodeId and its descendants per absolute level.
func (q *QueryFacade) DepthHistogram(ctx context.Context, nodeId string) ([]repo.LevelCount, error) {
	var buckets []repo.LevelCount
	err := q.read(ctx, func(nodes repo.INodeRepository, _ repo.ICascadeJobRepository) error {
		node, err := nodes.GetNode(ctx, nodeId)
		if err != nil {
			return err
		}
		buckets, err = nodes.DepthHistogram(ctx, node)
		return err
	})
	return buckets, err
}

// Stats gathers size, children, ancestors and histogram from one snapshot.
func (q *QueryFacade) Stats(ctx context.Context, nodeId string) (stats *SubtreeStats, err error) {
	ctx, span := startSpan(ctx, "hierarchy.Stats", attribute.String("node.id", nodeId))
	defer func() { endSpan(span, err) }()

	stats = &SubtreeStats{}
	err = q.read(ctx, func(nodes repo.INodeRepository, jobs repo.ICascadeJobRepository) error {
		node, err := nodes.GetNode(ctx, nodeId)
		if err != nil {
			return err
		}
		stats.Node = node
		if stats.SubtreeSize, err = nodes.CountDescendants(ctx, node); err != nil {
			return err
		}
		if stats.DirectChildren, err = nodes.CountChildren(ctx, node); err != nil {
			return err
		}
		if stats.Ancestors, err = nodes.GetAncestors(ctx, nodeId); err != nil {
			return err
		}
		if stats.Histogram, err = nodes.DepthHistogram(ctx, node); err != nil {
			return err
		}

		unfinished, err := jobs.ListUnfinished(ctx, node.CampaignId)
		if err != nil {
			return err
		}
		for _, job := range unfinished {
			if job.Overlaps(node.Path) {
				stats.CascadeInProgress = true
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}
