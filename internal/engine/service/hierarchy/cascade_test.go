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
	"sync"
	"testing"
	"time"

	"github.com/go-arcade/hierarchy/internal/engine/model"
	"github.com/go-arcade/hierarchy/pkg/errs"
	"github.com/go-arcade/hierarchy/pkg/statemachine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// forest builds root -> A0 -> ... -> A4 and root -> B0 -> B1.
type forest struct {
	root *model.HierarchyNode
	a    []*model.HierarchyNode
	b    []*model.HierarchyNode
}

func newForest(h *harness) *forest {
	h.t.Helper()
	root, code := h.campaign("C1")
	f := &forest{root: root}
	f.a = h.chain(code.Code, "A", 5)

	next := h.node(root.NodeId).InviteCode
	if next == "" {
		c, err := h.engine.Registry.Issue(context.Background(), root.NodeId)
		require.NoError(h.t, err)
		next = c.Code
	}
	f.b = h.chain(next, "B", 2)
	return f
}

func (h *harness) assertBlocked(nodes []*model.HierarchyNode, want bool) {
	h.t.Helper()
	for _, n := range nodes {
		assert.Equal(h.t, want, h.node(n.NodeId).IsBlocked, "node %s", n.NodeId)
	}
}

func (h *harness) assertNoActiveCodes(nodes []*model.HierarchyNode) {
	h.t.Helper()
	for _, n := range nodes {
		_, err := h.codes.GetActiveByIssuer(context.Background(), n.NodeId)
		assert.ErrorIs(h.t, err, errs.ErrNotFound, "node %s", n.NodeId)
		assert.Empty(h.t, h.node(n.NodeId).InviteCode)
	}
}

func (h *harness) assertHasActiveCode(nodes []*model.HierarchyNode) {
	h.t.Helper()
	for _, n := range nodes {
		_, err := h.codes.GetActiveByIssuer(context.Background(), n.NodeId)
		assert.NoError(h.t, err, "node %s", n.NodeId)
	}
}

func TestBlock_Subtree(t *testing.T) {
	h := newHarness(t, withChunkSize(2), withReissueParentCode())
	f := newForest(h)
	ctx := context.Background()

	var (
		mu     sync.Mutex
		events []*model.ChangeSet
	)
	h.engine.Cascade.Subscribe(func(cs *model.ChangeSet) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, cs)
	})

	cs, err := h.engine.Cascade.Block(ctx, f.a[0].NodeId)
	require.NoError(t, err)

	h.assertBlocked(f.a, true)
	h.assertNoActiveCodes(f.a)
	h.assertBlocked(append([]*model.HierarchyNode{f.root}, f.b...), false)
	h.assertHasActiveCode(append([]*model.HierarchyNode{f.root}, f.b...))

	assert.True(t, cs.Final)
	assert.Equal(t, 3, cs.Chunk)
	assert.ElementsMatch(t, nodeIds(f.a), cs.NodeIds())
	assert.Len(t, cs.RevokedCodes, 5)
	for _, ch := range cs.Changes {
		assert.False(t, ch.Before)
		assert.True(t, ch.After)
	}
	assert.False(t, cs.Timestamp.IsZero())

	mu.Lock()
	require.Len(t, events, 3)
	assert.False(t, events[0].Final)
	assert.True(t, events[2].Final)
	for _, e := range events {
		assert.Equal(t, cs.JobId, e.JobId)
		assert.Equal(t, model.ActionBlock, e.Action)
	}
	mu.Unlock()

	job, err := h.engine.Cascade.Job(ctx, cs.JobId)
	require.NoError(t, err)
	assert.Equal(t, statemachine.CascadeDone, job.Status)
	assert.EqualValues(t, 5, job.Processed)
	assert.Equal(t, 1, job.Passes)
	assert.NotNil(t, job.FinishedAt)

	h.metrics.mu.Lock()
	assert.Equal(t, 3, h.metrics.chunks)
	assert.Equal(t, 5, h.metrics.nodes)
	assert.Equal(t, 5, h.metrics.revoked)
	assert.Equal(t, 1, h.metrics.done)
	h.metrics.mu.Unlock()
}

func TestBlock_JoinThroughSubtreeFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, code := h.campaign("C1")
	m1, m1Code := h.join(code.Code, "M1")

	_, err := h.engine.Cascade.Block(ctx, m1.NodeId)
	require.NoError(t, err)

	// the code was revoked by the cascade
	_, err = h.engine.Join.Join(ctx, JoinRequest{Code: m1Code, MemberId: "M2"})
	assert.ErrorIs(t, err, errs.ErrNotFound)
	_, err = h.engine.Registry.Issue(ctx, m1.NodeId)
	assert.ErrorIs(t, err, errs.ErrForbidden)
}

func TestBlock_AlreadyBlockedStillRevokes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, code := h.campaign("C1")
	m1, m1Code := h.join(code.Code, "M1")
	require.NoError(t, h.nodes.SetBlocked(ctx, []string{m1.NodeId}, true))

	cs, err := h.engine.Cascade.Block(ctx, m1.NodeId)
	require.NoError(t, err)
	assert.Equal(t, []model.NodeChange{{NodeId: m1.NodeId, Before: true, After: true}}, cs.Changes)
	assert.Equal(t, []string{m1Code}, cs.RevokedCodes)
	assert.Equal(t, statemachine.InviteRevoked, h.code(m1Code).Status)

	again, err := h.engine.Cascade.Block(ctx, m1.NodeId)
	require.NoError(t, err)
	assert.Empty(t, again.RevokedCodes)
	assert.True(t, h.node(m1.NodeId).IsBlocked)
}

func TestUnblock_AfterBlock(t *testing.T) {
	h := newHarness(t, withChunkSize(2), withReissueParentCode())
	f := newForest(h)
	ctx := context.Background()

	_, err := h.engine.Cascade.Block(ctx, f.a[0].NodeId)
	require.NoError(t, err)
	cs, err := h.engine.Cascade.Unblock(ctx, f.a[0].NodeId)
	require.NoError(t, err)

	h.assertBlocked(f.a, false)
	assert.Empty(t, cs.RevokedCodes)
	for _, ch := range cs.Changes {
		assert.True(t, ch.Before)
		assert.False(t, ch.After)
	}
	// codes are not reissued
	h.assertNoActiveCodes(f.a)

	code, err := h.engine.Registry.Issue(ctx, f.a[2].NodeId)
	require.NoError(t, err)
	assert.Equal(t, statemachine.InviteActive, code.Status)
}

func TestUnblock_ClearsIndependentBlocks(t *testing.T) {
	h := newHarness(t)
	f := newForest(h)
	ctx := context.Background()

	_, err := h.engine.Cascade.Block(ctx, f.a[3].NodeId)
	require.NoError(t, err)
	_, err = h.engine.Cascade.Unblock(ctx, f.a[0].NodeId)
	require.NoError(t, err)

	h.assertBlocked(f.a, false)
}

func TestBlock_UnknownNode(t *testing.T) {
	h := newHarness(t)
	h.campaign("C1")

	_, err := h.engine.Cascade.Block(context.Background(), "missing")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestBlock_CancelAndResume(t *testing.T) {
	h := newHarness(t, withChunkSize(2), withReissueParentCode())
	f := newForest(h)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var once sync.Once
	h.engine.Cascade.Subscribe(func(*model.ChangeSet) { once.Do(cancel) })

	partial, err := h.engine.Cascade.Block(ctx, f.a[0].NodeId)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, partial)
	assert.Equal(t, 1, partial.Chunk)
	assert.Len(t, partial.Changes, 2)
	assert.False(t, partial.Final)

	bg := context.Background()
	job, err := h.engine.Cascade.Job(bg, partial.JobId)
	require.NoError(t, err)
	assert.Equal(t, statemachine.CascadeInterrupted, job.Status)
	assert.EqualValues(t, 2, job.Processed)

	stats, err := h.engine.Query.Stats(bg, f.a[4].NodeId)
	require.NoError(t, err)
	assert.True(t, stats.CascadeInProgress)
	stats, err = h.engine.Query.Stats(bg, f.b[0].NodeId)
	require.NoError(t, err)
	assert.False(t, stats.CascadeInProgress)

	// overlapping cascades wait for the interrupted one
	_, err = h.engine.Cascade.Unblock(bg, f.a[2].NodeId)
	assert.ErrorIs(t, err, errs.ErrConflict)
	_, err = h.engine.Cascade.Block(bg, f.root.NodeId)
	assert.ErrorIs(t, err, errs.ErrConflict)

	// disjoint ones do not
	_, err = h.engine.Cascade.Block(bg, f.b[1].NodeId)
	require.NoError(t, err)

	rest, err := h.engine.Cascade.Resume(bg, partial.JobId)
	require.NoError(t, err)
	assert.True(t, rest.Final)
	assert.Len(t, rest.Changes, 3)
	h.assertBlocked(f.a, true)
	h.assertNoActiveCodes(f.a)

	done, err := h.engine.Cascade.Resume(bg, partial.JobId)
	require.NoError(t, err)
	assert.True(t, done.Final)
	assert.Empty(t, done.Changes)

	stats, err = h.engine.Query.Stats(bg, f.a[4].NodeId)
	require.NoError(t, err)
	assert.False(t, stats.CascadeInProgress)
}

func TestResume_LiveJobConflicts(t *testing.T) {
	h := newHarness(t)
	f := newForest(h)
	ctx := context.Background()

	job := &model.CascadeJob{
		JobId:      "job-live",
		CampaignId: f.root.CampaignId,
		NodeId:     f.a[0].NodeId,
		Path:       f.a[0].Path,
		Action:     model.ActionBlock,
		Status:     statemachine.CascadeRunning,
		Passes:     1,
		LeaseUntil: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, h.jobs.Create(ctx, job))

	_, err := h.engine.Cascade.Resume(ctx, job.JobId)
	assert.ErrorIs(t, err, errs.ErrConflict)

	// a running overlapping job is retried, then surfaced as transient
	_, err = h.engine.Cascade.Block(ctx, f.a[1].NodeId)
	assert.ErrorIs(t, err, errs.ErrTransientStore)
	h.metrics.mu.Lock()
	assert.Equal(t, h.conf.RetryAttempts-1, h.metrics.retries["cascade.register"])
	h.metrics.mu.Unlock()

	stale, err := h.engine.Cascade.ResumeStale(ctx)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestResumeStale(t *testing.T) {
	h := newHarness(t, withChunkSize(2), withReissueParentCode())
	f := newForest(h)
	ctx := context.Background()

	// left behind by a crashed process
	job := &model.CascadeJob{
		JobId:      "job-crashed",
		CampaignId: f.root.CampaignId,
		NodeId:     f.a[0].NodeId,
		Path:       f.a[0].Path,
		Action:     model.ActionBlock,
		Status:     statemachine.CascadeRunning,
		Passes:     1,
		LeaseUntil: time.Now().UTC().Add(-time.Minute),
	}
	require.NoError(t, h.jobs.Create(ctx, job))

	results, err := h.engine.Cascade.ResumeStale(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, job.JobId, results[0].JobId)
	assert.True(t, results[0].Final)

	h.assertBlocked(f.a, true)
	h.assertNoActiveCodes(f.a)
	h.assertBlocked(f.b, false)

	stored, err := h.engine.Cascade.Job(ctx, job.JobId)
	require.NoError(t, err)
	assert.Equal(t, statemachine.CascadeDone, stored.Status)
}

func TestBlock_RescansMissedNodes(t *testing.T) {
	h := newHarness(t, withChunkSize(2))
	f := newForest(h)
	ctx := context.Background()

	// a writer outside the cascade flips a node the cursor already passed
	var once sync.Once
	h.engine.Cascade.Subscribe(func(cs *model.ChangeSet) {
		once.Do(func() {
			require.NoError(t, h.nodes.SetBlocked(ctx, []string{cs.Changes[0].NodeId}, false))
		})
	})

	cs, err := h.engine.Cascade.Block(ctx, f.a[0].NodeId)
	require.NoError(t, err)
	h.assertBlocked(f.a, true)
	assert.Len(t, cs.Changes, 5)

	job, err := h.engine.Cascade.Job(ctx, cs.JobId)
	require.NoError(t, err)
	assert.Equal(t, 2, job.Passes)
	assert.Equal(t, statemachine.CascadeDone, job.Status)
}

func TestCascade_DisjointConcurrent(t *testing.T) {
	h := newHarness(t, withChunkSize(1))
	f := newForest(h)
	ctx := context.Background()

	var g errgroup.Group
	g.Go(func() error {
		_, err := h.engine.Cascade.Block(ctx, f.a[0].NodeId)
		return err
	})
	g.Go(func() error {
		_, err := h.engine.Cascade.Block(ctx, f.b[0].NodeId)
		return err
	})
	require.NoError(t, g.Wait())

	h.assertBlocked(f.a, true)
	h.assertBlocked(f.b, true)
	assert.False(t, h.node(f.root.NodeId).IsBlocked)
}
