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
	"regexp"
	"testing"

	"github.com/go-arcade/hierarchy/pkg/errs"
	"github.com/go-arcade/hierarchy/pkg/statemachine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitCampaign(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	root, code := h.campaign("C1")
	assert.Equal(t, "/root", root.Path)
	assert.Equal(t, 0, root.Level)
	assert.True(t, root.IsRoot())
	assert.Equal(t, code.Code, h.node(root.NodeId).InviteCode)
	assert.Equal(t, statemachine.InviteActive, code.Status)

	_, _, err := h.engine.InitCampaign(ctx, "C1", "someone-else", "")
	assert.ErrorIs(t, err, errs.ErrConflict)

	other, _ := h.campaign("C2")
	assert.NotEqual(t, root.NodeId, other.NodeId)
}

func TestIssue(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown node", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.engine.Registry.Issue(ctx, "missing")
		assert.ErrorIs(t, err, errs.ErrNotFound)
	})

	t.Run("second active code conflicts", func(t *testing.T) {
		h := newHarness(t)
		root, _ := h.campaign("C1")
		_, err := h.engine.Registry.Issue(ctx, root.NodeId)
		assert.ErrorIs(t, err, errs.ErrConflict)
	})

	t.Run("after revoke", func(t *testing.T) {
		h := newHarness(t)
		root, first := h.campaign("C1")
		require.NoError(t, h.engine.Registry.Revoke(ctx, root.NodeId))

		second, err := h.engine.Registry.Issue(ctx, root.NodeId)
		require.NoError(t, err)
		assert.NotEqual(t, first.Code, second.Code)
		assert.Equal(t, statemachine.InviteRevoked, h.code(first.Code).Status)
		assert.Equal(t, second.Code, h.node(root.NodeId).InviteCode)
	})

	t.Run("blocked node", func(t *testing.T) {
		h := newHarness(t)
		root, _ := h.campaign("C1")
		_, err := h.engine.Cascade.Block(ctx, root.NodeId)
		require.NoError(t, err)

		_, err = h.engine.Registry.Issue(ctx, root.NodeId)
		assert.ErrorIs(t, err, errs.ErrForbidden)
	})
}

func TestIssue_CodeFormat(t *testing.T) {
	h := newHarness(t)
	_, code := h.campaign("C1")
	assert.Regexp(t, regexp.MustCompile(`^CAND-[A-Z0-9]{8}$`), code.Code)
}

func TestIssue_CollisionRetried(t *testing.T) {
	values := []string{"CAND-AAAAAA", "CAND-AAAAAA", "CAND-BBBBBB"}
	var calls int
	gen := CodeGeneratorFunc(func() (string, error) {
		v := values[calls%len(values)]
		calls++
		return v, nil
	})
	h := newHarnessWithGenerator(t, gen)

	_, rootCode := h.campaign("C1")
	assert.Equal(t, "CAND-AAAAAA", rootCode.Code)

	// the child's first candidate collides with the root's code
	_, childCode := h.join(rootCode.Code, "M1")
	assert.Equal(t, "CAND-BBBBBB", childCode)
	assert.Equal(t, 3, calls)
}

func TestIssue_CollisionsExhausted(t *testing.T) {
	gen := CodeGeneratorFunc(func() (string, error) { return "CAND-SAMESAME", nil })
	h := newHarnessWithGenerator(t, gen)
	ctx := context.Background()

	_, rootCode := h.campaign("C1")
	_, err := h.engine.Join.Join(ctx, JoinRequest{Code: rootCode.Code, MemberId: "M1"})
	require.ErrorIs(t, err, errs.ErrConflict)

	// nothing of the attempt survived
	assert.Equal(t, statemachine.InviteActive, h.code(rootCode.Code).Status)
	_, err = h.nodes.GetNodeByMember(ctx, "C1", "M1")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestIssue_GeneratorError(t *testing.T) {
	boom := errors.New("entropy exhausted")
	h := newHarnessWithGenerator(t, CodeGeneratorFunc(func() (string, error) { return "", boom }))

	_, _, err := h.engine.InitCampaign(context.Background(), "C1", "M0", "")
	require.ErrorIs(t, err, boom)
	_, err = h.nodes.GetRoot(context.Background(), "C1")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestRevoke_Idempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	root, code := h.campaign("C1")

	require.NoError(t, h.engine.Registry.Revoke(ctx, root.NodeId))
	require.NoError(t, h.engine.Registry.Revoke(ctx, root.NodeId))

	assert.Equal(t, statemachine.InviteRevoked, h.code(code.Code).Status)
	assert.Empty(t, h.node(root.NodeId).InviteCode)

	_, err := h.engine.Join.Join(ctx, JoinRequest{Code: code.Code, MemberId: "M1"})
	assert.ErrorIs(t, err, errs.ErrNotFound)

	assert.ErrorIs(t, h.engine.Registry.Revoke(ctx, "missing"), errs.ErrNotFound)
}

func TestRotate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	root, first := h.campaign("C1")

	second, err := h.engine.Registry.Rotate(ctx, root.NodeId)
	require.NoError(t, err)
	assert.NotEqual(t, first.Code, second.Code)
	assert.Equal(t, statemachine.InviteRevoked, h.code(first.Code).Status)
	assert.Equal(t, statemachine.InviteActive, h.code(second.Code).Status)
	assert.Equal(t, second.Code, h.node(root.NodeId).InviteCode)

	// rotating a node without an active code just issues one
	require.NoError(t, h.engine.Registry.Revoke(ctx, root.NodeId))
	third, err := h.engine.Registry.Rotate(ctx, root.NodeId)
	require.NoError(t, err)
	assert.Equal(t, statemachine.InviteActive, third.Status)
}

func TestLookup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	root, code := h.campaign("C1")
	child, _ := h.join(code.Code, "M1")

	found, err := h.engine.Registry.Lookup(ctx, code.Code)
	require.NoError(t, err)
	assert.Equal(t, statemachine.InviteRedeemed, found.Status)
	assert.Equal(t, root.NodeId, found.IssuerNodeId)
	assert.Equal(t, child.NodeId, found.RedeemedNodeId)
	assert.NotNil(t, found.RedeemedAt)
	assert.Nil(t, found.ActiveSlot)

	_, err = h.engine.Registry.Lookup(ctx, "CAND-NOPE")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestRegistry_Metrics(t *testing.T) {
	h := newHarness(t)
	_, code := h.campaign("C1")
	h.join(code.Code, "M1")

	h.metrics.mu.Lock()
	defer h.metrics.mu.Unlock()
	assert.Equal(t, 2, h.metrics.issued)
	assert.Equal(t, 1, h.metrics.joins["ok"])
}
