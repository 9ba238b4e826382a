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

package statemachine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 定义测试用状态
type OrderStatus string

const (
	OrderCreated  OrderStatus = "CREATED"
	OrderPaid     OrderStatus = "PAID"
	OrderShipped  OrderStatus = "SHIPPED"
	OrderCanceled OrderStatus = "CANCELED"
)

func newOrderMachine() *StateMachine[OrderStatus] {
	sm := NewWithState(OrderCreated)
	sm.Allow(OrderCreated, OrderPaid, OrderCanceled).
		Allow(OrderPaid, OrderShipped, OrderCanceled)
	return sm
}

func TestStateMachine_Basic(t *testing.T) {
	sm := newOrderMachine()
	assert.Equal(t, OrderCreated, sm.Current())

	require.NoError(t, sm.TransitionTo(OrderPaid))
	assert.True(t, sm.Is(OrderPaid))

	// 非法转移
	err := sm.TransitionTo(OrderCreated)
	assert.Error(t, err)
	assert.Equal(t, OrderPaid, sm.Current())

	assert.True(t, sm.IsTerminal(OrderShipped))
	assert.False(t, sm.IsTerminal(OrderPaid))
	assert.True(t, sm.CanTransition(OrderPaid, OrderShipped))
	assert.False(t, sm.CanTransition(OrderShipped, OrderPaid))
}

func TestStateMachine_Hooks(t *testing.T) {
	sm := newOrderMachine()

	var seen []OrderStatus
	blocked := errors.New("cancel disabled")
	sm.OnTransition(func(from, to OrderStatus, _ Event) error {
		if to == OrderCanceled {
			return blocked
		}
		seen = append(seen, to)
		return nil
	})

	require.NoError(t, sm.TransitionTo(OrderPaid))
	assert.Equal(t, []OrderStatus{OrderPaid}, seen)

	err := sm.TransitionTo(OrderCanceled)
	assert.ErrorIs(t, err, blocked)
	assert.Equal(t, OrderPaid, sm.Current())
}

func TestStateMachine_TriggerEvent(t *testing.T) {
	sm := NewWithState(OrderCreated)
	sm.AddEventTransition(OrderCreated, "pay", OrderPaid)

	require.NoError(t, sm.TriggerEvent("pay"))
	assert.Equal(t, OrderPaid, sm.Current())
	assert.Error(t, sm.TriggerEvent("pay"))
}

func TestInviteTransitions(t *testing.T) {
	assert.NoError(t, CheckInviteTransition(InviteActive, InviteRedeemed))
	assert.NoError(t, CheckInviteTransition(InviteActive, InviteRevoked))
	assert.Error(t, CheckInviteTransition(InviteRedeemed, InviteActive))
	assert.Error(t, CheckInviteTransition(InviteRevoked, InviteRedeemed))
	assert.Error(t, CheckInviteTransition(InviteRedeemed, InviteRevoked))
}

func TestJoinStateMachine(t *testing.T) {
	sm := NewJoinStateMachine()
	require.NoError(t, sm.TriggerEvent(EventRedeem))
	require.NoError(t, sm.TriggerEvent(EventCreate))
	require.NoError(t, sm.TriggerEvent(EventIssue))
	assert.Equal(t, JoinNewCodeIssued, sm.Current())
	assert.Error(t, sm.TriggerEvent(EventReject))
	require.NoError(t, sm.TriggerEvent(EventDiscard))
	assert.Equal(t, JoinRejected, sm.Current())

	rejected := NewJoinStateMachine()
	require.NoError(t, rejected.TriggerEvent(EventRedeem))
	require.NoError(t, rejected.TriggerEvent(EventReject))
	assert.True(t, rejected.IsTerminal(rejected.Current()))
}

func TestCascadeTransitions(t *testing.T) {
	assert.NoError(t, CheckCascadeTransition(CascadeRunning, CascadeInterrupted))
	assert.NoError(t, CheckCascadeTransition(CascadeInterrupted, CascadeRunning))
	assert.NoError(t, CheckCascadeTransition(CascadeRunning, CascadeDone))
	assert.Error(t, CheckCascadeTransition(CascadeDone, CascadeRunning))
	assert.Error(t, CheckCascadeTransition(CascadeInterrupted, CascadeDone))

	assert.True(t, CascadeInterrupted.Unfinished())
	assert.False(t, CascadeDone.Unfinished())
}
