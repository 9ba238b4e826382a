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

import "fmt"

// InviteStatus is the lifecycle of an invite code.
type InviteStatus string

const (
	InviteActive   InviteStatus = "ACTIVE"
	InviteRedeemed InviteStatus = "REDEEMED"
	InviteRevoked  InviteStatus = "REVOKED"
)

// inviteTransitions 共享的邀请码状态转移表，只读
var inviteTransitions = NewInviteStateMachine()

// NewInviteStateMachine 创建邀请码状态机
// ACTIVE 只能转移一次，REDEEMED 和 REVOKED 都是终止状态
func NewInviteStateMachine() *StateMachine[InviteStatus] {
	sm := NewWithState(InviteActive)
	sm.Allow(InviteActive, InviteRedeemed, InviteRevoked)
	return sm
}

// CheckInviteTransition returns an error unless from → to is a legal invite code transition.
func CheckInviteTransition(from, to InviteStatus) error {
	if !inviteTransitions.CanTransition(from, to) {
		return fmt.Errorf("invalid invite code transition: %s → %s", from, to)
	}
	return nil
}
