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

// JoinState is the progress of a single join attempt.
type JoinState string

const (
	JoinCodeSubmitted JoinState = "CODE_SUBMITTED"
	JoinCodeValidated JoinState = "CODE_VALIDATED"
	JoinNodeCreated   JoinState = "NODE_CREATED"
	JoinNewCodeIssued JoinState = "NEW_CODE_ISSUED"
	JoinRejected      JoinState = "REJECTED"
)

const (
	EventRedeem  Event = "redeem"
	EventCreate  Event = "create_node"
	EventIssue   Event = "issue_code"
	EventReject  Event = "reject"
	EventDiscard Event = "discard"
)

// NewJoinStateMachine 创建加入流程状态机，每次加入尝试一个实例
func NewJoinStateMachine() *StateMachine[JoinState] {
	sm := NewWithState(JoinCodeSubmitted)

	sm.AddEventTransition(JoinCodeSubmitted, EventRedeem, JoinCodeValidated).
		AddEventTransition(JoinCodeValidated, EventCreate, JoinNodeCreated).
		AddEventTransition(JoinNodeCreated, EventIssue, JoinNewCodeIssued)

	// 任意非终止状态都可以被拒绝
	for _, s := range []JoinState{JoinCodeSubmitted, JoinCodeValidated, JoinNodeCreated} {
		sm.AddEventTransition(s, EventReject, JoinRejected)
	}
	// 事务在提交时失败，已签发的结果也要作废
	sm.AddEventTransition(JoinNewCodeIssued, EventDiscard, JoinRejected)
	return sm
}
