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

// CascadeStatus is the lifecycle of a durable cascade job.
type CascadeStatus string

const (
	CascadeRunning     CascadeStatus = "RUNNING"
	CascadeInterrupted CascadeStatus = "INTERRUPTED"
	CascadeDone        CascadeStatus = "DONE"
)

var cascadeTransitions = NewCascadeStateMachine()

// NewCascadeStateMachine 创建级联任务状态机
func NewCascadeStateMachine() *StateMachine[CascadeStatus] {
	sm := NewWithState(CascadeRunning)
	sm.Allow(CascadeRunning, CascadeDone, CascadeInterrupted).
		Allow(CascadeInterrupted, CascadeRunning) // 支持恢复
	return sm
}

// CheckCascadeTransition returns an error unless from → to is a legal cascade job transition.
func CheckCascadeTransition(from, to CascadeStatus) error {
	if !cascadeTransitions.CanTransition(from, to) {
		return fmt.Errorf("invalid cascade job transition: %s → %s", from, to)
	}
	return nil
}

// Unfinished reports whether the job still owns its sub-tree.
func (s CascadeStatus) Unfinished() bool {
	return s == CascadeRunning || s == CascadeInterrupted
}
