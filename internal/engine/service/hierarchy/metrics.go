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

import "time"

// MetricsRecorder receives engine activity. pkg/metrics provides the
// prometheus implementation.
type MetricsRecorder interface {
	RecordJoin(result string, duration time.Duration)
	RecordCodeIssued()
	RecordCascadeChunk(action string, nodes, revoked int)
	RecordCascadeDone(action string, duration time.Duration)
	RecordRetry(operation string)
}

type noopMetrics struct{}

func (noopMetrics) RecordJoin(string, time.Duration)        {}
func (noopMetrics) RecordCodeIssued()                       {}
func (noopMetrics) RecordCascadeChunk(string, int, int)     {}
func (noopMetrics) RecordCascadeDone(string, time.Duration) {}
func (noopMetrics) RecordRetry(string)                      {}

func orNoop(m MetricsRecorder) MetricsRecorder {
	if m == nil {
		return noopMetrics{}
	}
	return m
}
