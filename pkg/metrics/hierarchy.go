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

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HierarchyMetricsRecorder records engine activity into the package collectors.
type HierarchyMetricsRecorder struct{}

var (
	// JoinsTotal counts join attempts by result
	JoinsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hierarchy_joins_total",
			Help: "Total number of join attempts",
		},
		[]string{"result"},
	)

	// JoinDurationSeconds measures the join unit of work including retries
	JoinDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hierarchy_join_duration_seconds",
			Help:    "Duration of join attempts in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
		},
	)

	// CodesIssuedTotal counts newly issued invite codes
	CodesIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hierarchy_codes_issued_total",
			Help: "Total number of invite codes issued",
		},
	)

	// CascadeNodesTotal counts nodes touched by cascade chunks
	CascadeNodesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hierarchy_cascade_nodes_total",
			Help: "Total number of nodes processed by cascades",
		},
		[]string{"action"},
	)

	// CascadeRevokedCodesTotal counts codes revoked by block cascades
	CascadeRevokedCodesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hierarchy_cascade_revoked_codes_total",
			Help: "Total number of invite codes revoked by cascades",
		},
	)

	// CascadeDurationSeconds measures a cascade from registration to DONE
	CascadeDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hierarchy_cascade_duration_seconds",
			Help:    "Duration of completed cascades in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 15),
		},
		[]string{"action"},
	)

	// StoreRetriesTotal counts retries of transient store errors
	StoreRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hierarchy_store_retries_total",
			Help: "Total number of retried units of work",
		},
		[]string{"operation"},
	)

	hierarchyMetricsOnce sync.Once
)

// NewHierarchyMetricsRecorder creates a new hierarchy metrics recorder
func NewHierarchyMetricsRecorder() *HierarchyMetricsRecorder {
	return &HierarchyMetricsRecorder{}
}

// SetupHierarchyMetrics registers all hierarchy collectors once
func SetupHierarchyMetrics(registry prometheus.Registerer) {
	hierarchyMetricsOnce.Do(func() {
		registry.MustRegister(
			JoinsTotal,
			JoinDurationSeconds,
			CodesIssuedTotal,
			CascadeNodesTotal,
			CascadeRevokedCodesTotal,
			CascadeDurationSeconds,
			StoreRetriesTotal,
		)
	})
}

func (r *HierarchyMetricsRecorder) RecordJoin(result string, duration time.Duration) {
	JoinsTotal.WithLabelValues(result).Inc()
	JoinDurationSeconds.Observe(duration.Seconds())
}

func (r *HierarchyMetricsRecorder) RecordCodeIssued() {
	CodesIssuedTotal.Inc()
}

func (r *HierarchyMetricsRecorder) RecordCascadeChunk(action string, nodes, revoked int) {
	CascadeNodesTotal.WithLabelValues(action).Add(float64(nodes))
	CascadeRevokedCodesTotal.Add(float64(revoked))
}

func (r *HierarchyMetricsRecorder) RecordCascadeDone(action string, duration time.Duration) {
	CascadeDurationSeconds.WithLabelValues(action).Observe(duration.Seconds())
}

func (r *HierarchyMetricsRecorder) RecordRetry(operation string) {
	StoreRetriesTotal.WithLabelValues(operation).Inc()
}
