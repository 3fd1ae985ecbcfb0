// Copyright 2026 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	submissionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stepflow",
			Subsystem: "dispatch",
			Name:      "submission_count",
			Help:      "The number of submissions handled by workers, by outcome",
		}, []string{"outcome"})

	stepCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stepflow",
			Subsystem: "dispatch",
			Name:      "step_count",
			Help:      "The number of step executions, by step and result",
		}, []string{"step", "result"})

	stepDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stepflow",
			Subsystem: "dispatch",
			Name:      "step_duration_seconds",
			Help:      "Bucketed histogram of step execution time (s)",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms~32s
		}, []string{"step"})

	inflightGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "stepflow",
			Subsystem: "dispatch",
			Name:      "inflight_submissions",
			Help:      "The number of submissions being executed by this process",
		})
)

// Outcomes of a claimed submission.
const (
	outcomeClaimed     = "claimed"
	outcomeSucceeded   = "succeeded"
	outcomeFailed      = "failed"
	outcomeInterrupted = "interrupted"
	outcomeReleased    = "released"

	resultOK    = "ok"
	resultError = "error"
)

// InitMetrics registers all metrics in this file
func InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(submissionCounter)
	registry.MustRegister(stepCounter)
	registry.MustRegister(stepDurationHistogram)
	registry.MustRegister(inflightGauge)
}
