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

package etcd

import (
	"github.com/prometheus/client_golang/prometheus"
)

var etcdRequestCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "stepflow",
		Subsystem: "etcd",
		Name:      "request_count",
		Help:      "The number of etcd requests, by operation",
	}, []string{"type"})

// NewClientMetrics returns the per-operation counters passed to Wrap.
func NewClientMetrics() map[string]prometheus.Counter {
	return map[string]prometheus.Counter{
		EtcdPut: etcdRequestCounter.WithLabelValues(EtcdPut),
		EtcdGet: etcdRequestCounter.WithLabelValues(EtcdGet),
		EtcdDel: etcdRequestCounter.WithLabelValues(EtcdDel),
		EtcdTxn: etcdRequestCounter.WithLabelValues(EtcdTxn),
	}
}

// InitMetrics registers all metrics in this file
func InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(etcdRequestCounter)
}
