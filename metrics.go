// Copyright 2026 The Clustervisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package clustervisor

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics are registered on a per-supervisor registry, so that several
// supervisors can live in one process.
type metrics struct {
	reg           *prometheus.Registry
	spawns        *prometheus.CounterVec
	spawnFailures prometheus.Counter
	exits         *prometheus.CounterVec
	storms        prometheus.Counter
	restarts      prometheus.Counter
	active        prometheus.Gauge
	disabled      prometheus.Gauge
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &metrics{
		reg: reg,
		spawns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clustervisor",
			Name:      "worker_spawns_total",
			Help:      "Successful worker spawns, including respawns.",
		}, []string{"worker"}),
		spawnFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "clustervisor",
			Name:      "worker_spawn_failures_total",
			Help:      "Worker spawns that failed.",
		}),
		exits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clustervisor",
			Name:      "worker_exits_total",
			Help:      "Worker exits by classification.",
		}, []string{"kind"}),
		storms: f.NewCounter(prometheus.CounterOpts{
			Namespace: "clustervisor",
			Name:      "worker_crash_storms_total",
			Help:      "Workers whose respawn was disabled for crashing too fast.",
		}),
		restarts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "clustervisor",
			Name:      "rolling_restarts_total",
			Help:      "Rolling restarts started.",
		}),
		active: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "clustervisor",
			Name:      "workers_active",
			Help:      "Workers currently running.",
		}),
		disabled: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "clustervisor",
			Name:      "workers_respawn_disabled",
			Help:      "Worker slots that will not be respawned.",
		}),
	}
}

func (m *metrics) spawned(id uint8) {
	m.spawns.WithLabelValues(strconv.Itoa(int(id))).Inc()
}
