// Copyright 2026 The Armored RoT authors. All Rights Reserved.
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

// Package metrics exports root of trust counters in the Prometheus data
// model. All methods are safe to call on a nil *Collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/transparency-dev/armored-rot/internal/hw"
)

const namespace = "ark"

// Collector holds the root of trust metrics.
type Collector struct {
	reg *prometheus.Registry

	transitions  *prometheus.CounterVec
	state        *prometheus.GaugeVec
	decisions    *prometheus.CounterVec
	latchLatency prometheus.Histogram
	latchLate    prometheus.Counter
	checks       *prometheus.CounterVec
	faults       prometheus.Counter
}

// New returns a collector registered on a new registry.
func New() *Collector {
	var buckets []float64

	for _, b := range hw.LatencyBuckets {
		buckets = append(buckets, b.Seconds())
	}

	c := &Collector{
		reg: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Number of orchestrator state transitions.",
		}, []string{"from", "to"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "Current orchestrator state, 1 for the active state.",
		}, []string{"state"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "latch_decisions_total",
			Help:      "Number of committed decision latch writes.",
		}, []string{"decision"}),
		latchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "latch_commit_seconds",
			Help:      "Decision latch commit round-trip.",
			Buckets:   buckets,
		}),
		latchLate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "latch_timing_violations_total",
			Help:      "Number of commits exceeding the latch bound.",
		}),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checks_total",
			Help:      "Number of runtime checks by check and result.",
		}, []string{"check", "result"}),
		faults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faults_total",
			Help:      "Number of unrecoverable faults.",
		}),
	}

	c.reg.MustRegister(
		c.transitions,
		c.state,
		c.decisions,
		c.latchLatency,
		c.latchLate,
		c.checks,
		c.faults,
	)

	return c
}

// Registry returns the registry holding the collector metrics.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}

	return c.reg
}

// Transition records an orchestrator state change.
func (c *Collector) Transition(from string, to string) {
	if c == nil {
		return
	}

	c.transitions.WithLabelValues(from, to).Inc()
	c.state.WithLabelValues(from).Set(0)
	c.state.WithLabelValues(to).Set(1)
}

// Decision records a committed latch decision, its signature matches
// hw.DecisionLatch.OnCommit.
func (c *Collector) Decision(d hw.Decision, latency time.Duration, violation bool) {
	if c == nil {
		return
	}

	c.decisions.WithLabelValues(d.String()).Inc()
	c.latchLatency.Observe(latency.Seconds())

	if violation {
		c.latchLate.Inc()
	}
}

// Check records the outcome of a runtime check.
func (c *Collector) Check(name string, err error) {
	if c == nil {
		return
	}

	result := "ok"

	if err != nil {
		result = "failed"
	}

	c.checks.WithLabelValues(name, result).Inc()
}

// Fault records an unrecoverable fault.
func (c *Collector) Fault() {
	if c == nil {
		return
	}

	c.faults.Inc()
}
