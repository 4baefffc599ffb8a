// Copyright 2025 Tom Barlow
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

// Package metrics holds the Prometheus collectors for orchestrator activity.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// builds counts finished builds by processor family and outcome
	builds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embctl_builds_total",
			Help: "Total builds by processor family and outcome",
		},
		[]string{"family", "outcome"},
	)

	// buildDuration observes wall-clock build time
	buildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "embctl_build_duration_seconds",
			Help:    "Build duration by processor family",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"family"},
	)

	// flashes counts programming attempts by tool and outcome
	flashes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embctl_flash_total",
			Help: "Total flash operations by tool and outcome",
		},
		[]string{"tool", "outcome"},
	)

	// debugSessions counts debug session starts by outcome
	debugSessions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embctl_debug_sessions_total",
			Help: "Total debug session starts by processor family and outcome",
		},
		[]string{"family", "outcome"},
	)

	// debugActive is 1 while a debug session is live
	debugActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "embctl_debug_session_active",
			Help: "Whether a debug session is currently active",
		},
	)

	// busyRejections counts occupancy conflicts
	busyRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embctl_busy_rejections_total",
			Help: "Operations rejected because their slot was occupied",
		},
		[]string{"operation"},
	)

	// detected counts toolchains found by detection
	detected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embctl_toolchains_detected_total",
			Help: "Toolchains found by detection by family",
		},
		[]string{"family"},
	)

	// registered tracks registry size
	registered = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "embctl_toolchains_registered",
			Help: "Toolchains in the registry by family",
		},
		[]string{"family"},
	)

	// watchRebuilds counts watch-triggered rebuild decisions
	watchRebuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embctl_watch_rebuilds_total",
			Help: "Watch mode rebuild triggers by result",
		},
		[]string{"result"},
	)
)

// Outcome label values.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeAdvisory = "advisory"
)

// Watch result label values.
const (
	WatchTriggered   = "triggered"
	WatchRateLimited = "rate_limited"
	WatchBusy        = "busy"
)

// RecordBuild records a finished build.
func RecordBuild(family string, success bool, d time.Duration) {
	builds.WithLabelValues(family, outcome(success)).Inc()
	buildDuration.WithLabelValues(family).Observe(d.Seconds())
}

// RecordFlash records a flash attempt.
func RecordFlash(tool, outcome string) {
	flashes.WithLabelValues(tool, outcome).Inc()
}

// RecordDebugStart records a debug start attempt.
func RecordDebugStart(family, outcome string) {
	debugSessions.WithLabelValues(family, outcome).Inc()
}

// SetDebugActive flips the active session gauge.
func SetDebugActive(active bool) {
	if active {
		debugActive.Set(1)
		return
	}
	debugActive.Set(0)
}

// RecordBusy records an occupancy conflict.
func RecordBusy(operation string) {
	busyRejections.WithLabelValues(operation).Inc()
}

// RecordDetected records toolchains found by one detection run.
func RecordDetected(family string, n int) {
	detected.WithLabelValues(family).Add(float64(n))
}

// SetRegistered sets the registry size for a family.
func SetRegistered(family string, n int) {
	registered.WithLabelValues(family).Set(float64(n))
}

// RecordWatch records a watch-mode rebuild decision.
func RecordWatch(result string) {
	watchRebuilds.WithLabelValues(result).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func outcome(success bool) string {
	if success {
		return OutcomeSuccess
	}
	return OutcomeFailure
}
