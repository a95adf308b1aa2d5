// Copyright 2025 Gatehouse Team
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

var (
	// FunnelTransitionsTotal counts verification funnel transitions
	FunnelTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_funnel_transitions_total",
			Help: "Total number of verification funnel state transitions",
		},
		[]string{"from", "to"},
	)

	// TrialsGrantedTotal counts granted trials
	TrialsGrantedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gate_trials_granted_total",
			Help: "Total number of trials granted",
		},
	)

	// TrialsTerminatedTotal counts terminated trials by trigger
	TrialsTerminatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_trials_terminated_total",
			Help: "Total number of trials terminated, by trigger",
		},
		[]string{"trigger"},
	)

	// ActiveTrials tracks the number of currently active trials
	ActiveTrials = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gate_active_trials",
			Help: "Number of currently active trials",
		},
	)

	// ReputationChecksTotal counts IP reputation lookups by outcome
	ReputationChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_reputation_checks_total",
			Help: "Total number of IP reputation lookups, by outcome",
		},
		[]string{"outcome"},
	)

	// ReputationCheckDurationSeconds measures reputation lookup latency
	ReputationCheckDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gate_reputation_check_duration_seconds",
			Help:    "Duration of IP reputation lookups in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
	)

	// TelegramRequestsTotal counts outbound bot API calls by method and outcome
	TelegramRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_telegram_requests_total",
			Help: "Total number of Telegram bot API requests, by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	// TelegramRequestDurationSeconds measures bot API call latency
	TelegramRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gate_telegram_request_duration_seconds",
			Help:    "Duration of Telegram bot API requests in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"method"},
	)

	// InvitesIssuedTotal counts invite link handouts by outcome
	InvitesIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_invites_issued_total",
			Help: "Total number of invite link handouts, by outcome",
		},
		[]string{"outcome"},
	)

	// SignatureMismatchesTotal counts stored records that failed verification
	SignatureMismatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_signature_mismatches_total",
			Help: "Total number of stored records whose signature failed verification, by record",
		},
		[]string{"record"},
	)

	// SweepCleanupsTotal counts rows removed by the hourly sweep
	SweepCleanupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_sweep_cleanups_total",
			Help: "Total number of rows cleaned up by the sweep, by target",
		},
		[]string{"target"},
	)

	// gateMetricsOnce ensures metrics are registered only once
	gateMetricsOnce sync.Once
)

// SetupGateMetrics registers all gatehouse domain metrics
func SetupGateMetrics(registry *prometheus.Registry) {
	gateMetricsOnce.Do(func() {
		registry.MustRegister(
			FunnelTransitionsTotal,
			TrialsGrantedTotal,
			TrialsTerminatedTotal,
			ActiveTrials,
			ReputationChecksTotal,
			ReputationCheckDurationSeconds,
			TelegramRequestsTotal,
			TelegramRequestDurationSeconds,
			InvitesIssuedTotal,
			SignatureMismatchesTotal,
			SweepCleanupsTotal,
		)
	})
}

// RecordFunnelTransition records a funnel state transition
func RecordFunnelTransition(from, to string) {
	FunnelTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordTrialGranted records a granted trial
func RecordTrialGranted() {
	TrialsGrantedTotal.Inc()
}

// RecordTrialTerminated records a terminated trial
func RecordTrialTerminated(trigger string) {
	TrialsTerminatedTotal.WithLabelValues(trigger).Inc()
}

// SetActiveTrials updates the active trial count
func SetActiveTrials(count int64) {
	ActiveTrials.Set(float64(count))
}

// RecordReputationCheck records an IP reputation lookup. Cache hits
// carry no duration and stay out of the latency histogram.
func RecordReputationCheck(outcome string, duration time.Duration) {
	ReputationChecksTotal.WithLabelValues(outcome).Inc()
	if duration > 0 {
		ReputationCheckDurationSeconds.Observe(duration.Seconds())
	}
}

// RecordTelegramRequest records an outbound bot API call
func RecordTelegramRequest(method, outcome string, duration time.Duration) {
	TelegramRequestsTotal.WithLabelValues(method, outcome).Inc()
	TelegramRequestDurationSeconds.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordInviteIssued records an invite link handout
func RecordInviteIssued(outcome string) {
	InvitesIssuedTotal.WithLabelValues(outcome).Inc()
}

// RecordSignatureMismatch records a stored record failing verification
func RecordSignatureMismatch(record string) {
	SignatureMismatchesTotal.WithLabelValues(record).Inc()
}

// RecordSweepCleanup records rows removed by the sweep
func RecordSweepCleanup(target string, count int64) {
	if count > 0 {
		SweepCleanupsTotal.WithLabelValues(target).Add(float64(count))
	}
}
