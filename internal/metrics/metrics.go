// Copyright 2026 The MottoMesh Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes Prometheus counters and gauges for the
// gateway's operational surface: connection counts, subscription
// counts, backpressure drops, and decode errors. Metrics are ambient
// observability, not part of the wire contract (spec §9 Non-goals
// exclude multi-gateway state sharing and persistence, not metrics).
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	SessionsActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mottomesh_gateway_sessions_active",
		Help: "Number of sessions currently connected, by transport.",
	}, []string{"transport"})

	SessionsAccepted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mottomesh_gateway_sessions_accepted_total",
		Help: "Total sessions accepted, by transport.",
	}, []string{"transport"})

	SessionsClosed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mottomesh_gateway_sessions_closed_total",
		Help: "Total sessions closed, by reason.",
	}, []string{"reason"})

	SubscriptionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mottomesh_gateway_subscriptions_active",
		Help: "Number of live bus subscriptions across all sessions.",
	})

	DecodeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mottomesh_gateway_decode_errors_total",
		Help: "Total frame decode failures, by kind.",
	}, []string{"kind"})

	Backpressure = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mottomesh_gateway_backpressure_total",
		Help: "Total sessions terminated due to outbound backpressure.",
	}, []string{"transport"})

	RequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mottomesh_gateway_requests_in_flight",
		Help: "Number of pending request-reply correlations across all sessions.",
	})
)

func init() {
	prometheus.MustRegister(
		SessionsActive, SessionsAccepted, SessionsClosed,
		SubscriptionsActive, DecodeErrors, Backpressure, RequestsInFlight,
	)
}
