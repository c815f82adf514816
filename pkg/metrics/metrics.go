// SPDX-FileCopyrightText: 2026 dtn7-coap contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package metrics provides Prometheus instrumentation for the bundle agent, the gateway and the client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dtn7_coap"

var (
	// Bundle agent
	BundlesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "bundles_total",
			Help:      "Bundles handled by the bundle agent",
		},
		[]string{"direction"},
	)
	AgentSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "sessions",
			Help:      "Currently connected application agent sessions",
		},
		[]string{"kind"},
	)

	// Gateway
	InboundADUsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "inbound_adus_total",
			Help:      "Inbound ADUs processed by the gateway, by final state",
		},
		[]string{"outcome"},
	)
	AcksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "acks_total",
			Help:      "Acknowledgements sent to the bundle agent, by status",
		},
		[]string{"status"},
	)
	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "coap_dispatch_duration_seconds",
			Help:      "Duration of the CoAP exchange with the target server",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	// Client
	ClientRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "CoAP requests issued over the bundle channel, by outcome",
		},
		[]string{"outcome"},
	)
	ClientRoundTripDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "round_trip_seconds",
			Help:      "Time between sending a request bundle and receiving the correlated reply",
			Buckets:   []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30},
		},
	)
	CorrelatorPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "correlator",
			Name:      "pending",
			Help:      "Requests awaiting a reply",
		},
	)
	CorrelatorDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "correlator",
			Name:      "dropped_total",
			Help:      "Replies dropped for an unknown or completed token",
		},
	)
)

