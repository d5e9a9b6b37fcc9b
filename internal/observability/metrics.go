// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/authio/authio/internal/auth"
)

// Metrics counts credential operations and notification deliveries. It
// implements auth.Recorder.
type Metrics struct {
	Operations    *prometheus.CounterVec
	Notifications *prometheus.CounterVec
}

var _ auth.Recorder = (*Metrics)(nil)

// NewMetrics creates the authio counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authio_credential_operations_total",
				Help: "Credential operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authio_notifications_total",
				Help: "Notification deliveries by kind and status",
			},
			[]string{"kind", "status"},
		),
	}
	reg.MustRegister(m.Operations, m.Notifications)
	return m
}

// RecordOperation implements auth.Recorder.
func (m *Metrics) RecordOperation(operation, outcome string) {
	m.Operations.WithLabelValues(operation, outcome).Inc()
}

// RecordNotification implements auth.Recorder.
func (m *Metrics) RecordNotification(kind, status string) {
	m.Notifications.WithLabelValues(kind, status).Inc()
}
