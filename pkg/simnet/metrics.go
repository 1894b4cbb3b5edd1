/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package simnet

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "bnsim"

// Metrics are the prometheus collectors of one Network.
type Metrics struct {
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	collectors []prometheus.Collector

	EventsProcessed *prometheus.CounterVec
	MessagesSent    prometheus.Counter
	MessagesDropped prometheus.Counter
	FlowsStarted    prometheus.Counter
	FlowsFinished   *prometheus.CounterVec
	VirtualTime     prometheus.Gauge
}

// NewMetrics registers the network collectors against reg.
// A nil reg gets a fresh registry, so that networks never share counters.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	var gatherer prometheus.Gatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	m := &Metrics{
		registerer: reg,
		gatherer:   gatherer,
		EventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_processed_total",
			Help:      "Events consumed from the event queue, by event type.",
		}, []string{"type"}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_sent_total",
			Help:      "Session messages put on the simulated wire.",
		}),
		MessagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_dropped_total",
			Help:      "Session messages dropped by manglers or undeliverable to their target.",
		}),
		FlowsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "flows_started_total",
			Help:      "Flows started, including responders.",
		}),
		FlowsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "flows_finished_total",
			Help:      "Flows finished, by outcome.",
		}, []string{"outcome"}),
		VirtualTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "virtual_time_milliseconds",
			Help:      "Current time of the simulated clock.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.EventsProcessed,
		m.MessagesSent,
		m.MessagesDropped,
		m.FlowsStarted,
		m.FlowsFinished,
		m.VirtualTime,
	} {
		if err := reg.Register(c); err != nil {
			m.unregister()
			return nil, errors.WithMessage(err, "could not register network metrics")
		}
		m.collectors = append(m.collectors, c)
	}

	return m, nil
}

// unregister removes the collectors from the registerer, so that a later
// network can register its own under the same names.
func (m *Metrics) unregister() {
	for _, c := range m.collectors {
		m.registerer.Unregister(c)
	}
	m.collectors = nil
}

// Gatherer returns the gatherer the metrics were registered with, if it is one.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.gatherer
}

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomeKilled  = "killed"
)
