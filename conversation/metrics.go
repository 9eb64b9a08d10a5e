////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package conversation

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "chatsync"

// Metrics are the engine counters shared by every Controller of a process.
// A nil *Metrics records nothing.
type Metrics struct {
	messagesSent    prometheus.Counter
	messagesFailed  prometheus.Counter
	eventsApplied   prometheus.Counter
	persistFailures *prometheus.CounterVec
	pendingUploads  prometheus.Gauge
}

// NewMetrics creates the engine metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_sent_total",
			Help:      "Messages acknowledged by the server.",
		}),
		messagesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_failed_total",
			Help:      "Dispatches that left a message in the error state.",
		}),
		eventsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_applied_total",
			Help:      "Server push events applied to message stores.",
		}),
		persistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "persist_failures_total",
			Help:      "Failed message store writes by operation.",
		}, []string{"op"}),
		pendingUploads: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "pending_uploads",
			Help:      "Uploads tracked by the upload coordinator.",
		}),
	}

	for _, c := range []prometheus.Collector{m.messagesSent, m.messagesFailed,
		m.eventsApplied, m.persistFailures, m.pendingUploads} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "failed to register metric")
		}
	}
	return m, nil
}

func (m *Metrics) sent() {
	if m != nil {
		m.messagesSent.Inc()
	}
}

func (m *Metrics) failed() {
	if m != nil {
		m.messagesFailed.Inc()
	}
}

func (m *Metrics) applied(n int) {
	if m != nil {
		m.eventsApplied.Add(float64(n))
	}
}

func (m *Metrics) persistFailed(op string, _ error) {
	if m != nil {
		m.persistFailures.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) uploads(n int) {
	if m != nil {
		m.pendingUploads.Set(float64(n))
	}
}
