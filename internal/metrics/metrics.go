// Package metrics exports lifecycle counters to Prometheus.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrJamesThe3rd/blockbill/internal/invoice"
)

const namespace = "blockbill"

// Observer counts committed transitions and rejected operations.
type Observer struct {
	registry    *prometheus.Registry
	transitions *prometheus.CounterVec
	rejections  *prometheus.CounterVec
}

var _ invoice.Observer = (*Observer)(nil)

// New registers the counters, plus the Go runtime and process collectors, on a
// fresh registry.
func New() *Observer {
	o := &Observer{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_transitions_total",
			Help:      "Committed invoice lifecycle transitions by event kind.",
		}, []string{"kind"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_rejections_total",
			Help:      "Rejected invoice operations by operation and reason.",
		}, []string{"operation", "reason"}),
	}

	o.registry.MustRegister(
		o.transitions,
		o.rejections,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return o
}

func (o *Observer) Committed(_ context.Context, _ *invoice.Invoice, ev invoice.Event) {
	o.transitions.WithLabelValues(string(ev.Kind)).Inc()
}

func (o *Observer) Rejected(op invoice.Operation, err error) {
	o.rejections.WithLabelValues(string(op), invoice.Code(err)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (o *Observer) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{Registry: o.registry})
}

// Registry exposes the underlying registry so other components can add collectors.
func (o *Observer) Registry() *prometheus.Registry {
	return o.registry
}
