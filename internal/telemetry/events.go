package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ryandielhenn/zephyrdht/pkg/address"
	"github.com/ryandielhenn/zephyrdht/pkg/eventlog"
)

var (
	MembershipEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "membership_events_total",
			Help:      "Peers added to or removed from the membership table.",
		},
		[]string{"event"},
	)

	Operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Operation outcomes, by coordinator or replica role.",
		},
		[]string{"op", "role", "outcome"},
	)

	RingSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ring_size",
			Help:      "Nodes on the most recently installed ring.",
		},
	)
)

// Events is an eventlog.Logger that turns protocol events into metrics.
// One process runs one node, so the self address is not a label.
type Events struct{}

var _ eventlog.Logger = Events{}

func (Events) NodeAdded(address.Address, address.Address) {
	MembershipEvents.WithLabelValues("added").Inc()
}

func (Events) NodeRemoved(address.Address, address.Address) {
	MembershipEvents.WithLabelValues("removed").Inc()
}

func (Events) RingChanged(_ address.Address, size int) {
	RingSize.Set(float64(size))
}

func (Events) Operation(ev eventlog.Event) {
	role := "replica"
	if ev.Coordinator {
		role = "coordinator"
	}
	outcome := "fail"
	if ev.Success {
		outcome = "success"
	}
	Operations.WithLabelValues(ev.Op, role, outcome).Inc()
}
