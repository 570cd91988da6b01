// Package eventlog is the structured event sink both protocols report to:
// membership changes, ring changes, and the outcome of every create, read,
// update and delete seen by either the coordinator or a replica.
package eventlog

import (
	"github.com/ryandielhenn/zephyrdht/pkg/address"
)

// Event is one operation outcome.
type Event struct {
	Actor address.Address
	// Op is "create", "read", "update", "delete", "replicate" or "deletekey".
	Op    string
	TxnID uint32
	Key   string
	Value string
	// Coordinator is set when the node that issued the operation reports the
	// quorum outcome; replicas report with Coordinator unset.
	Coordinator bool
	// Repair is set for stabilization traffic.
	Repair  bool
	Success bool
}

type Logger interface {
	NodeAdded(self, peer address.Address)
	NodeRemoved(self, peer address.Address)
	RingChanged(self address.Address, size int)
	Operation(ev Event)
}

// Nop discards everything.
type Nop struct{}

func (Nop) NodeAdded(address.Address, address.Address)   {}
func (Nop) NodeRemoved(address.Address, address.Address) {}
func (Nop) RingChanged(address.Address, int)             {}
func (Nop) Operation(Event)                              {}

// Tee fans every event out to each logger in order.
type Tee []Logger

func (t Tee) NodeAdded(self, peer address.Address) {
	for _, l := range t {
		l.NodeAdded(self, peer)
	}
}

func (t Tee) NodeRemoved(self, peer address.Address) {
	for _, l := range t {
		l.NodeRemoved(self, peer)
	}
}

func (t Tee) RingChanged(self address.Address, size int) {
	for _, l := range t {
		l.RingChanged(self, size)
	}
}

func (t Tee) Operation(ev Event) {
	for _, l := range t {
		l.Operation(ev)
	}
}
