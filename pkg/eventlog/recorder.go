package eventlog

import (
	"sync"

	"github.com/ryandielhenn/zephyrdht/pkg/address"
)

// Change is a recorded membership change.
type Change struct {
	Self, Peer address.Address
	Added      bool
}

// Recorder keeps every event in memory. The simulation summary and the
// scenario tests read it back.
type Recorder struct {
	mu      sync.Mutex
	changes []Change
	ops     []Event
	rings   map[address.Address]int
}

func NewRecorder() *Recorder {
	return &Recorder{rings: make(map[address.Address]int)}
}

func (r *Recorder) NodeAdded(self, peer address.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, Change{Self: self, Peer: peer, Added: true})
}

func (r *Recorder) NodeRemoved(self, peer address.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, Change{Self: self, Peer: peer})
}

func (r *Recorder) RingChanged(self address.Address, size int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rings[self] = size
}

func (r *Recorder) Operation(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, ev)
}

func (r *Recorder) Changes() []Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Change(nil), r.changes...)
}

// Operations returns the recorded events matching keep, or all when keep is nil.
func (r *Recorder) Operations(keep func(Event) bool) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.ops {
		if keep == nil || keep(ev) {
			out = append(out, ev)
		}
	}
	return out
}

// Outcome returns the coordinator-side event for txn issued by actor.
func (r *Recorder) Outcome(actor address.Address, txn uint32) (Event, bool) {
	evs := r.Operations(func(ev Event) bool {
		return ev.Coordinator && ev.Actor == actor && ev.TxnID == txn
	})
	if len(evs) == 0 {
		return Event{}, false
	}
	return evs[0], true
}

// RingSize is the last ring size reported by self.
func (r *Recorder) RingSize(self address.Address) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rings[self]
}
