// Package clock provides the protocol time source: an integer round count
// advanced externally once per global round.
package clock

import "sync/atomic"

// Clock reports the current round.
type Clock interface {
	Now() int64
}

// Rounds is a Clock advanced by whoever drives the rounds.
type Rounds struct {
	n atomic.Int64
}

func (r *Rounds) Now() int64 { return r.n.Load() }

// Advance moves to the next round and returns it.
func (r *Rounds) Advance() int64 { return r.n.Add(1) }

