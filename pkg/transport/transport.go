// Package transport delivers raw protocol buffers between nodes without any
// guarantee: sends are fire-and-forget and may be dropped, receives are
// non-blocking drains of a bounded per-node queue polled once per round.
package transport

import (
	"errors"

	"github.com/ryandielhenn/zephyrdht/pkg/address"
)

var (
	ErrClosed   = errors.New("endpoint closed")
	ErrAttached = errors.New("address already attached")
)

// DefaultQueueSize bounds each node's inbound queue.
const DefaultQueueSize = 4096

// Endpoint is one node's attachment to the network.
type Endpoint interface {
	Addr() address.Address
	// Send hands payload to the network. A nil error does not mean delivery.
	Send(to address.Address, payload []byte) error
	// Drain returns every buffer queued since the last call.
	Drain() [][]byte
	Close() error
}
