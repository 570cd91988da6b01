package transport

import (
	"math/rand/v2"
	"sync"

	"github.com/ryandielhenn/zephyrdht/pkg/address"
)

type NetworkConfig struct {
	// DropRate is the probability in [0,1] that a send is lost.
	DropRate float64
	// QueueSize bounds every inbound queue; sends to a full queue are lost.
	QueueSize int
	// Seed makes loss decisions reproducible.
	Seed uint64
}

// Stats counts traffic for one address.
type Stats struct {
	Sent     int
	Received int
	Dropped  int
}

// Network is an in-process lossy network. Every attached address owns a
// bounded queue; senders append to it, the owner drains it.
type Network struct {
	mu      sync.Mutex
	cfg     NetworkConfig
	rng     *rand.Rand
	inboxes map[address.Address]*[][]byte
	stats   map[address.Address]*Stats
}

func NewNetwork(cfg NetworkConfig) *Network {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	return &Network{
		cfg:     cfg,
		rng:     rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		inboxes: make(map[address.Address]*[][]byte),
		stats:   make(map[address.Address]*Stats),
	}
}

// Attach registers addr and returns its endpoint.
func (n *Network) Attach(addr address.Address) (*MemoryEndpoint, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.inboxes[addr]; ok {
		return nil, ErrAttached
	}
	n.inboxes[addr] = new([][]byte)
	n.statsFor(addr)
	return &MemoryEndpoint{net: n, addr: addr}, nil
}

// SetDropRate changes the loss probability for subsequent sends.
func (n *Network) SetDropRate(p float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cfg.DropRate = p
}

func (n *Network) Stats(addr address.Address) Stats {
	n.mu.Lock()
	defer n.mu.Unlock()
	if s, ok := n.stats[addr]; ok {
		return *s
	}
	return Stats{}
}

func (n *Network) statsFor(addr address.Address) *Stats {
	s, ok := n.stats[addr]
	if !ok {
		s = &Stats{}
		n.stats[addr] = s
	}
	return s
}

func (n *Network) send(from, to address.Address, payload []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.inboxes[from]; !ok {
		return ErrClosed
	}
	n.statsFor(from).Sent++

	q, ok := n.inboxes[to]
	if !ok || len(*q) >= n.cfg.QueueSize || (n.cfg.DropRate > 0 && n.rng.Float64() < n.cfg.DropRate) {
		n.statsFor(to).Dropped++
		return nil
	}
	*q = append(*q, append([]byte(nil), payload...))
	n.statsFor(to).Received++
	return nil
}

func (n *Network) drain(addr address.Address) [][]byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	q, ok := n.inboxes[addr]
	if !ok || len(*q) == 0 {
		return nil
	}
	out := *q
	*q = nil
	return out
}

func (n *Network) detach(addr address.Address) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.inboxes, addr)
}

// MemoryEndpoint is an Endpoint on a Network.
type MemoryEndpoint struct {
	net  *Network
	addr address.Address
}

func (e *MemoryEndpoint) Addr() address.Address { return e.addr }

func (e *MemoryEndpoint) Send(to address.Address, payload []byte) error {
	return e.net.send(e.addr, to, payload)
}

func (e *MemoryEndpoint) Drain() [][]byte { return e.net.drain(e.addr) }

// Close detaches the address; traffic to it is lost from then on.
func (e *MemoryEndpoint) Close() error {
	e.net.detach(e.addr)
	return nil
}
