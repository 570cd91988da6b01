package node

import (
	"errors"
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrdht/pkg/address"
	"github.com/ryandielhenn/zephyrdht/pkg/clock"
	"github.com/ryandielhenn/zephyrdht/pkg/eventlog"
	"github.com/ryandielhenn/zephyrdht/pkg/gossip"
	"github.com/ryandielhenn/zephyrdht/pkg/kv"
	"github.com/ryandielhenn/zephyrdht/pkg/ring"
	"github.com/ryandielhenn/zephyrdht/pkg/transport"
	"github.com/ryandielhenn/zephyrdht/pkg/txn"
	"github.com/ryandielhenn/zephyrdht/pkg/wire"
)

var (
	ErrStopped    = errors.New("node stopped")
	ErrInvalidOp  = errors.New("not a client operation")
	ErrEmptyValue = errors.New("value must not be empty")
)

// Node runs both protocols for one member of the cluster: gossip
// membership, the ring derived from it, the local replica store and the
// transactions this node coordinates. All methods must be called from one
// goroutine; Runner provides that for live deployments.
type Node struct {
	self   address.Address
	tr     transport.Endpoint
	clock  clock.Clock
	log    *zap.Logger
	events eventlog.Logger

	members *gossip.Membership
	ring    *ring.Manager
	store   *kv.Store
	txns    *txn.Table
	waiters map[uint32]func(txn.Outcome)

	started bool
	failed  bool
}

type options struct {
	gossip gossip.Config
	ttl    int64
	hasher ring.Hasher
	rng    *rand.Rand
	log    *zap.Logger
	events eventlog.Logger
}

type Option func(*options)

func WithGossipConfig(cfg gossip.Config) Option {
	return func(o *options) { o.gossip = cfg }
}

// WithTxnTTL sets the rounds after which an open transaction fails.
func WithTxnTTL(rounds int64) Option {
	return func(o *options) { o.ttl = rounds }
}

// WithHasher replaces the ring hash for both node and key positions.
func WithHasher(h ring.Hasher) Option {
	return func(o *options) { o.hasher = h }
}

func WithRand(r *rand.Rand) Option {
	return func(o *options) { o.rng = r }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

func WithEvents(l eventlog.Logger) Option {
	return func(o *options) { o.events = l }
}

// New wires a node to its endpoint. The node's identity is tr.Addr().
func New(tr transport.Endpoint, clk clock.Clock, opts ...Option) *Node {
	o := options{
		gossip: gossip.DefaultConfig(),
		ttl:    txn.DefaultTTL,
		hasher: ring.HashCode,
		log:    zap.NewNop(),
		events: eventlog.Nop{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	self := tr.Addr()
	n := &Node{
		self:    self,
		tr:      tr,
		clock:   clk,
		log:     o.log.With(zap.Stringer("node", self)),
		events:  o.events,
		store:   kv.NewStore(),
		txns:    txn.NewTable(o.ttl),
		waiters: make(map[uint32]func(txn.Outcome)),
	}

	gopts := []gossip.Option{
		gossip.WithConfig(o.gossip),
		gossip.WithLogger(o.log),
		gossip.WithEvents(o.events),
	}
	if o.rng != nil {
		gopts = append(gopts, gossip.WithRand(o.rng))
	}
	n.members = gossip.New(self, clk, n, gopts...)
	n.ring = ring.NewManager(self, o.hasher, n.stabilize)
	return n
}

// Start joins the group through introducer.
func (n *Node) Start(introducer address.Address) error {
	if n.failed {
		return ErrStopped
	}
	if err := n.members.Join(introducer); err != nil {
		return err
	}
	n.started = true
	return nil
}

// Fail stops the node for good: it stops taking part in rounds and leaves
// the network, so peers see it only through its silence.
func (n *Node) Fail() {
	if n.failed {
		return
	}
	n.failed = true
	n.log.Info("node failed")
	if err := n.tr.Close(); err != nil {
		n.log.Warn("closing endpoint", zap.Error(err))
	}
}

// Send encodes m and hands it to the transport.
func (n *Node) Send(to address.Address, m wire.Message) error {
	b, err := wire.Encode(m)
	if err != nil {
		return err
	}
	return n.tr.Send(to, b)
}

func (n *Node) send(to address.Address, m wire.Message) {
	if err := n.Send(to, m); err != nil {
		n.log.Debug("send failed", zap.Stringer("to", to), zap.Stringer("kind", m.Kind()), zap.Error(err))
	}
}

func (n *Node) Addr() address.Address { return n.self }

func (n *Node) Failed() bool { return n.failed }

func (n *Node) State() gossip.State { return n.members.State() }

func (n *Node) Heartbeat() int64 { return n.members.Heartbeat() }

// Members returns the peers this node believes alive.
func (n *Node) Members() []gossip.Entry { return n.members.Members() }

func (n *Node) Ring() ring.Ring { return n.ring.Ring() }

// Store exposes the local replica store.
func (n *Node) Store() *kv.Store { return n.store }

// OpenTxns is the number of transactions this node still coordinates.
func (n *Node) OpenTxns() int { return n.txns.Len() }
