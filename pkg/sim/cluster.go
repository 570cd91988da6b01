// Package sim runs whole clusters in one process on the lossy in-memory
// network, one global round at a time.
package sim

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrdht/pkg/address"
	"github.com/ryandielhenn/zephyrdht/pkg/clock"
	"github.com/ryandielhenn/zephyrdht/pkg/eventlog"
	"github.com/ryandielhenn/zephyrdht/pkg/gossip"
	"github.com/ryandielhenn/zephyrdht/pkg/node"
	"github.com/ryandielhenn/zephyrdht/pkg/ring"
	"github.com/ryandielhenn/zephyrdht/pkg/transport"
)

type Options struct {
	// Nodes is the cluster size when IDs is empty; nodes are then 1..Nodes.
	Nodes int
	IDs   []uint32
	// JoinEvery staggers startup: the i-th node joins at round i*JoinEvery.
	JoinEvery int64
	DropRate  float64
	Seed      uint64
	Hasher    ring.Hasher
	Gossip    gossip.Config
	TxnTTL    int64
	Logger    *zap.Logger
	// Events receives every event in addition to the cluster's recorder.
	Events eventlog.Logger
}

type member struct {
	node    *node.Node
	joinAt  int64
	started bool
}

// Cluster owns the network, the shared round clock and every node. Nodes
// run in ascending id order within a round.
type Cluster struct {
	opts       Options
	net        *transport.Network
	clock      *clock.Rounds
	events     *eventlog.Recorder
	sink       eventlog.Logger
	introducer address.Address
	members    map[uint32]*member
	order      []uint32
}

func New(opts Options) (*Cluster, error) {
	ids := slices.Clone(opts.IDs)
	if len(ids) == 0 {
		for i := 1; i <= opts.Nodes; i++ {
			ids = append(ids, uint32(i))
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("sim: no nodes")
	}
	slices.Sort(ids)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Gossip == (gossip.Config{}) {
		opts.Gossip = gossip.DefaultConfig()
	}

	c := &Cluster{
		opts:       opts,
		net:        transport.NewNetwork(transport.NetworkConfig{DropRate: opts.DropRate, Seed: opts.Seed}),
		clock:      &clock.Rounds{},
		events:     eventlog.NewRecorder(),
		introducer: address.New(ids[0], 0),
		members:    make(map[uint32]*member),
	}
	c.sink = c.events
	if opts.Events != nil {
		c.sink = eventlog.Tee{c.events, opts.Events}
	}
	for i, id := range ids {
		if _, err := c.attach(id, int64(i)*opts.JoinEvery); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Cluster) attach(id uint32, joinAt int64) (*node.Node, error) {
	ep, err := c.net.Attach(address.New(id, 0))
	if err != nil {
		return nil, fmt.Errorf("sim: attach %d: %w", id, err)
	}
	opts := []node.Option{
		node.WithGossipConfig(c.opts.Gossip),
		node.WithRand(rand.New(rand.NewPCG(c.opts.Seed, uint64(id)))),
		node.WithLogger(c.opts.Logger),
		node.WithEvents(c.sink),
	}
	if c.opts.Hasher != nil {
		opts = append(opts, node.WithHasher(c.opts.Hasher))
	}
	if c.opts.TxnTTL > 0 {
		opts = append(opts, node.WithTxnTTL(c.opts.TxnTTL))
	}
	n := node.New(ep, c.clock, opts...)
	c.members[id] = &member{node: n, joinAt: joinAt}
	c.order = append(c.order, id)
	slices.Sort(c.order)
	return n, nil
}

// Join adds a node that joins at the current round.
func (c *Cluster) Join(id uint32) (*node.Node, error) {
	if _, ok := c.members[id]; ok {
		return nil, fmt.Errorf("sim: node %d exists", id)
	}
	n, err := c.attach(id, c.clock.Now())
	if err != nil {
		return nil, err
	}
	c.startDue()
	return n, nil
}

func (c *Cluster) startDue() {
	now := c.clock.Now()
	for _, id := range c.order {
		m := c.members[id]
		if m.started || m.node.Failed() || m.joinAt > now {
			continue
		}
		if err := m.node.Start(c.introducer); err != nil {
			c.opts.Logger.Warn("start failed", zap.Uint32("id", id), zap.Error(err))
			continue
		}
		m.started = true
	}
}

// Start launches every node due at the current round.
func (c *Cluster) Start() { c.startDue() }

// Step runs one global round.
func (c *Cluster) Step() {
	c.clock.Advance()
	c.startDue()
	for _, id := range c.order {
		c.members[id].node.Round()
	}
}

func (c *Cluster) Run(rounds int) {
	for range rounds {
		c.Step()
	}
}

// RunUntil steps until done holds or max rounds have passed.
func (c *Cluster) RunUntil(max int, done func() bool) bool {
	for range max {
		if done() {
			return true
		}
		c.Step()
	}
	return done()
}

// Fail stops node id for good.
func (c *Cluster) Fail(id uint32) {
	if m, ok := c.members[id]; ok {
		m.node.Fail()
	}
}

func (c *Cluster) Node(id uint32) *node.Node {
	if m, ok := c.members[id]; ok {
		return m.node
	}
	return nil
}

// Live returns the running nodes in id order.
func (c *Cluster) Live() []*node.Node {
	var out []*node.Node
	for _, id := range c.order {
		if m := c.members[id]; m.started && !m.node.Failed() {
			out = append(out, m.node)
		}
	}
	return out
}

// Holders lists the live nodes storing key.
func (c *Cluster) Holders(key string) []address.Address {
	var out []address.Address
	for _, n := range c.Live() {
		if _, ok := n.Store().Read(key); ok {
			out = append(out, n.Addr())
		}
	}
	return out
}

// Converged reports whether every live node has size nodes on its ring.
func (c *Cluster) Converged(size int) bool {
	live := c.Live()
	if len(live) == 0 {
		return false
	}
	for _, n := range live {
		if n.Ring().Len() != size {
			return false
		}
	}
	return true
}

func (c *Cluster) Round() int64 { return c.clock.Now() }

func (c *Cluster) Events() *eventlog.Recorder { return c.events }

func (c *Cluster) Network() *transport.Network { return c.net }
