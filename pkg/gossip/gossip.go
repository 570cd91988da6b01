package gossip

import (
	"errors"
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrdht/pkg/address"
	"github.com/ryandielhenn/zephyrdht/pkg/clock"
	"github.com/ryandielhenn/zephyrdht/pkg/eventlog"
	"github.com/ryandielhenn/zephyrdht/pkg/wire"
)

var ErrAlreadyStarted = errors.New("membership already started")

// State is the node's position in the join protocol.
type State uint8

const (
	StateUninitialized State = iota
	StateJoining
	StateInGroup
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateJoining:
		return "joining"
	case StateInGroup:
		return "in-group"
	default:
		return "unknown"
	}
}

// Membership is one node's view of the group. It is not safe for
// concurrent use; the node's round loop owns it.
type Membership struct {
	self   address.Address
	cfg    Config
	clock  clock.Clock
	out    Sender
	events eventlog.Logger
	log    *zap.Logger
	rng    *rand.Rand

	state      State
	heartbeat  int64
	introducer address.Address
	lastJoin   int64
	table      *memberList
}

type Option func(*Membership)

func WithConfig(cfg Config) Option {
	return func(m *Membership) { m.cfg = cfg }
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Membership) { m.log = l }
}

func WithEvents(l eventlog.Logger) Option {
	return func(m *Membership) { m.events = l }
}

// WithRand fixes the source of gossip target selection.
func WithRand(r *rand.Rand) Option {
	return func(m *Membership) { m.rng = r }
}

func New(self address.Address, clk clock.Clock, out Sender, opts ...Option) *Membership {
	m := &Membership{
		self:   self,
		cfg:    DefaultConfig(),
		clock:  clk,
		out:    out,
		events: eventlog.Nop{},
		log:    zap.NewNop(),
		table:  newMemberList(),
	}
	for _, o := range opts {
		o(m)
	}
	if m.rng == nil {
		m.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	m.log = m.log.With(zap.Stringer("node", self))
	return m
}

// Join enters the group through introducer. The introducer itself starts
// the group and is in it immediately.
func (m *Membership) Join(introducer address.Address) error {
	if m.state != StateUninitialized {
		return ErrAlreadyStarted
	}
	m.introducer = introducer
	if introducer == m.self {
		m.log.Info("starting up group")
		m.state = StateInGroup
		return nil
	}
	m.state = StateJoining
	m.sendJoin()
	return nil
}

func (m *Membership) sendJoin() {
	m.lastJoin = m.clock.Now()
	m.log.Debug("trying to join", zap.Stringer("introducer", m.introducer))
	m.send(m.introducer, &wire.JoinRequest{From: m.self, Heartbeat: m.heartbeat})
}

// HandleJoinRequest adds the requester and answers with the whole table.
func (m *Membership) HandleJoinRequest(jr *wire.JoinRequest) {
	m.merge(jr.From, jr.Heartbeat)
	m.send(jr.From, m.heartbeatMessage(false))
}

// HandleHeartbeat merges a gossip payload. Any heartbeat proves the group
// exists, so a joining node is in the group from here on.
func (m *Membership) HandleHeartbeat(hb *wire.Heartbeat) {
	if m.state != StateInGroup {
		m.log.Info("joined group", zap.Stringer("via", hb.From))
		m.state = StateInGroup
	}
	m.merge(hb.From, hb.Heartbeat)
	for _, e := range hb.Entries {
		m.merge(e.Addr, e.Heartbeat)
	}
}

func (m *Membership) merge(addr address.Address, heartbeat int64) {
	if addr == m.self {
		return
	}
	if m.table.merge(addr, heartbeat, m.clock.Now()) {
		m.events.NodeAdded(m.self, addr)
	}
}

// Tick runs one protocol round: bump the heartbeat, then either retry the
// join or evict expired peers and gossip.
func (m *Membership) Tick() {
	if m.state == StateUninitialized {
		return
	}
	m.heartbeat++
	now := m.clock.Now()

	if m.state == StateJoining {
		if now-m.lastJoin >= m.cfg.JoinRetry {
			m.sendJoin()
		}
		return
	}

	m.evict(now)

	msg := m.heartbeatMessage(true)
	for _, to := range m.pickPeers() {
		m.send(to, msg)
	}
}

// evict collects expired entries first and removes them afterwards.
func (m *Membership) evict(now int64) {
	var expired []address.Address
	for _, e := range m.table.sorted() {
		if m.cfg.expired(e, now) {
			expired = append(expired, e.Addr)
		}
	}
	for _, addr := range expired {
		m.table.remove(addr)
		m.log.Info("removed peer", zap.Stringer("peer", addr))
		m.events.NodeRemoved(m.self, addr)
	}
}

// pickPeers returns up to Fanout distinct peers chosen uniformly by a
// partial Fisher-Yates shuffle.
func (m *Membership) pickPeers() []address.Address {
	entries := m.table.sorted()
	k := min(m.cfg.Fanout, len(entries))
	for i := 0; i < k; i++ {
		j := i + m.rng.IntN(len(entries)-i)
		entries[i], entries[j] = entries[j], entries[i]
	}
	out := make([]address.Address, 0, k)
	for _, e := range entries[:k] {
		out = append(out, e.Addr)
	}
	return out
}

// heartbeatMessage carries self plus the table; fresh drops suspected peers.
func (m *Membership) heartbeatMessage(fresh bool) *wire.Heartbeat {
	now := m.clock.Now()
	hb := &wire.Heartbeat{From: m.self, Heartbeat: m.heartbeat}
	for _, e := range m.table.sorted() {
		if fresh && m.cfg.suspected(e, now) {
			continue
		}
		hb.Entries = append(hb.Entries, wire.GossipEntry{Addr: e.Addr, Heartbeat: e.Heartbeat})
	}
	return hb
}

func (m *Membership) send(to address.Address, msg wire.Message) {
	if err := m.out.Send(to, msg); err != nil {
		m.log.Debug("send failed", zap.Stringer("to", to), zap.Stringer("kind", msg.Kind()), zap.Error(err))
	}
}

func (m *Membership) Self() address.Address { return m.self }

func (m *Membership) State() State { return m.state }

func (m *Membership) Heartbeat() int64 { return m.heartbeat }

// Len is the number of known peers, self excluded.
func (m *Membership) Len() int { return m.table.len() }

// Members returns the table ordered by address.
func (m *Membership) Members() []Entry { return m.table.sorted() }

// Lookup returns the entry for addr.
func (m *Membership) Lookup(addr address.Address) (Entry, bool) { return m.table.get(addr) }

// Addresses returns the known peers ordered by address.
func (m *Membership) Addresses() []address.Address {
	entries := m.table.sorted()
	out := make([]address.Address, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Addr)
	}
	return out
}
