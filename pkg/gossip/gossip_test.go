package gossip

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryandielhenn/zephyrdht/pkg/address"
	"github.com/ryandielhenn/zephyrdht/pkg/clock"
	"github.com/ryandielhenn/zephyrdht/pkg/eventlog"
	"github.com/ryandielhenn/zephyrdht/pkg/wire"
)

type sent struct {
	to  address.Address
	msg wire.Message
}

type captureSender struct {
	out []sent
}

func (c *captureSender) Send(to address.Address, m wire.Message) error {
	c.out = append(c.out, sent{to: to, msg: m})
	return nil
}

func (c *captureSender) take() []sent {
	out := c.out
	c.out = nil
	return out
}

var (
	introducer = address.New(1, 0)
	nodeB      = address.New(2, 0)
	nodeC      = address.New(3, 0)
	nodeD      = address.New(4, 0)
)

type fixture struct {
	clk    *clock.Rounds
	out    *captureSender
	events *eventlog.Recorder
	m      *Membership
}

func newFixture(self address.Address) *fixture {
	f := &fixture{clk: &clock.Rounds{}, out: &captureSender{}, events: eventlog.NewRecorder()}
	f.m = New(self, f.clk, f.out, WithEvents(f.events), WithRand(rand.New(rand.NewPCG(1, 2))))
	return f
}

func (f *fixture) advance(n int) {
	for range n {
		f.clk.Advance()
	}
}

func TestIntroducerStartsGroup(t *testing.T) {
	t.Parallel()
	f := newFixture(introducer)
	require.Equal(t, StateUninitialized, f.m.State())
	require.NoError(t, f.m.Join(introducer))
	assert.Equal(t, StateInGroup, f.m.State())
	assert.Empty(t, f.out.take())
	assert.ErrorIs(t, f.m.Join(introducer), ErrAlreadyStarted)
}

func TestJoinSendsRequestAndRetries(t *testing.T) {
	t.Parallel()
	f := newFixture(nodeB)
	require.NoError(t, f.m.Join(introducer))
	assert.Equal(t, StateJoining, f.m.State())

	out := f.out.take()
	require.Len(t, out, 1)
	assert.Equal(t, introducer, out[0].to)
	assert.Equal(t, &wire.JoinRequest{From: nodeB, Heartbeat: 0}, out[0].msg)

	// no gossip and no retry before the retry window
	for range DefaultConfig().JoinRetry - 1 {
		f.advance(1)
		f.m.Tick()
	}
	assert.Empty(t, f.out.take())

	f.advance(1)
	f.m.Tick()
	out = f.out.take()
	require.Len(t, out, 1)
	assert.Equal(t, &wire.JoinRequest{From: nodeB, Heartbeat: DefaultConfig().JoinRetry}, out[0].msg)
}

func TestJoinRequestScenario(t *testing.T) {
	t.Parallel()
	intro := newFixture(introducer)
	require.NoError(t, intro.m.Join(introducer))
	intro.m.HandleHeartbeat(&wire.Heartbeat{From: nodeC, Heartbeat: 3})
	intro.advance(10) // nodeC is now stale but not removed

	joiner := newFixture(nodeB)
	require.NoError(t, joiner.m.Join(introducer))
	jr := joiner.out.take()[0].msg.(*wire.JoinRequest)

	intro.m.HandleJoinRequest(jr)
	e, ok := intro.m.Lookup(nodeB)
	require.True(t, ok)
	assert.Equal(t, Entry{Addr: nodeB, Heartbeat: 0, Timestamp: 10}, e)

	replies := intro.out.take()
	require.Len(t, replies, 1)
	assert.Equal(t, nodeB, replies[0].to)
	hb := replies[0].msg.(*wire.Heartbeat)
	assert.Equal(t, introducer, hb.From)
	// the whole table, stale entries included, requester included
	assert.Equal(t, []wire.GossipEntry{{Addr: nodeB, Heartbeat: 0}, {Addr: nodeC, Heartbeat: 3}}, hb.Entries)

	joiner.m.HandleHeartbeat(hb)
	assert.Equal(t, StateInGroup, joiner.m.State())
	assert.Equal(t, []address.Address{introducer, nodeC}, joiner.m.Addresses())
	assert.Contains(t, joiner.events.Changes(), eventlog.Change{Self: nodeB, Peer: introducer, Added: true})
}

func TestHeartbeatMergeIsMonotonic(t *testing.T) {
	t.Parallel()
	f := newFixture(nodeB)
	require.NoError(t, f.m.Join(introducer))

	f.m.HandleHeartbeat(&wire.Heartbeat{From: introducer, Heartbeat: 5})
	f.advance(3)

	for _, hb := range []int64{5, 4, 0} {
		f.m.HandleHeartbeat(&wire.Heartbeat{From: nodeC, Heartbeat: 1, Entries: []wire.GossipEntry{{Addr: introducer, Heartbeat: hb}}})
		e, _ := f.m.Lookup(introducer)
		assert.Equal(t, Entry{Addr: introducer, Heartbeat: 5, Timestamp: 0}, e, "heartbeat %d", hb)
	}

	f.m.HandleHeartbeat(&wire.Heartbeat{From: introducer, Heartbeat: 6})
	e, _ := f.m.Lookup(introducer)
	assert.Equal(t, Entry{Addr: introducer, Heartbeat: 6, Timestamp: 3}, e)

	// one add per peer, duplicates do not re-add
	var added int
	for _, c := range f.events.Changes() {
		if c.Added {
			added++
		}
	}
	assert.Equal(t, 2, added)
}

func TestHeartbeatIgnoresSelf(t *testing.T) {
	t.Parallel()
	f := newFixture(nodeB)
	require.NoError(t, f.m.Join(introducer))
	f.m.HandleHeartbeat(&wire.Heartbeat{From: introducer, Heartbeat: 1, Entries: []wire.GossipEntry{{Addr: nodeB, Heartbeat: 99}}})
	assert.Equal(t, 1, f.m.Len())
	_, ok := f.m.Lookup(nodeB)
	assert.False(t, ok)
}

func TestTickGossipsFreshEntriesOnly(t *testing.T) {
	t.Parallel()
	f := newFixture(introducer)
	require.NoError(t, f.m.Join(introducer))
	f.m.HandleHeartbeat(&wire.Heartbeat{From: nodeB, Heartbeat: 1})
	f.m.HandleHeartbeat(&wire.Heartbeat{From: nodeC, Heartbeat: 1})
	f.advance(6)
	f.m.HandleHeartbeat(&wire.Heartbeat{From: nodeB, Heartbeat: 2})

	f.m.Tick()
	out := f.out.take()
	require.Len(t, out, 2)
	for _, s := range out {
		hb := s.msg.(*wire.Heartbeat)
		assert.Equal(t, int64(1), hb.Heartbeat)
		assert.Equal(t, []wire.GossipEntry{{Addr: nodeB, Heartbeat: 2}}, hb.Entries)
	}
	// suspected, not removed
	_, ok := f.m.Lookup(nodeC)
	assert.True(t, ok)
}

func TestTickEvictsExpiredEntries(t *testing.T) {
	t.Parallel()
	f := newFixture(introducer)
	require.NoError(t, f.m.Join(introducer))
	f.m.HandleHeartbeat(&wire.Heartbeat{From: nodeB, Heartbeat: 1, Entries: []wire.GossipEntry{
		{Addr: nodeC, Heartbeat: 1},
		{Addr: nodeD, Heartbeat: 1},
	}})

	f.advance(int(DefaultConfig().RemoveAfter))
	f.m.HandleHeartbeat(&wire.Heartbeat{From: nodeD, Heartbeat: 2})
	f.m.Tick()
	assert.Equal(t, 3, f.m.Len(), "age equal to the remove window is kept")

	f.advance(1)
	f.m.Tick()
	// adjacent expired entries are both removed in the same round
	assert.Equal(t, []address.Address{nodeD}, f.m.Addresses())
	var removed []address.Address
	for _, c := range f.events.Changes() {
		if !c.Added {
			removed = append(removed, c.Peer)
		}
	}
	assert.Equal(t, []address.Address{nodeB, nodeC}, removed)
}

func TestPickPeersDistinct(t *testing.T) {
	t.Parallel()
	f := newFixture(introducer)
	require.NoError(t, f.m.Join(introducer))

	f.m.Tick()
	assert.Empty(t, f.out.take(), "no peers, no gossip")

	f.m.HandleHeartbeat(&wire.Heartbeat{From: nodeB, Heartbeat: 1})
	f.m.Tick()
	out := f.out.take()
	require.Len(t, out, 1)
	assert.Equal(t, nodeB, out[0].to)

	f.m.HandleHeartbeat(&wire.Heartbeat{From: nodeC, Heartbeat: 1})
	for range 20 {
		f.m.Tick()
		out = f.out.take()
		require.Len(t, out, 2)
		assert.ElementsMatch(t, []address.Address{nodeB, nodeC}, []address.Address{out[0].to, out[1].to})
	}

	f.m.HandleHeartbeat(&wire.Heartbeat{From: nodeD, Heartbeat: 1})
	seen := map[address.Address]int{}
	for range 60 {
		f.m.Tick()
		out = f.out.take()
		require.Len(t, out, 2)
		require.NotEqual(t, out[0].to, out[1].to)
		seen[out[0].to]++
		seen[out[1].to]++
	}
	assert.Len(t, seen, 3, "every peer is picked eventually")
}

func TestUninitializedTickIsNoop(t *testing.T) {
	t.Parallel()
	f := newFixture(nodeB)
	f.m.Tick()
	assert.Equal(t, int64(0), f.m.Heartbeat())
	assert.Empty(t, f.out.take())
}
