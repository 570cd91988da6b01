package gossip

import (
	"slices"

	"github.com/ryandielhenn/zephyrdht/pkg/address"
)

// Entry is what a node knows about one peer.
type Entry struct {
	Addr      address.Address
	Heartbeat int64
	// Timestamp is the local round at which Heartbeat last grew.
	Timestamp int64
}

type memberList struct {
	entries map[address.Address]*Entry
}

func newMemberList() *memberList {
	return &memberList{entries: make(map[address.Address]*Entry)}
}

// merge applies one observed (peer, heartbeat) pair. Unknown peers are
// inserted; known peers only move forward. It reports whether the peer was
// new.
func (l *memberList) merge(addr address.Address, heartbeat, now int64) (added bool) {
	e, ok := l.entries[addr]
	if !ok {
		l.entries[addr] = &Entry{Addr: addr, Heartbeat: heartbeat, Timestamp: now}
		return true
	}
	if heartbeat > e.Heartbeat {
		e.Heartbeat = heartbeat
		e.Timestamp = now
	}
	return false
}

func (l *memberList) remove(addr address.Address) {
	delete(l.entries, addr)
}

func (l *memberList) get(addr address.Address) (Entry, bool) {
	e, ok := l.entries[addr]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (l *memberList) len() int { return len(l.entries) }

// sorted returns a copy of every entry ordered by address.
func (l *memberList) sorted() []Entry {
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, *e)
	}
	slices.SortFunc(out, func(a, b Entry) int { return address.Compare(a.Addr, b.Addr) })
	return out
}
