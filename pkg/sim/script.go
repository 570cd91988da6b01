package sim

import (
	"fmt"

	"github.com/ryandielhenn/zephyrdht/pkg/address"
	"github.com/ryandielhenn/zephyrdht/pkg/transport"
	"github.com/ryandielhenn/zephyrdht/pkg/txn"
)

// Script is a timeline of client load and failures, in rounds.
type Script struct {
	Keys     int
	CreateAt int64
	// FailAt fails the Fail highest-numbered nodes; the introducer is
	// never failed.
	FailAt   int64
	Fail     int
	ReadAt   int64
	UpdateAt int64
	DeleteAt int64
	// Settle is how long the run continues after the deletes.
	Settle int64
}

func DefaultScript() Script {
	return Script{
		Keys:     20,
		CreateAt: 40,
		FailAt:   60,
		Fail:     1,
		ReadAt:   100,
		UpdateAt: 110,
		DeleteAt: 120,
		Settle:   30,
	}
}

// Tally counts quorum outcomes for one operation.
type Tally struct {
	Success int
	Failed  int
}

type Report struct {
	Rounds int64
	Ops    map[string]Tally
	Failed []address.Address
	// Replicated is the number of keys held by exactly three live nodes
	// just before the reads.
	Replicated int
	Traffic    map[address.Address]transport.Stats
}

func (r Report) String() string {
	s := fmt.Sprintf("rounds=%d replicated=%d failed=%v", r.Rounds, r.Replicated, r.Failed)
	for _, op := range []string{"create", "read", "update", "delete"} {
		t := r.Ops[op]
		s += fmt.Sprintf(" %s=%d/%d", op, t.Success, t.Success+t.Failed)
	}
	return s
}

// Play runs s from the current round to its end and reports what
// happened.
func (c *Cluster) Play(s Script) Report {
	rep := Report{Ops: make(map[string]Tally), Traffic: make(map[address.Address]transport.Stats)}
	record := func(o txn.Outcome) {
		t := rep.Ops[o.Op.String()]
		if o.Success {
			t.Success++
		} else {
			t.Failed++
		}
		rep.Ops[o.Op.String()] = t
	}
	issue := func(op txn.Op, value func(int) string) {
		live := c.Live()
		if len(live) == 0 {
			return
		}
		for i := 0; i < s.Keys; i++ {
			coord := live[i%len(live)]
			v := ""
			if value != nil {
				v = value(i)
			}
			if _, err := coord.Submit(op, keyName(i), v, record); err != nil {
				c.opts.Logger.Sugar().Warnw("submit rejected", "op", op, "error", err)
			}
		}
	}

	end := s.DeleteAt + s.Settle
	for c.Round() < end {
		c.Step()
		switch now := c.Round(); now {
		case s.CreateAt:
			issue(txn.OpCreate, func(i int) string { return fmt.Sprintf("value-%03d", i) })
		case s.FailAt:
			rep.Failed = c.failHighest(s.Fail)
		case s.ReadAt:
			rep.Replicated = c.replicated(s.Keys)
			issue(txn.OpRead, nil)
		case s.UpdateAt:
			issue(txn.OpUpdate, func(i int) string { return fmt.Sprintf("updated-%03d", i) })
		case s.DeleteAt:
			issue(txn.OpDelete, nil)
		}
	}

	rep.Rounds = c.Round()
	for _, id := range c.order {
		a := address.New(id, 0)
		rep.Traffic[a] = c.net.Stats(a)
	}
	return rep
}

func (c *Cluster) failHighest(k int) []address.Address {
	var out []address.Address
	live := c.Live()
	for i := len(live) - 1; i >= 0 && len(out) < k; i-- {
		n := live[i]
		if n.Addr() == c.introducer {
			continue
		}
		c.Fail(n.Addr().ID)
		out = append(out, n.Addr())
	}
	return out
}

func (c *Cluster) replicated(keys int) int {
	var full int
	for i := 0; i < keys; i++ {
		if len(c.Holders(keyName(i))) == 3 {
			full++
		}
	}
	return full
}

func keyName(i int) string { return fmt.Sprintf("key-%03d", i) }
