package node

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ryandielhenn/zephyrdht/pkg/clock"
	"github.com/ryandielhenn/zephyrdht/pkg/txn"
)

// Runner drives a Node in real time. It owns the node: rounds fire from a
// ticker and every outside call is queued onto the same goroutine.
type Runner struct {
	node     *Node
	rounds   *clock.Rounds
	clk      clockwork.Clock
	interval time.Duration
	reqs     chan func()
}

// NewRunner returns a Runner for n. rounds must be the clock n was built
// with; the runner advances it once per interval.
func NewRunner(n *Node, rounds *clock.Rounds, clk clockwork.Clock, interval time.Duration) *Runner {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Runner{
		node:     n,
		rounds:   rounds,
		clk:      clk,
		interval: interval,
		reqs:     make(chan func()),
	}
}

// Run blocks until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	t := r.clk.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.Chan():
			r.rounds.Advance()
			r.node.Round()
		case fn := <-r.reqs:
			fn()
		}
	}
}

// Inspect runs fn on the runner goroutine and waits for it.
func (r *Runner) Inspect(ctx context.Context, fn func(*Node)) error {
	done := make(chan struct{})
	call := func() {
		fn(r.node)
		close(done)
	}
	select {
	case r.reqs <- call:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do submits a client operation and waits for its quorum outcome.
func (r *Runner) Do(ctx context.Context, op txn.Op, key, value string) (txn.Outcome, error) {
	result := make(chan txn.Outcome, 1)
	var submitErr error
	err := r.Inspect(ctx, func(n *Node) {
		_, submitErr = n.Submit(op, key, value, func(o txn.Outcome) { result <- o })
	})
	if err != nil {
		return txn.Outcome{}, err
	}
	if submitErr != nil {
		return txn.Outcome{}, submitErr
	}
	select {
	case o := <-result:
		return o, nil
	case <-ctx.Done():
		return txn.Outcome{}, ctx.Err()
	}
}

// Status is a point-in-time view of a node.
type Status struct {
	Addr      string   `json:"addr"`
	State     string   `json:"state"`
	Round     int64    `json:"round"`
	Heartbeat int64    `json:"heartbeat"`
	Members   []string `json:"members"`
	Ring      []string `json:"ring"`
	Keys      int      `json:"keys"`
	OpenTxns  int      `json:"open_txns"`
}

func (r *Runner) Status(ctx context.Context) (Status, error) {
	var st Status
	err := r.Inspect(ctx, func(n *Node) { st = n.Status() })
	return st, err
}

// Status snapshots n. Call it from the goroutine that owns n.
func (n *Node) Status() Status {
	st := Status{
		Addr:      n.self.String(),
		State:     n.members.State().String(),
		Round:     n.clock.Now(),
		Heartbeat: n.members.Heartbeat(),
		Keys:      n.store.Len(),
		OpenTxns:  n.txns.Len(),
	}
	for _, e := range n.members.Members() {
		st.Members = append(st.Members, e.Addr.String())
	}
	for _, rn := range n.ring.Ring().Nodes() {
		st.Ring = append(st.Ring, rn.Addr.String())
	}
	return st
}
