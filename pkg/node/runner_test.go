package node

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryandielhenn/zephyrdht/pkg/address"
	"github.com/ryandielhenn/zephyrdht/pkg/clock"
	"github.com/ryandielhenn/zephyrdht/pkg/transport"
	"github.com/ryandielhenn/zephyrdht/pkg/txn"
)

const interval = 100 * time.Millisecond

func startRunners(t *testing.T, ctx context.Context, fc *clockwork.FakeClock, ids ...uint32) []*Runner {
	t.Helper()
	net := transport.NewNetwork(transport.NetworkConfig{})
	var out []*Runner
	for _, id := range ids {
		ep, err := net.Attach(address.New(id, 0))
		require.NoError(t, err)
		rounds := &clock.Rounds{}
		n := New(ep, rounds)
		require.NoError(t, n.Start(address.New(ids[0], 0)))
		r := NewRunner(n, rounds, fc, interval)
		go r.Run(ctx)
		out = append(out, r)
	}
	require.NoError(t, fc.BlockUntilContext(ctx, len(ids)))
	return out
}

func TestRunnerDrivesRounds(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fc := clockwork.NewFakeClock()
	r := startRunners(t, ctx, fc, 1)[0]

	st, err := r.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Status{Addr: "1:0", State: "in-group", Ring: []string{"1:0"}}, st)

	fc.Advance(interval)
	require.Eventually(t, func() bool {
		st, err := r.Status(ctx)
		return err == nil && st.Round == 1 && st.Heartbeat == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRunnerDoSingleNode(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := startRunners(t, ctx, clockwork.NewFakeClock(), 1)[0]

	o, err := r.Do(ctx, txn.OpCreate, "k", "v")
	require.NoError(t, err)
	assert.False(t, o.Success)
	assert.Equal(t, txn.ReasonNoReplicas, o.Reason)

	_, err = r.Do(ctx, txn.OpCreate, "k", "")
	assert.ErrorIs(t, err, ErrEmptyValue)
}

func TestRunnerDoReachesQuorum(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fc := clockwork.NewFakeClock()
	rs := startRunners(t, ctx, fc, 1, 2, 3)

	require.Eventually(t, func() bool {
		fc.Advance(interval)
		for _, r := range rs {
			st, err := r.Status(ctx)
			if err != nil || len(st.Ring) != 3 {
				return false
			}
		}
		return true
	}, 5*time.Second, time.Millisecond)

	do := func(op txn.Op, value string) txn.Outcome {
		done := make(chan txn.Outcome, 1)
		go func() {
			o, err := rs[1].Do(ctx, op, "k", value)
			if err == nil {
				done <- o
			}
		}()
		var o txn.Outcome
		require.Eventually(t, func() bool {
			fc.Advance(interval)
			select {
			case o = <-done:
				return true
			default:
				return false
			}
		}, 5*time.Second, time.Millisecond)
		return o
	}

	o := do(txn.OpCreate, "v")
	assert.True(t, o.Success)
	o = do(txn.OpRead, "")
	assert.True(t, o.Success)
	assert.Equal(t, "v", o.Value)
}

func TestRunnerStopsWithContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	fc := clockwork.NewFakeClock()
	net := transport.NewNetwork(transport.NetworkConfig{})
	ep, err := net.Attach(address.New(1, 0))
	require.NoError(t, err)
	rounds := &clock.Rounds{}
	r := NewRunner(New(ep, rounds), rounds, fc, interval)

	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	_, err = r.Status(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
