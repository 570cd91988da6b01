package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/api/v3/mvccpb"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ryandielhenn/zephyrdht/pkg/address"
)

func TestKeys(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "/zephyrdht/nodes/16777343:7000", nodeKey("/zephyrdht", address.New(16777343, 7000)))

	r := NewRegistry(nil, "/zephyrdht/", address.New(1, 0), 10, nil)
	assert.Equal(t, "/zephyrdht", r.prefix)
}

func TestParsePeersSkipsSelfAndGarbage(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zap.WarnLevel)
	self := address.New(1, 7000)
	kvs := []*mvccpb.KeyValue{
		{Key: []byte("/p/nodes/1:7000"), Value: []byte("1:7000")},
		{Key: []byte("/p/nodes/2:7000"), Value: []byte("2:7000")},
		{Key: []byte("/p/nodes/bad"), Value: []byte("bad")},
		{Key: []byte("/p/nodes/3:7001"), Value: []byte("3:7001")},
	}
	got := parsePeers(kvs, self, zap.New(core))
	assert.Equal(t, []address.Address{address.New(2, 7000), address.New(3, 7001)}, got)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "skipping malformed registration", logs.All()[0].Message)
}

func TestOldestRegistrationIntroduces(t *testing.T) {
	t.Parallel()
	reg := func(a string, rev int64) *mvccpb.KeyValue {
		return &mvccpb.KeyValue{Key: []byte("/p/nodes/" + a), Value: []byte(a), CreateRevision: rev}
	}
	log := zap.NewNop()

	// first node up: only itself is registered
	got, ok := oldestRegistration([]*mvccpb.KeyValue{reg("1:7000", 5)}, log)
	require.True(t, ok)
	assert.Equal(t, address.New(1, 7000), got)

	// two nodes starting together agree on the older one
	both := []*mvccpb.KeyValue{reg("2:7000", 9), reg("1:7000", 8)}
	got, _ = oldestRegistration(both, log)
	assert.Equal(t, address.New(1, 7000), got)

	// introducer 1 died and its lease expired: a late node joins the survivors
	late := []*mvccpb.KeyValue{reg("2:7000", 9), reg("bad", 3), reg("3:7000", 12), reg("4:7000", 40)}
	got, ok = oldestRegistration(late, log)
	require.True(t, ok)
	assert.Equal(t, address.New(2, 7000), got)

	_, ok = oldestRegistration(nil, log)
	assert.False(t, ok)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil, "/p", address.New(1, 0), 10, nil)
	calls := 0
	boom := errors.New("boom")
	err := r.retry(context.Background(), "test", func() error {
		calls++
		if calls < 3 {
			return boom
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = r.retry(context.Background(), "test", func() error {
		calls++
		return backoff.Permanent(boom)
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestCloseWithoutLease(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil, "/p", address.New(1, 0), 10, nil)
	assert.NoError(t, r.Close(context.Background()))
}
