// Package discovery finds the introducer through etcd. Each node registers
// under a lease; a node joins through the oldest registration still alive,
// so every starting node picks the same live group.
package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrdht/pkg/address"
)

func NewClient(endpoints []string) (*clientv3.Client, error) {
	return clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
}

// Registry is one node's view of the etcd keyspace under prefix.
type Registry struct {
	cli    *clientv3.Client
	prefix string
	self   address.Address
	ttl    int64
	log    *zap.Logger
	lease  clientv3.LeaseID
}

func NewRegistry(cli *clientv3.Client, prefix string, self address.Address, ttl int64, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		cli:    cli,
		prefix: strings.TrimRight(prefix, "/"),
		self:   self,
		ttl:    ttl,
		log:    log.Named("discovery"),
	}
}

func nodeKey(prefix string, a address.Address) string {
	return prefix + "/nodes/" + a.String()
}

func newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.RandomizationFactor = 0.2
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = time.Minute
	b.Reset()
	return b
}

func (r *Registry) retry(ctx context.Context, what string, op func() error) error {
	return backoff.RetryNotify(op, backoff.WithContext(newBackoff(), ctx), func(err error, delay time.Duration) {
		r.log.Warn("etcd call failed, retrying", zap.String("call", what), zap.Duration("delay", delay), zap.Error(err))
	})
}

// Register puts this node under a lease and keeps the lease alive until
// ctx ends.
func (r *Registry) Register(ctx context.Context) error {
	err := r.retry(ctx, "register", func() error {
		lease, err := r.cli.Grant(ctx, r.ttl)
		if err != nil {
			return err
		}
		if _, err := r.cli.Put(ctx, nodeKey(r.prefix, r.self), r.self.String(), clientv3.WithLease(lease.ID)); err != nil {
			return err
		}
		r.lease = lease.ID
		return nil
	})
	if err != nil {
		return fmt.Errorf("register %s: %w", r.self, err)
	}

	ch, err := r.cli.KeepAlive(ctx, r.lease)
	if err != nil {
		return fmt.Errorf("keepalive %s: %w", r.self, err)
	}
	go func() {
		for range ch {
		}
		r.log.Info("lease keepalive stopped", zap.Int64("lease", int64(r.lease)))
	}()
	r.log.Info("registered", zap.Stringer("self", r.self), zap.Int64("lease", int64(r.lease)))
	return nil
}

// Introducer returns the oldest live registration, by etcd create
// revision. Registrations vanish with their lease, so when the first node
// dies the next oldest, already in its group, takes over. Call Register
// first; the result is self when no older node is alive.
func (r *Registry) Introducer(ctx context.Context) (address.Address, error) {
	var intro address.Address
	err := r.retry(ctx, "introducer", func() error {
		resp, err := r.cli.Get(ctx, r.prefix+"/nodes/", clientv3.WithPrefix())
		if err != nil {
			return err
		}
		a, ok := oldestRegistration(resp.Kvs, r.log)
		if !ok {
			return fmt.Errorf("no registrations under %s", r.prefix)
		}
		intro = a
		return nil
	})
	if err != nil {
		return address.Address{}, fmt.Errorf("find introducer: %w", err)
	}
	return intro, nil
}

func oldestRegistration(kvs []*mvccpb.KeyValue, log *zap.Logger) (address.Address, bool) {
	var (
		oldest address.Address
		rev    int64
		found  bool
	)
	for _, kv := range kvs {
		a, err := address.Parse(string(kv.Value))
		if err != nil {
			log.Warn("skipping malformed registration", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		if !found || kv.CreateRevision < rev {
			oldest, rev, found = a, kv.CreateRevision, true
		}
	}
	return oldest, found
}

// Peers lists the registered nodes other than this one.
func (r *Registry) Peers(ctx context.Context) ([]address.Address, error) {
	resp, err := r.cli.Get(ctx, r.prefix+"/nodes/", clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	return parsePeers(resp.Kvs, r.self, r.log), nil
}

func parsePeers(kvs []*mvccpb.KeyValue, self address.Address, log *zap.Logger) []address.Address {
	out := make([]address.Address, 0, len(kvs))
	for _, kv := range kvs {
		a, err := address.Parse(string(kv.Value))
		if err != nil {
			log.Warn("skipping malformed registration", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		if a == self {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Close revokes the lease, dropping the registration at once.
func (r *Registry) Close(ctx context.Context) error {
	if r.lease == clientv3.NoLease {
		return nil
	}
	_, err := r.cli.Revoke(ctx, r.lease)
	return err
}
