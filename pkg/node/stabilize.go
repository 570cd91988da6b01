package node

import (
	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrdht/pkg/ring"
	"github.com/ryandielhenn/zephyrdht/pkg/txn"
	"github.com/ryandielhenn/zephyrdht/pkg/wire"
)

// stabilize runs after every ring install and re-sends each locally held
// key to the replicas the new ring assigns it.
func (n *Node) stabilize(r ring.Ring) {
	n.events.RingChanged(n.self, r.Len())
	keys := n.store.Keys()
	n.log.Debug("ring changed", zap.Int("size", r.Len()), zap.Int("keys", len(keys)))
	for _, k := range keys {
		n.replicate(k)
	}
}

// replicate pushes one key to its current replicas with repair creates.
// When this node is still a replica its own copy counts as the first
// success; otherwise the copy is dropped once a quorum acknowledges.
func (n *Node) replicate(key string) {
	if n.failed {
		return
	}
	value, ok := n.store.Read(key)
	if !ok {
		return
	}
	replicas := n.ring.Locate(key)
	if len(replicas) == 0 {
		return
	}

	owner := n.ring.Owns(key)

	op := txn.OpDeleteKey
	if owner {
		op = txn.OpReplicate
	}
	id := n.txns.Begin(op, key, value, n.clock.Now())
	if owner {
		n.txns.Ack(id, true, "")
	}

	for _, to := range replicas {
		if to == n.self {
			continue
		}
		n.send(to, &wire.Request{Op: wire.KindCreate, TxnID: id, From: n.self, Key: key, Value: value, Role: wire.Repair})
	}
}
