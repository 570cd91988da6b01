package node

import (
	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrdht/pkg/eventlog"
	"github.com/ryandielhenn/zephyrdht/pkg/txn"
	"github.com/ryandielhenn/zephyrdht/pkg/wire"
)

func (n *Node) Create(key, value string) (uint32, error) {
	return n.Submit(txn.OpCreate, key, value, nil)
}

func (n *Node) Read(key string) (uint32, error) {
	return n.Submit(txn.OpRead, key, "", nil)
}

func (n *Node) Update(key, value string) (uint32, error) {
	return n.Submit(txn.OpUpdate, key, value, nil)
}

func (n *Node) Delete(key string) (uint32, error) {
	return n.Submit(txn.OpDelete, key, "", nil)
}

// Submit coordinates one client operation. A single transaction is
// registered before anything is sent; the replica that is this node, if
// any, is served on the spot, the others get a request. done, when set, is
// called once with the outcome, possibly before Submit returns.
func (n *Node) Submit(op txn.Op, key, value string, done func(txn.Outcome)) (uint32, error) {
	if n.failed {
		return 0, ErrStopped
	}
	kind, ok := requestKind(op)
	if !ok {
		return 0, ErrInvalidOp
	}
	if (op == txn.OpCreate || op == txn.OpUpdate) && value == "" {
		return 0, ErrEmptyValue
	}

	id := n.txns.Begin(op, key, value, n.clock.Now())
	if done != nil {
		n.waiters[id] = done
	}

	replicas := n.ring.Locate(key)
	if len(replicas) == 0 {
		if o, ok := n.txns.Fail(id, txn.ReasonNoReplicas); ok {
			n.finish(o)
		}
		return id, nil
	}

	for i, to := range replicas {
		req := &wire.Request{Op: kind, TxnID: id, From: n.self, Key: key, Value: value, Role: wire.RoleForSlot(i)}
		if to == n.self {
			success, val := n.apply(req)
			n.ack(id, success, val)
			continue
		}
		n.send(to, req)
	}
	return id, nil
}

// ack applies one replica answer to an open transaction.
func (n *Node) ack(id uint32, success bool, value string) {
	if o, ok := n.txns.Ack(id, success, value); ok {
		n.finish(o)
	}
}

// finish acts on a retired transaction: client operations are reported,
// repair transactions purge or retry.
func (n *Node) finish(o txn.Outcome) {
	switch o.Op {
	case txn.OpReplicate:
		if !o.Success {
			n.replicate(o.Key)
		}
	case txn.OpDeleteKey:
		switch {
		case o.Success && n.ring.Owns(o.Key):
			// the ring moved back while the purge was in flight
			n.log.Debug("keeping key owned again", zap.String("key", o.Key))
		case o.Success:
			n.store.Delete(o.Key)
			n.log.Debug("purged key no longer owned", zap.String("key", o.Key))
		default:
			n.replicate(o.Key)
		}
	}

	ev := eventlog.Event{
		Actor:       n.self,
		Op:          o.Op.String(),
		TxnID:       o.ID,
		Key:         o.Key,
		Coordinator: true,
		Repair:      o.Op.Repair(),
		Success:     o.Success,
	}
	if o.Op != txn.OpDelete {
		ev.Value = o.Value
	}
	n.events.Operation(ev)

	if done, ok := n.waiters[o.ID]; ok {
		delete(n.waiters, o.ID)
		done(o)
	}
}

func requestKind(op txn.Op) (wire.Kind, bool) {
	switch op {
	case txn.OpCreate:
		return wire.KindCreate, true
	case txn.OpRead:
		return wire.KindRead, true
	case txn.OpUpdate:
		return wire.KindUpdate, true
	case txn.OpDelete:
		return wire.KindDelete, true
	default:
		return 0, false
	}
}
