package node

import (
	"github.com/ryandielhenn/zephyrdht/pkg/eventlog"
	"github.com/ryandielhenn/zephyrdht/pkg/wire"
)

// serve answers an inbound request with exactly one reply. Requests are
// served whether or not this node is on the sender's ring.
func (n *Node) serve(req *wire.Request) {
	success, value := n.apply(req)
	if req.Op == wire.KindRead {
		n.send(req.From, &wire.ReadReply{TxnID: req.TxnID, From: n.self, Value: value})
		return
	}
	n.send(req.From, &wire.Reply{TxnID: req.TxnID, From: n.self, Success: success})
}

// apply runs req against the local store and records the replica-side
// outcome. Reads return the value, empty on a miss.
func (n *Node) apply(req *wire.Request) (bool, string) {
	var (
		success bool
		value   string
	)
	switch req.Op {
	case wire.KindCreate:
		if req.Role == wire.Repair {
			success = n.store.Ensure(req.Key, req.Value)
		} else {
			success = n.store.Create(req.Key, req.Value)
		}
		value = req.Value
	case wire.KindRead:
		value, success = n.store.Read(req.Key)
		success = success && value != ""
	case wire.KindUpdate:
		success = n.store.Update(req.Key, req.Value)
		value = req.Value
	case wire.KindDelete:
		success = n.store.Delete(req.Key)
	}

	op := map[wire.Kind]string{
		wire.KindCreate: "create",
		wire.KindRead:   "read",
		wire.KindUpdate: "update",
		wire.KindDelete: "delete",
	}[req.Op]
	n.events.Operation(eventlog.Event{
		Actor:   n.self,
		Op:      op,
		TxnID:   req.TxnID,
		Key:     req.Key,
		Value:   value,
		Repair:  req.Role == wire.Repair,
		Success: success,
	})
	return success, value
}
