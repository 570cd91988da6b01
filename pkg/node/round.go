package node

import (
	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrdht/pkg/wire"
)

// Round runs one protocol round: drain and dispatch the inbound queue,
// advance membership, rebuild the ring, then expire stale transactions.
func (n *Node) Round() {
	if n.failed || !n.started {
		return
	}

	for _, b := range n.tr.Drain() {
		n.dispatch(b)
	}

	n.members.Tick()
	n.ring.Recompute(n.members.Addresses())

	for _, o := range n.txns.Sweep(n.clock.Now()) {
		n.finish(o)
	}
}

func (n *Node) dispatch(b []byte) {
	msg, err := wire.Decode(b)
	if err != nil {
		n.log.Warn("dropping malformed message", zap.Int("size", len(b)), zap.Error(err))
		return
	}

	switch m := msg.(type) {
	case *wire.JoinRequest:
		n.members.HandleJoinRequest(m)
	case *wire.Heartbeat:
		n.members.HandleHeartbeat(m)
	case *wire.Request:
		n.serve(m)
	case *wire.Reply:
		n.ack(m.TxnID, m.Success, "")
	case *wire.ReadReply:
		n.ack(m.TxnID, m.Value != "", m.Value)
	}
}
