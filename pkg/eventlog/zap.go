package eventlog

import (
	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrdht/pkg/address"
)

// Zap writes events as structured log lines.
type Zap struct {
	log *zap.Logger
}

func NewZap(l *zap.Logger) *Zap {
	return &Zap{log: l.Named("events")}
}

func (z *Zap) NodeAdded(self, peer address.Address) {
	z.log.Info("node added", zap.Stringer("actor", self), zap.Stringer("peer", peer))
}

func (z *Zap) NodeRemoved(self, peer address.Address) {
	z.log.Info("node removed", zap.Stringer("actor", self), zap.Stringer("peer", peer))
}

func (z *Zap) RingChanged(self address.Address, size int) {
	z.log.Debug("ring changed", zap.Stringer("actor", self), zap.Int("size", size))
}

func (z *Zap) Operation(ev Event) {
	outcome := "fail"
	if ev.Success {
		outcome = "success"
	}
	fields := []zap.Field{
		zap.Stringer("actor", ev.Actor),
		zap.Uint32("txn", ev.TxnID),
		zap.String("key", ev.Key),
		zap.Bool("coordinator", ev.Coordinator),
		zap.Bool("repair", ev.Repair),
	}
	if ev.Value != "" {
		fields = append(fields, zap.String("value", ev.Value))
	}
	if ev.Success {
		z.log.Info(ev.Op+" "+outcome, fields...)
	} else {
		z.log.Warn(ev.Op+" "+outcome, fields...)
	}
}
