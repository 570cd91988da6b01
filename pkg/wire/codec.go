package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/ryandielhenn/zephyrdht/pkg/address"
)

var (
	ErrTruncated     = errors.New("message truncated")
	ErrUnknownKind   = errors.New("unknown message kind")
	ErrTrailingBytes = errors.New("trailing bytes after message")
	ErrTooLarge      = errors.New("field too large")
)

// Encode lays m out as tag + fixed fields + length-prefixed strings.
func Encode(m Message) ([]byte, error) {
	var e encoder
	e.u8(uint8(m.Kind()))
	switch m := m.(type) {
	case *JoinRequest:
		e.addr(m.From)
		e.i64(m.Heartbeat)
	case *Heartbeat:
		e.i64(m.Heartbeat)
		e.addr(m.From)
		for _, en := range m.Entries {
			e.i64(en.Heartbeat)
			e.addr(en.Addr)
		}
	case *Request:
		switch m.Op {
		case KindCreate, KindUpdate:
			e.u32(m.TxnID)
			e.addr(m.From)
			e.str(m.Key)
			e.str(m.Value)
			e.u8(uint8(m.Role))
		case KindRead, KindDelete:
			e.u32(m.TxnID)
			e.addr(m.From)
			e.str(m.Key)
		default:
			return nil, fmt.Errorf("%w: request op %d", ErrUnknownKind, m.Op)
		}
	case *Reply:
		e.u32(m.TxnID)
		e.addr(m.From)
		if m.Success {
			e.u8(1)
		} else {
			e.u8(0)
		}
	case *ReadReply:
		e.u32(m.TxnID)
		e.addr(m.From)
		e.str(m.Value)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, m)
	}
	if e.err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Kind(), e.err)
	}
	return e.buf, nil
}

// Decode parses one message. Every field is length-checked; a short buffer
// yields ErrTruncated and leftover bytes yield ErrTrailingBytes.
func Decode(b []byte) (Message, error) {
	d := decoder{buf: b}
	kind := Kind(d.u8())
	if d.err != nil {
		return nil, d.err
	}

	var m Message
	switch kind {
	case KindJoinRequest:
		jr := &JoinRequest{}
		jr.From = d.addr()
		jr.Heartbeat = d.i64()
		m = jr
	case KindHeartbeat:
		hb := &Heartbeat{}
		hb.Heartbeat = d.i64()
		hb.From = d.addr()
		for d.err == nil && d.remaining() > 0 {
			var en GossipEntry
			en.Heartbeat = d.i64()
			en.Addr = d.addr()
			if d.err == nil {
				hb.Entries = append(hb.Entries, en)
			}
		}
		m = hb
	case KindCreate, KindUpdate:
		r := &Request{Op: kind}
		r.TxnID = d.u32()
		r.From = d.addr()
		r.Key = d.str()
		r.Value = d.str()
		r.Role = ReplicaRole(d.u8())
		if d.err == nil && r.Role > Repair {
			return nil, fmt.Errorf("decode %s: replica role %d: %w", kind, r.Role, ErrUnknownKind)
		}
		m = r
	case KindRead, KindDelete:
		r := &Request{Op: kind}
		r.TxnID = d.u32()
		r.From = d.addr()
		r.Key = d.str()
		m = r
	case KindReply:
		r := &Reply{}
		r.TxnID = d.u32()
		r.From = d.addr()
		r.Success = d.u8() != 0
		m = r
	case KindReadReply:
		r := &ReadReply{}
		r.TxnID = d.u32()
		r.From = d.addr()
		r.Value = d.str()
		m = r
	default:
		return nil, fmt.Errorf("%w: tag %d", ErrUnknownKind, uint8(kind))
	}

	if d.err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, d.err)
	}
	if d.remaining() > 0 {
		return nil, fmt.Errorf("decode %s: %w (%d)", kind, ErrTrailingBytes, d.remaining())
	}
	return m, nil
}

type encoder struct {
	buf []byte
	err error
}

func (e *encoder) u8(v uint8) { e.buf = append(e.buf, v) }

func (e *encoder) u32(v uint32) { e.buf = binary.BigEndian.AppendUint32(e.buf, v) }

func (e *encoder) i64(v int64) { e.buf = binary.BigEndian.AppendUint64(e.buf, uint64(v)) }

func (e *encoder) addr(a address.Address) {
	b := a.Bytes()
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) str(s string) {
	if uint64(len(s)) > math.MaxUint32 {
		e.err = ErrTooLarge
		return
	}
	e.u32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}

type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) remaining() int { return len(d.buf) - d.off }

// take returns the next n bytes, or nil once the buffer is exhausted.
func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.remaining() < n {
		d.err = ErrTruncated
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) u8() uint8 {
	if b := d.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *decoder) u32() uint32 {
	if b := d.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (d *decoder) i64() int64 {
	if b := d.take(8); b != nil {
		return int64(binary.BigEndian.Uint64(b))
	}
	return 0
}

func (d *decoder) addr() address.Address {
	if b := d.take(address.Size); b != nil {
		a, _ := address.FromBytes(b)
		return a
	}
	return address.Address{}
}

func (d *decoder) str() string {
	n := d.u32()
	if d.err != nil {
		return ""
	}
	if uint64(n) > uint64(d.remaining()) {
		d.err = ErrTruncated
		return ""
	}
	return string(d.take(int(n)))
}
