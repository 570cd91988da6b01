package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryandielhenn/zephyrdht/pkg/address"
)

func TestEncodeDecode(t *testing.T) {
	t.Parallel()
	from := address.New(3, 0)
	cases := []Message{
		&JoinRequest{From: from, Heartbeat: 42},
		&Heartbeat{From: from, Heartbeat: 7},
		&Heartbeat{From: from, Heartbeat: 7, Entries: []GossipEntry{
			{Addr: address.New(1, 0), Heartbeat: 100},
			{Addr: address.New(2, 0), Heartbeat: 5},
		}},
		&Request{Op: KindCreate, TxnID: 9, From: from, Key: "k", Value: "v", Role: Secondary},
		&Request{Op: KindUpdate, TxnID: 10, From: from, Key: "k", Value: "", Role: Repair},
		&Request{Op: KindRead, TxnID: 11, From: from, Key: "k"},
		&Request{Op: KindDelete, TxnID: 12, From: from, Key: ""},
		&Reply{TxnID: 13, From: from, Success: true},
		&Reply{TxnID: 14, From: from},
		&ReadReply{TxnID: 15, From: from, Value: "hello"},
		&ReadReply{TxnID: 16, From: from},
	}
	for _, m := range cases {
		b, err := Encode(m)
		require.NoError(t, err, m.Kind().String())
		assert.Equal(t, byte(m.Kind()), b[0])
		got, err := Decode(b)
		require.NoError(t, err, m.Kind().String())
		assert.Equal(t, m, got)
	}
}

func TestHeartbeatLayout(t *testing.T) {
	t.Parallel()
	b, err := Encode(&Heartbeat{From: address.New(1, 2), Heartbeat: 3, Entries: []GossipEntry{{Addr: address.New(4, 5), Heartbeat: 6}}})
	require.NoError(t, err)
	// tag + (8-byte heartbeat + 6-byte address) for the sender and for one entry
	require.Len(t, b, 1+2*(8+address.Size))
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 3, 0, 0, 0, 1, 0, 2}, b[1:15])
}

func TestJoinRequestLayout(t *testing.T) {
	t.Parallel()
	b, err := Encode(&JoinRequest{From: address.New(1, 0), Heartbeat: 1})
	require.NoError(t, err)
	assert.Equal(t, []byte{byte(KindJoinRequest), 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}, b)
}

func TestDecodeTruncated(t *testing.T) {
	t.Parallel()
	full, err := Encode(&Request{Op: KindCreate, TxnID: 1, From: address.New(1, 0), Key: "key", Value: "value"})
	require.NoError(t, err)
	for n := 0; n < len(full); n++ {
		_, err := Decode(full[:n])
		require.ErrorIs(t, err, ErrTruncated, "prefix of %d bytes", n)
	}
}

func TestDecodePartialGossipEntry(t *testing.T) {
	t.Parallel()
	b, err := Encode(&Heartbeat{From: address.New(1, 0), Heartbeat: 1, Entries: []GossipEntry{{Addr: address.New(2, 0), Heartbeat: 2}}})
	require.NoError(t, err)
	_, err = Decode(b[:len(b)-1])
	require.ErrorIs(t, err, ErrTruncated)
}

func TestDecodeTrailingBytes(t *testing.T) {
	t.Parallel()
	b, err := Encode(&Reply{TxnID: 1, From: address.New(1, 0), Success: true})
	require.NoError(t, err)
	_, err = Decode(append(b, 0xff))
	require.ErrorIs(t, err, ErrTrailingBytes)
}

func TestDecodeUnknownKind(t *testing.T) {
	t.Parallel()
	_, err := Decode([]byte{0x7f})
	require.ErrorIs(t, err, ErrUnknownKind)

	b, err := Encode(&Request{Op: KindCreate, From: address.New(1, 0), Key: "k", Value: "v"})
	require.NoError(t, err)
	b[len(b)-1] = 0x09
	_, err = Decode(b)
	require.ErrorIs(t, err, ErrUnknownKind)

	_, err = Encode(&Request{Op: KindReply})
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestStringLengthBeyondBuffer(t *testing.T) {
	t.Parallel()
	b, err := Encode(&ReadReply{TxnID: 1, From: address.New(1, 0), Value: "v"})
	require.NoError(t, err)
	// claim a 4 GiB value
	copy(b[1+4+address.Size:], []byte{0xff, 0xff, 0xff, 0xff})
	_, err = Decode(b)
	require.ErrorIs(t, err, ErrTruncated)
}
