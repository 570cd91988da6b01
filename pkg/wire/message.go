// Package wire holds the protocol messages shared by membership and the DHT
// and the one codec that turns them into flat byte buffers and back.
package wire

import (
	"github.com/ryandielhenn/zephyrdht/pkg/address"
)

// Kind is the leading tag byte of every message.
type Kind uint8

const (
	KindJoinRequest Kind = iota + 1
	KindHeartbeat
	KindCreate
	KindRead
	KindUpdate
	KindDelete
	KindReply
	KindReadReply
)

func (k Kind) String() string {
	switch k {
	case KindJoinRequest:
		return "JOINREQ"
	case KindHeartbeat:
		return "HEARTBEAT"
	case KindCreate:
		return "CREATE"
	case KindRead:
		return "READ"
	case KindUpdate:
		return "UPDATE"
	case KindDelete:
		return "DELETE"
	case KindReply:
		return "REPLY"
	case KindReadReply:
		return "READREPLY"
	default:
		return "UNKNOWN"
	}
}

// Membership reports whether k belongs to the gossip protocol.
func (k Kind) Membership() bool {
	return k == KindJoinRequest || k == KindHeartbeat
}

// ReplicaRole tags create/update requests with the slot the receiver holds.
type ReplicaRole uint8

const (
	Primary ReplicaRole = iota
	Secondary
	Tertiary
	// Repair marks stabilization traffic; a repair create on a key that is
	// already present succeeds without overwriting.
	Repair
)

func (r ReplicaRole) String() string {
	switch r {
	case Primary:
		return "PRIMARY"
	case Secondary:
		return "SECONDARY"
	case Tertiary:
		return "TERTIARY"
	case Repair:
		return "REPAIR"
	default:
		return "UNKNOWN"
	}
}

// RoleForSlot maps a position in a replica set to its role.
func RoleForSlot(i int) ReplicaRole {
	switch i {
	case 0:
		return Primary
	case 1:
		return Secondary
	default:
		return Tertiary
	}
}

// Message is implemented by every protocol message.
type Message interface {
	Kind() Kind
}

type JoinRequest struct {
	From      address.Address
	Heartbeat int64
}

// GossipEntry is one (heartbeat, address) pair of a heartbeat payload.
type GossipEntry struct {
	Addr      address.Address
	Heartbeat int64
}

type Heartbeat struct {
	From      address.Address
	Heartbeat int64
	Entries   []GossipEntry
}

// Request is a CREATE, READ, UPDATE or DELETE. Value and Role travel only
// with CREATE and UPDATE.
type Request struct {
	Op    Kind
	TxnID uint32
	From  address.Address
	Key   string
	Value string
	Role  ReplicaRole
}

type Reply struct {
	TxnID   uint32
	From    address.Address
	Success bool
}

// ReadReply carries the read value; empty means miss.
type ReadReply struct {
	TxnID uint32
	From  address.Address
	Value string
}

func (*JoinRequest) Kind() Kind { return KindJoinRequest }
func (*Heartbeat) Kind() Kind   { return KindHeartbeat }
func (r *Request) Kind() Kind   { return r.Op }
func (*Reply) Kind() Kind       { return KindReply }
func (*ReadReply) Kind() Kind   { return KindReadReply }
