// Package txn tracks the operations a node coordinates until each one
// reaches quorum, runs out of replies, or times out.
package txn

const (
	// Replicas is the number of replies a record can receive.
	Replicas = 3
	// Quorum is the number of successful replies that commits a record.
	Quorum = 2
	// DefaultTTL is the age, in rounds, at which an open record expires.
	DefaultTTL = 15
)

// Op is what a record coordinates.
type Op uint8

const (
	OpCreate Op = iota + 1
	OpRead
	OpUpdate
	OpDelete
	// OpReplicate re-sends a key this node still holds to its replicas.
	OpReplicate
	// OpDeleteKey re-sends a key this node no longer owns; the local copy
	// is purged once the replicas have it.
	OpDeleteKey
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpRead:
		return "read"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	case OpReplicate:
		return "replicate"
	case OpDeleteKey:
		return "deletekey"
	default:
		return "unknown"
	}
}

// Repair reports whether o is stabilization traffic.
func (o Op) Repair() bool {
	return o == OpReplicate || o == OpDeleteKey
}

// Reason says why a record was retired.
type Reason uint8

const (
	ReasonQuorum Reason = iota + 1
	ReasonExhausted
	ReasonExpired
	ReasonNoReplicas
)

func (r Reason) String() string {
	switch r {
	case ReasonQuorum:
		return "quorum"
	case ReasonExhausted:
		return "exhausted"
	case ReasonExpired:
		return "expired"
	case ReasonNoReplicas:
		return "no replicas"
	default:
		return "unknown"
	}
}

type Record struct {
	ID        uint32
	Op        Op
	Key       string
	Value     string
	Start     int64
	Successes int
	Replies   int
	// hasValue is set once a read adopted a value.
	hasValue bool
}

// Outcome is a retired record.
type Outcome struct {
	Record
	Success bool
	Reason  Reason
}
