package ring

import (
	"cmp"
	"slices"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/ryandielhenn/zephyrdht/pkg/address"
)

const (
	// Size is the number of positions on the ring.
	Size = 512
	// Replicas is the fixed replication factor.
	Replicas = 3
)

// Hasher maps a key or a node's "id:port" string to a ring position.
type Hasher func(string) uint64

// HashCode is the default Hasher.
func HashCode(s string) uint64 {
	return xxhash.Sum64String(s) % Size
}

type Node struct {
	Addr address.Address
	Hash uint64
}

// Ring is an immutable snapshot of nodes sorted by (hash, address).
type Ring struct {
	hash  Hasher
	nodes []Node // sorted
}

// Build hashes each distinct address and sorts the result.
func Build(addrs []address.Address, h Hasher) Ring {
	if h == nil {
		h = HashCode
	}
	seen := make(map[address.Address]struct{}, len(addrs))
	nodes := make([]Node, 0, len(addrs))
	for _, a := range addrs {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		nodes = append(nodes, Node{Addr: a, Hash: h(a.String())})
	}
	slices.SortFunc(nodes, func(x, y Node) int {
		if c := cmp.Compare(x.Hash, y.Hash); c != 0 {
			return c
		}
		return address.Compare(x.Addr, y.Addr)
	})
	return Ring{hash: h, nodes: nodes}
}

func (r Ring) Len() int { return len(r.nodes) }

func (r Ring) Nodes() []Node {
	return slices.Clone(r.nodes)
}

// Equal compares membership and order, ignoring the hasher.
func (r Ring) Equal(o Ring) bool {
	return slices.Equal(r.nodes, o.nodes)
}

// Locate returns the replica set for key: primary, secondary, tertiary.
// Rings smaller than Replicas cannot hold a quorum and yield nil.
func (r Ring) Locate(key string) []address.Address {
	n := len(r.nodes)
	if n < Replicas {
		return nil
	}
	pos := r.hash(key)

	// keys at or below the first point, or past the last, wrap to the start
	idx := 0
	if pos > r.nodes[0].Hash && pos <= r.nodes[n-1].Hash {
		idx = sort.Search(n, func(i int) bool { return r.nodes[i].Hash >= pos })
	}

	out := make([]address.Address, 0, Replicas)
	for i := 0; i < Replicas; i++ {
		out = append(out, r.nodes[(idx+i)%n].Addr)
	}
	return out
}

// IsReplica reports whether a is in key's replica set.
func (r Ring) IsReplica(key string, a address.Address) bool {
	return slices.Contains(r.Locate(key), a)
}
