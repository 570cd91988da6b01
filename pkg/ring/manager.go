package ring

import (
	"github.com/ryandielhenn/zephyrdht/pkg/address"
)

// Manager owns the installed ring of one node and rebuilds it from each
// round's membership snapshot.
type Manager struct {
	self     address.Address
	hash     Hasher
	current  Ring
	onChange func(Ring)
}

// NewManager returns a Manager whose ring holds only self until the first
// change is installed. onChange runs after every install.
func NewManager(self address.Address, h Hasher, onChange func(Ring)) *Manager {
	if h == nil {
		h = HashCode
	}
	return &Manager{
		self:     self,
		hash:     h,
		current:  Build([]address.Address{self}, h),
		onChange: onChange,
	}
}

// Recompute builds the candidate ring from members plus self. A candidate
// that differs and has at least two nodes replaces the current ring
// wholesale. It reports whether a new ring was installed.
func (m *Manager) Recompute(members []address.Address) bool {
	all := make([]address.Address, 0, len(members)+1)
	all = append(all, members...)
	all = append(all, m.self)
	candidate := Build(all, m.hash)

	if candidate.Len() < 2 || candidate.Equal(m.current) {
		return false
	}
	m.current = candidate
	if m.onChange != nil {
		m.onChange(candidate)
	}
	return true
}

func (m *Manager) Ring() Ring { return m.current }

func (m *Manager) Locate(key string) []address.Address {
	return m.current.Locate(key)
}

// Owns reports whether self is one of key's replicas on the installed ring.
func (m *Manager) Owns(key string) bool {
	return m.current.IsReplica(key, m.self)
}
