// Package address defines the identity every node is known by: a numeric id
// plus a port. The same pair is the membership table key, the ring hash
// input, and (when the id holds IPv4 octets) a UDP address.
package address

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Size is the length of the fixed binary form.
const Size = 6

var ErrInvalid = errors.New("invalid address")

// Address identifies a node. The zero value is the null address.
type Address struct {
	ID   uint32
	Port uint16
}

func New(id uint32, port uint16) Address {
	return Address{ID: id, Port: port}
}

// String returns the "id:port" key.
func (a Address) String() string {
	return strconv.FormatUint(uint64(a.ID), 10) + ":" + strconv.FormatUint(uint64(a.Port), 10)
}

func (a Address) IsZero() bool {
	return a.ID == 0 && a.Port == 0
}

// Less orders addresses by id, then port.
func (a Address) Less(b Address) bool {
	if a.ID != b.ID {
		return a.ID < b.ID
	}
	return a.Port < b.Port
}

// Compare returns -1, 0 or +1, suitable for slices.SortFunc.
func Compare(a, b Address) int {
	switch {
	case a == b:
		return 0
	case a.Less(b):
		return -1
	default:
		return 1
	}
}

// Bytes returns the 6-byte form: big-endian id followed by big-endian port.
func (a Address) Bytes() [Size]byte {
	var b [Size]byte
	binary.BigEndian.PutUint32(b[0:4], a.ID)
	binary.BigEndian.PutUint16(b[4:6], a.Port)
	return b
}

// FromBytes is the inverse of Bytes. b must hold at least Size bytes.
func FromBytes(b []byte) (Address, error) {
	if len(b) < Size {
		return Address{}, fmt.Errorf("%w: need %d bytes, got %d", ErrInvalid, Size, len(b))
	}
	return Address{
		ID:   binary.BigEndian.Uint32(b[0:4]),
		Port: binary.BigEndian.Uint16(b[4:6]),
	}, nil
}

// Parse reads the "id:port" key produced by String.
func Parse(s string) (Address, error) {
	idStr, portStr, ok := strings.Cut(s, ":")
	if !ok {
		return Address{}, fmt.Errorf("%w: %q has no port", ErrInvalid, s)
	}
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		return Address{}, fmt.Errorf("%w: id in %q: %w", ErrInvalid, s, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Address{}, fmt.Errorf("%w: port in %q: %w", ErrInvalid, s, err)
	}
	return Address{ID: uint32(id), Port: uint16(port)}, nil
}

// FromHostPort maps an IPv4 "host:port" to an Address, storing the octets in
// ID. A bare host gets defPort. The http:// and https:// prefixes are cut.
func FromHostPort(hostport, defPort string) (Address, error) {
	hostport = normalizeHostPort(hostport, defPort)
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if host == "" || host == "localhost" {
		host = "127.0.0.1"
	}
	ip := net.ParseIP(host).To4()
	if ip == nil {
		return Address{}, fmt.Errorf("%w: %q is not an IPv4 address", ErrInvalid, host)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Address{}, fmt.Errorf("%w: port in %q: %w", ErrInvalid, hostport, err)
	}
	return Address{ID: binary.BigEndian.Uint32(ip), Port: uint16(port)}, nil
}

// UDPAddr interprets ID as IPv4 octets.
func (a Address) UDPAddr() *net.UDPAddr {
	var ip [4]byte
	binary.BigEndian.PutUint32(ip[:], a.ID)
	return &net.UDPAddr{IP: net.IPv4(ip[0], ip[1], ip[2], ip[3]), Port: int(a.Port)}
}

// FromUDPAddr is the inverse of UDPAddr. Non-IPv4 sources are rejected.
func FromUDPAddr(u *net.UDPAddr) (Address, error) {
	ip := u.IP.To4()
	if ip == nil {
		return Address{}, fmt.Errorf("%w: %s is not IPv4", ErrInvalid, u)
	}
	return Address{ID: binary.BigEndian.Uint32(ip), Port: uint16(u.Port)}, nil
}

// normalizeHostPort cuts the http:// https:// prefixes from the input address
// and adds a default port
func normalizeHostPort(addr, defPort string) string {
	if rest, ok := strings.CutPrefix(addr, "http://"); ok {
		addr = rest
	} else if rest, ok := strings.CutPrefix(addr, "https://"); ok {
		addr = rest
	}

	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}

	return addr + ":" + defPort
}
