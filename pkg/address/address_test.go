package address

import (
	"errors"
	"testing"
)

func TestStringParseRoundTrip(t *testing.T) {
	a := New(7, 9000)
	if got := a.String(); got != "7:9000" {
		t.Fatalf("String = %q, want 7:9000", got)
	}
	b, err := Parse(a.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if b != a {
		t.Fatalf("Parse = %v, want %v", b, a)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "7", "x:1", "1:x", "1:70000", "-1:2"} {
		if _, err := Parse(s); !errors.Is(err, ErrInvalid) {
			t.Fatalf("Parse(%q) err = %v, want ErrInvalid", s, err)
		}
	}
}

func TestBytesLayout(t *testing.T) {
	a := New(0x01020304, 0x0506)
	b := a.Bytes()
	want := [Size]byte{1, 2, 3, 4, 5, 6}
	if b != want {
		t.Fatalf("Bytes = %v, want %v", b, want)
	}
	back, err := FromBytes(b[:])
	if err != nil || back != a {
		t.Fatalf("FromBytes = (%v,%v), want (%v,nil)", back, err, a)
	}
	if _, err := FromBytes(b[:5]); !errors.Is(err, ErrInvalid) {
		t.Fatalf("FromBytes(short) err = %v, want ErrInvalid", err)
	}
}

func TestHostPortMapping(t *testing.T) {
	a, err := FromHostPort("http://127.0.0.1", "7000")
	if err != nil {
		t.Fatalf("FromHostPort: %v", err)
	}
	if a.Port != 7000 || a.ID != 0x7f000001 {
		t.Fatalf("FromHostPort = %+v", a)
	}
	u := a.UDPAddr()
	if u.String() != "127.0.0.1:7000" {
		t.Fatalf("UDPAddr = %s", u)
	}
	back, err := FromUDPAddr(u)
	if err != nil || back != a {
		t.Fatalf("FromUDPAddr = (%v,%v), want (%v,nil)", back, err, a)
	}
	if _, err := FromHostPort("[::1]:80", "80"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("IPv6 should be rejected, got %v", err)
	}
}

func TestOrdering(t *testing.T) {
	if !New(1, 5).Less(New(2, 0)) || New(2, 0).Less(New(1, 5)) {
		t.Fatal("id must dominate port")
	}
	if Compare(New(1, 1), New(1, 2)) != -1 || Compare(New(1, 2), New(1, 2)) != 0 || Compare(New(1, 3), New(1, 2)) != 1 {
		t.Fatal("Compare disagrees with Less")
	}
	if !(Address{}).IsZero() || New(0, 1).IsZero() {
		t.Fatal("IsZero")
	}
}
