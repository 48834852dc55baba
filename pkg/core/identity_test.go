package core

import (
	"net"
	"testing"
)

// TestAnswersTo tests destination address filtering on the responder identity.
func TestAnswersTo(t *testing.T) {
	// Empty address set answers for anything
	r := &Responder{}
	if !r.AnswersTo(net.ParseIP("198.51.100.7")) {
		t.Error("Expected unbound responder to answer any address")
	}

	r = &Responder{
		Addresses: []net.IP{
			net.ParseIP("192.0.2.10"),
			net.ParseIP("2001:db8::10"),
		},
	}

	if !r.AnswersTo(net.ParseIP("192.0.2.10")) {
		t.Error("Expected responder to answer bound IPv4 address")
	}

	if !r.AnswersTo(net.ParseIP("2001:db8::10")) {
		t.Error("Expected responder to answer bound IPv6 address")
	}

	if r.AnswersTo(net.ParseIP("192.0.2.11")) {
		t.Error("Expected responder to ignore unbound address")
	}
}

// TestTransportString tests the transport kind labels.
func TestTransportString(t *testing.T) {
	cases := map[Transport]string{
		TransportICMP:  "icmp",
		TransportTCP:   "tcp",
		TransportUDP:   "udp",
		Transport(99):  "unknown",
		Transport(255): "unknown",
	}
	for tr, want := range cases {
		if got := tr.String(); got != want {
			t.Errorf("Transport(%d).String() = %q, want %q", uint8(tr), got, want)
		}
	}
}

// TestClientIdentityCookieSlot tests the verified-cookie slot semantics.
func TestClientIdentityCookieSlot(t *testing.T) {
	ci := &ClientIdentity{
		IPSrc:     net.ParseIP("27.198.143.1"),
		IPDst:     net.ParseIP("90.64.122.203"),
		Transport: TransportTCP,
	}

	if ci.CookieSet {
		t.Error("Expected fresh identity to carry no verified cookie")
	}

	ci.Cookie, ci.CookieSet = 0xdeadbeef, true
	if !ci.CookieSet || ci.Cookie != 0xdeadbeef {
		t.Error("Expected verified cookie to be stored in place")
	}
}
