package core

import "net"

// Transport identifies the transport protocol of an inbound probe. Values
// match the IP protocol numbers so they can be taken straight from the IP
// header.
type Transport uint8

// Transport kinds understood by the responder.
const (
	TransportICMP Transport = 1
	TransportTCP  Transport = 6
	TransportUDP  Transport = 17
)

func (t Transport) String() string {
	switch t {
	case TransportICMP:
		return "icmp"
	case TransportTCP:
		return "tcp"
	case TransportUDP:
		return "udp"
	}
	return "unknown"
}

// ClientIdentity is the per-packet snapshot of a probe's addressing: link and
// network addresses, transport kind and ports, and the handshake cookie once
// it has been verified. It is built fresh for every inbound packet, filled in
// incrementally as the packet climbs the layers, and discarded after the
// reply is produced. Nothing here survives across packets; all apparent
// connection state is re-derived from these fields and the responder's key.
type ClientIdentity struct {
	MACSrc net.HardwareAddr
	MACDst net.HardwareAddr

	IPSrc net.IP
	IPDst net.IP

	Transport Transport

	PortSrc uint16
	PortDst uint16

	// Cookie holds the verified handshake cookie for this packet's exchange.
	// CookieSet reports whether verification happened; upper-layer emulators
	// may consume the value for their own derivations.
	Cookie    uint32
	CookieSet bool
}

// Responder is the process-wide identity of the answering machine. It is
// built once at startup and shared read-only by every worker, so per-packet
// code never locks it.
type Responder struct {
	// MAC is the link address replies are sent from.
	MAC net.HardwareAddr

	// Addresses is the set of network addresses the responder claims.
	// Empty means answer for any destination address.
	Addresses []net.IP

	// SynAckKey is the long-lived secret keying the handshake cookie.
	SynAckKey [2]uint64

	// Interface is the name of the egress interface, when bound to one.
	Interface string
}

// AnswersTo reports whether the responder claims the given destination
// address.
func (r *Responder) AnswersTo(ip net.IP) bool {
	if len(r.Addresses) == 0 {
		return true
	}
	for _, a := range r.Addresses {
		if a.Equal(ip) {
			return true
		}
	}
	return false
}

// CookieService mints and verifies handshake cookies. Generate must be
// deterministic: the same identity and key always yield the same cookie.
// Check reports whether a cookie is one this responder would have issued.
type CookieService interface {
	Generate(ci *ClientIdentity, key [2]uint64) (uint32, error)
	Check(ci *ClientIdentity, cookie uint32, key [2]uint64) bool
}

// UpperLayer emulates application-layer protocols for data carried on an
// established apparent connection. Repl returns the response payload, or nil
// when the emulated service stays silent. Implementations may mutate the
// identity record (for example to redirect logical ports).
type UpperLayer interface {
	Repl(payload []byte, ci *ClientIdentity) []byte
}
