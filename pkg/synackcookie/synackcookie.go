// Package synackcookie derives the handshake cookie that stands in for a TCP
// connection table. The cookie is a keyed hash of the probe's identifying
// tuple: the responder embeds it in the SYN-ACK sequence number and later
// re-derives it to decide whether a data segment belongs to a handshake it
// actually issued. No per-connection state is ever stored.
package synackcookie

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/dchest/siphash"

	"github.com/irctrakz/mirage/pkg/core"
)

// Generate derives the 32-bit handshake cookie for a probe identity under the
// given key. Deterministic: the same tuple and key always map to the same
// value, so any worker can re-derive it without coordination. It fails only
// for structurally incomplete identities, which on the reply path means a
// programming error rather than hostile input.
func Generate(ci *core.ClientIdentity, key [2]uint64) (uint32, error) {
	if ci == nil || ci.IPSrc == nil || ci.IPDst == nil {
		return 0, fmt.Errorf("synackcookie: identity missing network addresses")
	}

	src := canonical(ci.IPSrc)
	dst := canonical(ci.IPDst)

	// src IP | dst IP | src port | dst port | transport
	msg := make([]byte, 0, len(src)+len(dst)+5)
	msg = append(msg, src...)
	msg = append(msg, dst...)
	var tail [5]byte
	binary.BigEndian.PutUint16(tail[0:2], ci.PortSrc)
	binary.BigEndian.PutUint16(tail[2:4], ci.PortDst)
	tail[4] = byte(ci.Transport)
	msg = append(msg, tail[:]...)

	sum := siphash.Hash(key[0], key[1], msg)
	return uint32(sum>>32) ^ uint32(sum), nil
}

// Check reports whether cookie is the value this responder would have issued
// for the identity under key.
func Check(ci *core.ClientIdentity, cookie uint32, key [2]uint64) bool {
	expected, err := Generate(ci, key)
	return err == nil && expected == cookie
}

// canonical returns the 4-byte form for IPv4 addresses and the 16-byte form
// otherwise, so a v4 address hashes identically whether it arrived as plain
// v4 or as a v4-mapped v6 value.
func canonical(ip net.IP) []byte {
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return ip.To16()
}

// Service adapts the package functions to the core.CookieService interface.
type Service struct{}

// Generate implements core.CookieService.
func (Service) Generate(ci *core.ClientIdentity, key [2]uint64) (uint32, error) {
	return Generate(ci, key)
}

// Check implements core.CookieService.
func (Service) Check(ci *core.ClientIdentity, cookie uint32, key [2]uint64) bool {
	return Check(ci, cookie, key)
}
