// Package tcp answers inbound TCP segments as a live peer would, without
// keeping any per-connection state. The "connection table" is a keyed cookie
// embedded in the SYN-ACK sequence number: every later segment is judged by
// re-deriving the cookie from the packet's own addressing, never by history.
package tcp

import (
	"github.com/irctrakz/mirage/pkg/core"
	"github.com/irctrakz/mirage/pkg/logging"
	"github.com/irctrakz/mirage/pkg/synackcookie"
)

// Engine is the stateless TCP reply engine. The zero value uses the built-in
// cookie service and no upper-layer dispatcher; both are pluggable so callers
// can wire emulators or, in tests, a canned cookie source. Engines hold no
// mutable state and a single instance is safe for any number of concurrent
// callers.
type Engine struct {
	Cookies core.CookieService
	Upper   core.UpperLayer
}

// NewEngine builds an engine over the given upper-layer dispatcher, which may
// be nil for a responder that acknowledges data but never speaks.
func NewEngine(upper core.UpperLayer) *Engine {
	return &Engine{Cookies: synackcookie.Service{}, Upper: upper}
}

func (e *Engine) cookies() core.CookieService {
	if e.Cookies != nil {
		return e.Cookies
	}
	return synackcookie.Service{}
}

// Repl decides whether and how to answer an inbound TCP segment. It fills the
// identity record's ports (and, on a verified data segment, its cookie slot)
// as a side effect. A nil return means the segment is answered with silence;
// hostile traffic must never be able to tell a rejection from a dropped
// packet.
func (e *Engine) Repl(req *Segment, m *core.Responder, ci *core.ClientIdentity) *Segment {
	logging.Debugf("tcp: received segment %d->%d flags=%s seq=%d ack=%d len=%d",
		req.SrcPort, req.DstPort, flagString(req.Flags), req.Seq, req.Ack, len(req.Payload))

	// Ports observed on the wire go into the identity record before any
	// cookie derivation: the tuple is part of the key material.
	ci.PortSrc = req.SrcPort
	ci.PortDst = req.DstPort

	var repl *Segment
	switch {
	// Answer to data
	case req.Flags&(FlagPSH|FlagACK) == FlagPSH|FlagACK:
		// The client acknowledges cookie+1, so the cookie it holds is
		// ack-1; uint32 arithmetic wraps ack 0 to 0xFFFFFFFF.
		ackno := req.Ack - 1
		cookie, err := e.cookies().Generate(ci, m.SynAckKey)
		if err != nil {
			// Identity was complete enough to reach TCP, so this is a bug,
			// not hostile input. Drop this packet only.
			logging.Errorf("tcp: cookie generation failed on data segment: %v", err)
			return nil
		}
		if cookie != ackno {
			logging.Infof("tcp: PSH-ACK ignored on port %d: synack cookie not valid", req.DstPort)
			return nil
		}
		ci.Cookie, ci.CookieSet = cookie, true

		// Any answer from an upper-layer emulator?
		var data []byte
		if e.Upper != nil {
			data = e.Upper.Repl(req.Payload, ci)
		}
		if data != nil {
			repl = &Segment{Flags: FlagACK | FlagPSH, Payload: data}
		} else {
			repl = &Segment{Flags: FlagACK}
		}
		repl.Ack = req.Seq + uint32(len(req.Payload))
		repl.Seq = req.Ack

	// Answer to ACK: nothing. This is where a service that speaks first
	// after the handshake would be emulated.
	case req.Flags == FlagACK:
		return nil

	// Answer to RST and FIN-ACK: teardown is acknowledged silently.
	case req.Flags == FlagRST || req.Flags == FlagFIN|FlagACK:
		return nil

	// Answer to SYN
	case req.Flags&FlagSYN != 0:
		cookie, err := e.cookies().Generate(ci, m.SynAckKey)
		if err != nil {
			logging.Errorf("tcp: cookie generation failed on SYN: %v", err)
			return nil
		}
		// The cookie is the sequence number: nothing to remember.
		repl = &Segment{
			Flags: FlagSYN | FlagACK,
			Ack:   req.Seq + 1,
			Seq:   cookie,
		}
		logging.Debugf("tcp: SYN-ACK to SYN on port %d", req.DstPort)

	default:
		logging.Infof("tcp: flags not handled: %s", flagString(req.Flags))
		return nil
	}

	// Ports come from the identity record rather than the request: an
	// upper-layer emulator may have rewritten them.
	repl.SrcPort = ci.PortDst
	repl.DstPort = ci.PortSrc
	repl.DataOffset = replyDataOffset
	repl.Window = replyWindow
	return repl
}
