// Package proto emulates application-layer protocols for data carried on an
// established apparent connection. The transport layer hands it a payload and
// the probe's identity; it answers with response bytes or stays silent.
package proto

import (
	"github.com/irctrakz/mirage/pkg/core"
	"github.com/irctrakz/mirage/pkg/logging"
)

// Handler emulates a single application-layer protocol.
type Handler interface {
	// Name returns the protocol label used in logs.
	Name() string

	// Detect reports whether the payload looks like this protocol.
	Detect(payload []byte) bool

	// Repl produces the emulated response for the payload, or nil for
	// silence. Handlers may mutate the identity record.
	Repl(payload []byte, ci *core.ClientIdentity) []byte
}

// Registry dispatches payloads to the first handler whose Detect matches.
// It implements core.UpperLayer.
type Registry struct {
	handlers []Handler
}

// NewRegistry builds a registry over the given handlers, consulted in order.
func NewRegistry(handlers ...Handler) *Registry {
	return &Registry{handlers: handlers}
}

// Register appends a handler. Not safe to call once packets are flowing; the
// registry is meant to be assembled at startup and read-only afterwards.
func (r *Registry) Register(h Handler) {
	r.handlers = append(r.handlers, h)
}

// Repl implements core.UpperLayer: it routes the payload to the first
// matching handler and returns its response, or nil when no emulator wants
// the payload.
func (r *Registry) Repl(payload []byte, ci *core.ClientIdentity) []byte {
	if len(payload) == 0 {
		return nil
	}
	for _, h := range r.handlers {
		if !h.Detect(payload) {
			continue
		}
		logging.Debugf("proto: %s handling %d byte payload on port %d", h.Name(), len(payload), ci.PortDst)
		return h.Repl(payload, ci)
	}
	logging.Debugf("proto: no emulator for %d byte payload on port %d", len(payload), ci.PortDst)
	return nil
}

// Default returns the registry used by the responder when none is configured
// explicitly. Echo is deliberately not included: answering arbitrary bytes
// changes the responder's fingerprint and is opt-in.
func Default() *Registry {
	return NewRegistry(&HTTPHandler{})
}
