package proto

import (
	"github.com/irctrakz/mirage/pkg/core"
)

// EchoHandler mirrors every payload back to the sender, RFC 862 style. It
// matches anything, so it belongs last in a registry and is opt-in: echoing
// arbitrary probe bytes makes the responder trivially fingerprintable but is
// useful to keep scanners engaged on otherwise unknown protocols.
type EchoHandler struct{}

// Name implements Handler.
func (*EchoHandler) Name() string { return "echo" }

// Detect implements Handler.
func (*EchoHandler) Detect(payload []byte) bool { return len(payload) > 0 }

// Repl implements Handler.
func (*EchoHandler) Repl(payload []byte, ci *core.ClientIdentity) []byte {
	out := make([]byte, len(payload))
	copy(out, payload)
	return out
}
