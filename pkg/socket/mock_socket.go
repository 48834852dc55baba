package socket

import (
	"sync"

	"github.com/irctrakz/mirage/pkg/core"
)

// MockReplyWriter records injected replies instead of writing them to a
// socket. It is used by tests and by the dry-run harness.
type MockReplyWriter struct {
	mu      sync.Mutex
	packets [][]byte
}

// NewMockReplyWriter creates a new recording reply writer.
func NewMockReplyWriter() *MockReplyWriter {
	return &MockReplyWriter{}
}

// WriteReply implements ReplyWriter.
func (w *MockReplyWriter) WriteReply(pkt []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.packets = append(w.packets, append([]byte(nil), pkt...))
	return nil
}

// Replies returns a snapshot of the recorded replies.
func (w *MockReplyWriter) Replies() [][]byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([][]byte, len(w.packets))
	copy(out, w.packets)
	return out
}

// Reset discards all recorded replies.
func (w *MockReplyWriter) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.packets = nil
}

// MockHandler counts packets delivered by a processor.
type MockHandler struct {
	mu      sync.Mutex
	packets []core.Packet
}

// HandlePacket implements PacketHandler.
func (h *MockHandler) HandlePacket(p core.Packet) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.packets = append(h.packets, p)
	return nil
}

// Count returns the number of packets handled so far.
func (h *MockHandler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.packets)
}
