package socket

import (
	"os"
	"strings"
	"sync/atomic"

	"github.com/irctrakz/mirage/pkg/core"
)

var poolFlag uint32

func init() {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("POOLING")))
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		atomic.StoreUint32(&poolFlag, 1)
	}
}

func poolingEnabled() bool { return atomic.LoadUint32(&poolFlag) == 1 }

// bufMaybePool returns a byte slice of length n, using the pool when enabled.
func bufMaybePool(n int) []byte {
	if poolingEnabled() {
		return pktGet(n)
	}
	return make([]byte, n)
}

// WrapPacket wraps an inbound read buffer into a Packet for asynchronous
// processing. With pooling on, the buffer returns to its pool on release;
// otherwise ownership is made unique by copying unless DEBUG already copies.
func WrapPacket(b []byte) core.Packet {
	if poolingEnabled() {
		return core.NewPooledPacket(b, func(buf []byte) {
			if pktShouldPut(buf) {
				pktPut(buf)
			}
		})
	}
	if !core.IsDebugMode() {
		bb := append([]byte(nil), b...)
		return core.NewPacket(bb)
	}
	return core.NewPacket(b)
}
