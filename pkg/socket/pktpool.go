package socket

import "sync"

// Packet buffer pools for the common reply sizes to reduce allocations in the
// builders. Callers must only return buffers that originated from pktGet
// (checked via capacity match).

const (
	pktSmall = 2048
	pktMed   = 4096
	pktLarge = 8192
)

var (
	poolSmall = sync.Pool{New: func() any { b := make([]byte, pktSmall); return &b }}
	poolMed   = sync.Pool{New: func() any { b := make([]byte, pktMed); return &b }}
	poolLarge = sync.Pool{New: func() any { b := make([]byte, pktLarge); return &b }}
)

func pktGet(n int) []byte {
	switch {
	case n <= pktSmall:
		p := poolSmall.Get().(*[]byte)
		return (*p)[:n]
	case n <= pktMed:
		p := poolMed.Get().(*[]byte)
		return (*p)[:n]
	case n <= pktLarge:
		p := poolLarge.Get().(*[]byte)
		return (*p)[:n]
	default:
		return make([]byte, n)
	}
}

func pktPut(b []byte) {
	switch cap(b) {
	case pktSmall:
		bb := b[:pktSmall]
		poolSmall.Put(&bb)
	case pktMed:
		bb := b[:pktMed]
		poolMed.Put(&bb)
	case pktLarge:
		bb := b[:pktLarge]
		poolLarge.Put(&bb)
	}
}

func pktShouldPut(b []byte) bool {
	switch cap(b) {
	case pktSmall, pktMed, pktLarge:
		return true
	default:
		return false
	}
}
