package socket

import (
	"sync/atomic"

	"github.com/irctrakz/mirage/pkg/core"
)

// Metrics is an alias for core.SocketMetrics
type Metrics = core.SocketMetrics

// ResetMetrics resets all metrics to zero
func ResetMetrics(m *Metrics) {
	atomic.StoreUint64(&m.PacketsReceived, 0)
	atomic.StoreUint64(&m.PacketsSent, 0)
	atomic.StoreUint64(&m.BytesReceived, 0)
	atomic.StoreUint64(&m.BytesSent, 0)
	atomic.StoreUint64(&m.RepliesSuppressed, 0)
	atomic.StoreUint64(&m.Errors, 0)
}

func loadSocketMetrics(m *core.SocketMetrics) core.SocketMetrics {
	if m == nil {
		return core.SocketMetrics{}
	}
	return core.SocketMetrics{
		PacketsSent:       atomic.LoadUint64(&m.PacketsSent),
		PacketsReceived:   atomic.LoadUint64(&m.PacketsReceived),
		BytesSent:         atomic.LoadUint64(&m.BytesSent),
		BytesReceived:     atomic.LoadUint64(&m.BytesReceived),
		RepliesSuppressed: atomic.LoadUint64(&m.RepliesSuppressed),
		Errors:            atomic.LoadUint64(&m.Errors),
	}
}

// PathMetrics captures per-transport counters.
type PathMetrics struct {
	Received   uint64
	Replied    uint64
	Suppressed uint64
	Errors     uint64
}

func (p *PathMetrics) received()   { atomic.AddUint64(&p.Received, 1) }
func (p *PathMetrics) replied()    { atomic.AddUint64(&p.Replied, 1) }
func (p *PathMetrics) suppressed() { atomic.AddUint64(&p.Suppressed, 1) }
func (p *PathMetrics) errored()    { atomic.AddUint64(&p.Errors, 1) }

func loadPathMetrics(p *PathMetrics) PathMetrics {
	return PathMetrics{
		Received:   atomic.LoadUint64(&p.Received),
		Replied:    atomic.LoadUint64(&p.Replied),
		Suppressed: atomic.LoadUint64(&p.Suppressed),
		Errors:     atomic.LoadUint64(&p.Errors),
	}
}
