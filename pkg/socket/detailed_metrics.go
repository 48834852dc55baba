package socket

import (
	"github.com/irctrakz/mirage/pkg/core"
)

// SocketDetailedMetrics exposes total and per-transport metrics for the
// socket interface.
type SocketDetailedMetrics struct {
	Total     core.SocketMetrics
	TCP       PathMetrics
	UDP       PathMetrics
	ICMP      PathMetrics
	Processor map[string]uint64
}
