package socket

import "sync/atomic"

// ipIDCounter provides a process-wide IPv4 Identification generator so
// synthesized replies do not all carry a constant zero IP ID, which confuses
// some middleboxes even for unfragmented traffic.
var ipIDCounter uint32

func nextIPID() uint16 { return uint16(atomic.AddUint32(&ipIDCounter, 1)) }
