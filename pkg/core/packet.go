package core

import (
	"sync/atomic"
)

// Global debug flag that can be set via configuration
var debugMode uint32

// SetDebugMode sets the global debug mode flag.
// When debug mode is enabled, packet data is copied for safety;
// when disabled, packet data is shared for performance.
func SetDebugMode(enabled bool) {
	if enabled {
		atomic.StoreUint32(&debugMode, 1)
	} else {
		atomic.StoreUint32(&debugMode, 0)
	}
}

// IsDebugMode returns whether debug mode is enabled
func IsDebugMode() bool {
	return atomic.LoadUint32(&debugMode) == 1
}

// Packet represents a network packet
type Packet interface {
	// Data returns the packet data.
	// In debug mode, this returns a copy of the data.
	Data() []byte

	// Length returns the packet length
	Length() int
}

// pooledPacket is a Packet backed by a reusable read buffer. The buffer must
// not be modified by consumers; when processing completes, ReleasePacket
// returns it to its pool. If the packet escapes, GC reclaims the buffer but
// the pool never sees it again.
type pooledPacket struct {
	data     []byte
	releaser func([]byte)
}

// NewPooledPacket wraps an existing byte slice as a Packet with an optional
// releaser. The releaser may be nil. Do not mutate data after passing it in.
func NewPooledPacket(data []byte, releaser func([]byte)) Packet {
	if data == nil {
		data = make([]byte, 0)
	}
	return &pooledPacket{data: data, releaser: releaser}
}

func (p *pooledPacket) Data() []byte { return p.data }
func (p *pooledPacket) Length() int  { return len(p.data) }

// ReleasePacket returns a packet's underlying buffer to its pool if it was
// created via NewPooledPacket with a releaser.
func ReleasePacket(p Packet) {
	if pp, ok := p.(*pooledPacket); ok {
		if pp.releaser != nil && len(pp.data) > 0 {
			pp.releaser(pp.data)
			// prevent double release
			pp.data = nil
			pp.releaser = nil
		}
	}
}

// SimplePacket is a simple implementation of Packet
type SimplePacket struct {
	data []byte
}

// NewPacket creates a new packet
func NewPacket(data []byte) Packet {
	if data == nil {
		data = make([]byte, 0)
		return &SimplePacket{data: data}
	}

	// In debug mode, make a copy of the data for safety
	if IsDebugMode() {
		dataCopy := make([]byte, len(data))
		copy(dataCopy, data)
		return &SimplePacket{data: dataCopy}
	}

	return &SimplePacket{data: data}
}

// Data returns the packet data
func (p *SimplePacket) Data() []byte {
	if IsDebugMode() {
		dataCopy := make([]byte, len(p.data))
		copy(dataCopy, p.data)
		return dataCopy
	}

	return p.data
}

// Length returns the packet length
func (p *SimplePacket) Length() int {
	return len(p.data)
}
