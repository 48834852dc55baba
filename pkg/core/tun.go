package core

// TUNDevice represents a virtual network interface used as a capture source
// for the responder.
type TUNDevice interface {
	// Name returns the name of the TUN device
	Name() string

	// MTU returns the Maximum Transmission Unit of the TUN device
	MTU() (int, error)

	// SetPacketProcessor sets the callback for processing packets read from
	// the TUN device
	SetPacketProcessor(processor PacketProcessor)

	// WritePacket writes a packet to the TUN device
	WritePacket(packet Packet) error

	// Start starts the TUN device
	Start() error

	// Stop stops the TUN device
	Stop() error

	// Metrics returns metrics for the TUN device
	Metrics() TUNMetrics
}

// TUNMetrics contains metrics for a TUN device
type TUNMetrics struct {
	// PacketsReceived is the number of packets received from the TUN device
	PacketsReceived uint64

	// PacketsSent is the number of packets sent to the TUN device
	PacketsSent uint64

	// BytesReceived is the number of bytes received from the TUN device
	BytesReceived uint64

	// BytesSent is the number of bytes sent to the TUN device
	BytesSent uint64

	// Errors is the number of errors encountered
	Errors uint64
}
