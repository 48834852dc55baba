package core

// SocketInterface represents the capture/inject surface the responder
// answers on.
type SocketInterface interface {
	// Start starts the socket interface.
	Start() error

	// Stop stops the socket interface.
	Stop() error

	// Metrics returns metrics for the socket interface.
	Metrics() SocketMetrics
}

// PacketProcessor processes inbound packets delivered by a capture source.
type PacketProcessor interface {
	// ProcessPacket processes a single inbound packet.
	ProcessPacket(packet Packet) error
}

// SocketMetrics contains metrics for a socket interface.
type SocketMetrics struct {
	// PacketsSent is the number of reply packets sent.
	PacketsSent uint64

	// PacketsReceived is the number of packets received.
	PacketsReceived uint64

	// BytesSent is the number of bytes sent.
	BytesSent uint64

	// BytesReceived is the number of bytes received.
	BytesReceived uint64

	// RepliesSuppressed is the number of inbound packets answered with
	// deliberate silence.
	RepliesSuppressed uint64

	// Errors is the number of errors encountered.
	Errors uint64
}
