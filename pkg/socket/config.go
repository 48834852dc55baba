package socket

// Capture modes for the socket interface.
const (
	// ModeRaw answers on raw IP sockets; the kernel owns the IP header on
	// both directions.
	ModeRaw = "raw"

	// ModeTUN answers on a TUN device carrying whole IP packets.
	ModeTUN = "tun"
)

// Config contains configuration for the socket interface.
type Config struct {
	// Mode selects the capture surface: ModeRaw or ModeTUN.
	Mode string

	// TUNName is the device name used in ModeTUN.
	TUNName string

	// BindAddress is the local address raw sockets bind to in ModeRaw.
	BindAddress string

	// MTU bounds the size of synthesized reply packets.
	MTU int

	// Workers is the reply worker pool size.
	Workers int

	// QueueCap is the inbound packet queue capacity.
	QueueCap int

	// EnableUDP answers UDP probes through the payload dispatcher.
	EnableUDP bool

	// EnableICMP answers ICMP echo requests.
	EnableICMP bool
}

// DefaultConfig returns the default configuration for the socket interface.
func DefaultConfig() Config {
	return Config{
		Mode:        ModeRaw,
		TUNName:     "mirage0",
		BindAddress: "0.0.0.0",
		MTU:         1500,
		Workers:     4,
		QueueCap:    1000,
		EnableUDP:   true,
		EnableICMP:  true,
	}
}
