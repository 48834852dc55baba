package core

// ResponderConfig contains configuration for the responder identity.
type ResponderConfig struct {
	// Interface is the network interface the responder answers on.
	Interface string `json:"interface" yaml:"interface"`

	// MAC is the link address used for replies (e.g., "52:54:00:12:34:56").
	MAC string `json:"mac" yaml:"mac"`

	// Addresses is the list of IP addresses the responder claims.
	// Empty means answer for any destination address.
	Addresses []string `json:"addresses" yaml:"addresses"`

	// SynAckKey holds the two 64-bit secret key words as hex strings.
	// Empty means generate a random key at startup.
	SynAckKey []string `json:"synack_key" yaml:"synAckKey"`

	// Debug enables debug logging and packet copy mode.
	Debug bool `json:"debug" yaml:"debug"`
}

// CaptureConfig controls how packets reach the responder.
type CaptureConfig struct {
	// Mode selects the capture path: "raw" (raw IP sockets) or "tun"
	// (kernel TUN device).
	Mode string `json:"mode" yaml:"mode"`

	// TUNName is the TUN device name when Mode is "tun".
	TUNName string `json:"tun_name" yaml:"tunName"`

	// MTU bounds synthesized reply packets.
	MTU int `json:"mtu" yaml:"mtu"`

	// Workers is the number of packet-processing workers.
	Workers int `json:"workers" yaml:"workers"`

	// QueueCap is the processor queue capacity.
	QueueCap int `json:"queue_cap" yaml:"queueCap"`

	// EnableUDP answers UDP probes through the upper-layer dispatcher.
	EnableUDP bool `json:"enable_udp" yaml:"enableUDP"`

	// EnableICMP answers ICMP echo requests.
	EnableICMP bool `json:"enable_icmp" yaml:"enableICMP"`
}
