package socket

import (
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irctrakz/mirage/pkg/tcp"
)

var (
	srcAddr = [4]byte{192, 0, 2, 10}
	dstAddr = [4]byte{192, 0, 2, 1}
)

func TestBuildIPv4TCPDecodes(t *testing.T) {
	seg := (&tcp.Segment{
		SrcPort:    80,
		DstPort:    65000,
		Seq:        0xcafebabe,
		Ack:        0x0000002a,
		DataOffset: 5,
		Flags:      tcp.FlagSYN | tcp.FlagACK,
		Window:     65535,
	}).Marshal()
	finalizeTCP(seg, srcAddr, dstAddr)
	pkt := buildIPv4(srcAddr, dstAddr, protoTCP, seg)

	p := gopacket.NewPacket(pkt, layers.LayerTypeIPv4, gopacket.Default)
	require.Nil(t, p.ErrorLayer())

	ipl := p.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	assert.Equal(t, uint8(4), ipl.Version)
	assert.Equal(t, uint8(64), ipl.TTL)
	assert.Equal(t, layers.IPProtocolTCP, ipl.Protocol)
	assert.Equal(t, uint16(len(pkt)), ipl.Length)
	assert.NotZero(t, ipl.Id)

	tcpl := p.Layer(layers.LayerTypeTCP).(*layers.TCP)
	assert.Equal(t, layers.TCPPort(80), tcpl.SrcPort)
	assert.Equal(t, uint32(0xcafebabe), tcpl.Seq)
	assert.True(t, tcpl.SYN)
	assert.True(t, tcpl.ACK)
}

func TestTCPChecksumMatchesGopacket(t *testing.T) {
	seg := (&tcp.Segment{
		SrcPort:    80,
		DstPort:    65000,
		Seq:        1,
		Ack:        2,
		DataOffset: 5,
		Flags:      tcp.FlagACK,
		Window:     65535,
		Payload:    []byte("hello"),
	}).Marshal()
	finalizeTCP(seg, srcAddr, dstAddr)
	want := uint16(seg[16])<<8 | uint16(seg[17])

	ip := &layers.IPv4{
		Version: 4, IHL: 5, TTL: 64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    srcAddr[:], DstIP: dstAddr[:],
	}
	ref := &layers.TCP{
		SrcPort: 80, DstPort: 65000,
		Seq: 1, Ack: 2, DataOffset: 5,
		ACK: true, Window: 65535,
	}
	require.NoError(t, ref.SetNetworkLayerForChecksum(ip))
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ip, ref, gopacket.Payload([]byte("hello"))))

	p := gopacket.NewPacket(buf.Bytes(), layers.LayerTypeIPv4, gopacket.Default)
	refTCP := p.Layer(layers.LayerTypeTCP).(*layers.TCP)
	assert.Equal(t, refTCP.Checksum, want)
}

func TestBuildUDPDecodes(t *testing.T) {
	dgram := buildUDP(srcAddr, dstAddr, 53, 40000, []byte("answer"))
	pkt := buildIPv4(srcAddr, dstAddr, protoUDP, dgram)

	p := gopacket.NewPacket(pkt, layers.LayerTypeIPv4, gopacket.Default)
	require.Nil(t, p.ErrorLayer())
	udpl := p.Layer(layers.LayerTypeUDP).(*layers.UDP)
	assert.Equal(t, layers.UDPPort(53), udpl.SrcPort)
	assert.Equal(t, layers.UDPPort(40000), udpl.DstPort)
	assert.Equal(t, []byte("answer"), udpl.Payload)
	assert.Equal(t, uint16(8+6), udpl.Length)
	assert.NotZero(t, udpl.Checksum)
}

func TestIPIDAdvances(t *testing.T) {
	a := buildIPv4(srcAddr, dstAddr, protoTCP, make([]byte, 20))
	b := buildIPv4(srcAddr, dstAddr, protoTCP, make([]byte, 20))
	idA := uint16(a[4])<<8 | uint16(a[5])
	idB := uint16(b[4])<<8 | uint16(b[5])
	assert.NotEqual(t, idA, idB)
}

func TestCalculateChecksumKnownVector(t *testing.T) {
	// Example header from RFC 1071 style worked examples.
	hdr := []byte{
		0x45, 0x00, 0x00, 0x3c, 0x1c, 0x46, 0x40, 0x00,
		0x40, 0x06, 0x00, 0x00, 0xac, 0x10, 0x0a, 0x63,
		0xac, 0x10, 0x0a, 0x0c,
	}
	assert.Equal(t, uint16(0xb1e6), calculateChecksum(hdr))
}
