package tun

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irctrakz/mirage/pkg/core"
	"github.com/irctrakz/mirage/pkg/socket"
)

// recordingProcessor collects packets delivered by the device.
type recordingProcessor struct {
	mu       sync.Mutex
	packets  []core.Packet
	failWith error
}

func (p *recordingProcessor) ProcessPacket(packet core.Packet) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return p.failWith
	}
	p.packets = append(p.packets, packet)
	return nil
}

func (p *recordingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.packets)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestMockTUNDeliversToProcessor(t *testing.T) {
	dev := NewMockTUNDevice("mirage0", 1500)
	proc := &recordingProcessor{}
	dev.SetPacketProcessor(proc)
	require.NoError(t, dev.Start())
	defer dev.Stop()

	require.NoError(t, dev.SimulatePacketReceived([]byte{0x45, 0x00, 0x00, 0x14}))
	waitFor(t, func() bool { return proc.count() == 1 })

	m := dev.Metrics()
	assert.Equal(t, uint64(1), m.PacketsReceived)
	assert.Equal(t, uint64(4), m.BytesReceived)
}

func TestMockTUNRecordsWrites(t *testing.T) {
	dev := NewMockTUNDevice("mirage0", 1500)
	pkt := []byte{0x45, 0x00, 0x00, 0x14, 0xde, 0xad}
	require.NoError(t, dev.WritePacket(core.NewPacket(pkt)))

	written := dev.WrittenPackets()
	require.Len(t, written, 1)
	assert.Equal(t, pkt, written[0])

	dev.ClearWrittenPackets()
	assert.Empty(t, dev.WrittenPackets())
}

func TestMockTUNRequiresStart(t *testing.T) {
	dev := NewMockTUNDevice("mirage0", 1500)
	assert.Error(t, dev.SimulatePacketReceived([]byte{0x45}))
}

func TestMockTUNProcessorErrorsAreCounted(t *testing.T) {
	dev := NewMockTUNDevice("mirage0", 1500)
	dev.SetPacketProcessor(&recordingProcessor{failWith: errors.New("boom")})
	require.NoError(t, dev.Start())
	defer dev.Stop()

	require.NoError(t, dev.SimulatePacketReceived([]byte{0x45, 0x00}))
	waitFor(t, func() bool { return dev.Metrics().Errors == 1 })
}

// End-to-end through the socket interface in TUN mode: a SYN injected into
// the device comes back out as a SYN-ACK.
func TestTUNModeAnswersSyn(t *testing.T) {
	machine := &core.Responder{
		Addresses: []net.IP{net.ParseIP("192.0.2.10")},
		SynAckKey: [2]uint64{1, 2},
	}
	cfg := socket.DefaultConfig()
	cfg.Mode = socket.ModeTUN

	s := socket.NewSocketInterface(cfg, machine, nil)
	dev := NewMockTUNDevice("mirage0", 1500)
	s.SetTUNDevice(dev)
	require.NoError(t, s.Start())
	defer s.Stop()

	ip := &layers.IPv4{
		Version: 4, IHL: 5, TTL: 64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.ParseIP("192.0.2.1").To4(),
		DstIP:    net.ParseIP("192.0.2.10").To4(),
	}
	tcpl := &layers.TCP{SrcPort: 65000, DstPort: 80, Seq: 1234, SYN: true, Window: 64240}
	require.NoError(t, tcpl.SetNetworkLayerForChecksum(ip))
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ip, tcpl))

	require.NoError(t, dev.SimulatePacketReceived(buf.Bytes()))
	waitFor(t, func() bool { return len(dev.WrittenPackets()) == 1 })

	reply := dev.WrittenPackets()[0]
	p := gopacket.NewPacket(reply, layers.LayerTypeIPv4, gopacket.Default)
	out, ok := p.Layer(layers.LayerTypeTCP).(*layers.TCP)
	require.True(t, ok)
	assert.True(t, out.SYN)
	assert.True(t, out.ACK)
	assert.Equal(t, uint32(1235), out.Ack)
	assert.Equal(t, layers.TCPPort(80), out.SrcPort)
}
