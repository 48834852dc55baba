package tun

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/irctrakz/mirage/pkg/core"
	"github.com/irctrakz/mirage/pkg/logging"
)

// MockTUNDevice is an in-memory core.TUNDevice for tests: injected packets
// flow to the processor, written packets are recorded for inspection. No
// kernel access or privileges required.
type MockTUNDevice struct {
	name      string
	mtu       int
	processor core.PacketProcessor

	mu             sync.Mutex
	running        bool
	stopCh         chan struct{}
	wg             sync.WaitGroup
	packetCh       chan []byte
	packetsWritten [][]byte

	metrics core.TUNMetrics
}

// NewMockTUNDevice creates a new mock TUN device.
func NewMockTUNDevice(name string, mtu int) *MockTUNDevice {
	return &MockTUNDevice{
		name:     name,
		mtu:      mtu,
		stopCh:   make(chan struct{}),
		packetCh: make(chan []byte, 100),
	}
}

// Name returns the name of the TUN device.
func (m *MockTUNDevice) Name() string { return m.name }

// MTU returns the Maximum Transmission Unit of the TUN device.
func (m *MockTUNDevice) MTU() (int, error) { return m.mtu, nil }

// SetPacketProcessor sets the callback for processing injected packets.
func (m *MockTUNDevice) SetPacketProcessor(processor core.PacketProcessor) {
	m.processor = processor
}

// WritePacket records a packet written toward the network.
func (m *MockTUNDevice) WritePacket(packet core.Packet) error {
	data := append([]byte(nil), packet.Data()...)

	m.mu.Lock()
	m.packetsWritten = append(m.packetsWritten, data)
	m.mu.Unlock()

	atomic.AddUint64(&m.metrics.PacketsSent, 1)
	atomic.AddUint64(&m.metrics.BytesSent, uint64(len(data)))
	return nil
}

// Start starts the delivery loop.
func (m *MockTUNDevice) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("TUN device already running")
	}
	m.running = true
	m.wg.Add(1)
	go m.readLoop()
	return nil
}

// Stop stops the delivery loop.
func (m *MockTUNDevice) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	close(m.stopCh)
	m.wg.Wait()
	m.running = false
	return nil
}

// Metrics returns metrics for the TUN device.
func (m *MockTUNDevice) Metrics() core.TUNMetrics {
	return core.TUNMetrics{
		PacketsReceived: atomic.LoadUint64(&m.metrics.PacketsReceived),
		PacketsSent:     atomic.LoadUint64(&m.metrics.PacketsSent),
		BytesReceived:   atomic.LoadUint64(&m.metrics.BytesReceived),
		BytesSent:       atomic.LoadUint64(&m.metrics.BytesSent),
		Errors:          atomic.LoadUint64(&m.metrics.Errors),
	}
}

func (m *MockTUNDevice) readLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.stopCh:
			return
		case data := <-m.packetCh:
			atomic.AddUint64(&m.metrics.PacketsReceived, 1)
			atomic.AddUint64(&m.metrics.BytesReceived, uint64(len(data)))

			if m.processor != nil {
				if err := m.processor.ProcessPacket(core.NewPacket(data)); err != nil {
					logging.Errorf("Failed to process packet: %v", err)
					atomic.AddUint64(&m.metrics.Errors, 1)
				}
			}
		}
	}
}

// SimulatePacketReceived injects a packet as if it arrived from the network.
func (m *MockTUNDevice) SimulatePacketReceived(data []byte) error {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	if !running {
		return fmt.Errorf("TUN device not running")
	}

	cp := append([]byte(nil), data...)
	select {
	case m.packetCh <- cp:
		return nil
	default:
		atomic.AddUint64(&m.metrics.Errors, 1)
		return fmt.Errorf("packet channel full, packet dropped")
	}
}

// WrittenPackets returns a snapshot of packets written to the device.
func (m *MockTUNDevice) WrittenPackets() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([][]byte, len(m.packetsWritten))
	for i, p := range m.packetsWritten {
		out[i] = append([]byte(nil), p...)
	}
	return out
}

// ClearWrittenPackets resets the recorded packets between tests.
func (m *MockTUNDevice) ClearWrittenPackets() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packetsWritten = nil
}
