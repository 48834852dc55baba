// Package tun provides the TUN capture surface: a kernel TUN device carrying
// whole IP packets, wrapped behind core.TUNDevice.
package tun

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	wgtun "golang.zx2c4.com/wireguard/tun"

	"github.com/irctrakz/mirage/pkg/core"
	"github.com/irctrakz/mirage/pkg/logging"
)

// readBufSize accommodates coalesced reads from offload-enabled devices,
// which can exceed the interface MTU.
const readBufSize = 65536

// kernelTUN adapts a wireguard-go TUN device to core.TUNDevice. Reads are
// batched; each packet in a batch is handed to the processor individually.
type kernelTUN struct {
	dev       wgtun.Device
	name      string
	processor core.PacketProcessor

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	metrics core.TUNMetrics
}

// CreateTUN opens (or creates) a kernel TUN device with the given name and
// MTU. Requires CAP_NET_ADMIN.
func CreateTUN(name string, mtu int) (core.TUNDevice, error) {
	dev, err := wgtun.CreateTUN(name, mtu)
	if err != nil {
		return nil, fmt.Errorf("failed to create TUN device %q: %w", name, err)
	}
	realName, err := dev.Name()
	if err != nil {
		realName = name
	}
	logging.Infof("TUN device created: %s (mtu %d)", realName, mtu)
	return &kernelTUN{
		dev:    dev,
		name:   realName,
		stopCh: make(chan struct{}),
	}, nil
}

// Name returns the name of the TUN device.
func (t *kernelTUN) Name() string { return t.name }

// MTU returns the Maximum Transmission Unit of the TUN device.
func (t *kernelTUN) MTU() (int, error) { return t.dev.MTU() }

// SetPacketProcessor sets the callback for processing packets read from the
// TUN device.
func (t *kernelTUN) SetPacketProcessor(processor core.PacketProcessor) {
	t.processor = processor
}

// WritePacket writes a whole IP packet to the TUN device.
func (t *kernelTUN) WritePacket(packet core.Packet) error {
	data := packet.Data()
	if _, err := t.dev.Write([][]byte{data}, 0); err != nil {
		atomic.AddUint64(&t.metrics.Errors, 1)
		return fmt.Errorf("TUN write: %w", err)
	}
	atomic.AddUint64(&t.metrics.PacketsSent, 1)
	atomic.AddUint64(&t.metrics.BytesSent, uint64(len(data)))
	return nil
}

// Start starts the read and event loops.
func (t *kernelTUN) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return fmt.Errorf("TUN device already running")
	}
	if t.processor == nil {
		return fmt.Errorf("no packet processor set")
	}

	t.running = true
	t.wg.Add(2)
	go t.readLoop()
	go t.eventLoop()

	logging.Infof("TUN device started: %s", t.name)
	return nil
}

// Stop stops the TUN device.
func (t *kernelTUN) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return nil
	}

	close(t.stopCh)
	// Close unblocks the pending Read.
	t.dev.Close()
	t.wg.Wait()
	t.running = false

	logging.Infof("TUN device stopped: %s", t.name)
	return nil
}

// Metrics returns metrics for the TUN device.
func (t *kernelTUN) Metrics() core.TUNMetrics {
	return core.TUNMetrics{
		PacketsReceived: atomic.LoadUint64(&t.metrics.PacketsReceived),
		PacketsSent:     atomic.LoadUint64(&t.metrics.PacketsSent),
		BytesReceived:   atomic.LoadUint64(&t.metrics.BytesReceived),
		BytesSent:       atomic.LoadUint64(&t.metrics.BytesSent),
		Errors:          atomic.LoadUint64(&t.metrics.Errors),
	}
}

func (t *kernelTUN) readLoop() {
	defer t.wg.Done()

	batch := t.dev.BatchSize()
	bufs := make([][]byte, batch)
	sizes := make([]int, batch)
	for i := range bufs {
		bufs[i] = make([]byte, readBufSize)
	}

	for {
		n, err := t.dev.Read(bufs, sizes, 0)
		if err != nil {
			select {
			case <-t.stopCh:
				return
			default:
			}
			if err == os.ErrClosed {
				return
			}
			logging.Errorf("TUN read: %v", err)
			atomic.AddUint64(&t.metrics.Errors, 1)
			continue
		}

		for i := 0; i < n; i++ {
			data := bufs[i][:sizes[i]]
			atomic.AddUint64(&t.metrics.PacketsReceived, 1)
			atomic.AddUint64(&t.metrics.BytesReceived, uint64(len(data)))

			// The read buffers are reused on the next iteration, so the
			// packet copies its data.
			cp := append([]byte(nil), data...)
			if err := t.processor.ProcessPacket(core.NewPacket(cp)); err != nil {
				logging.Debugf("TUN packet not queued: %v", err)
			}
		}
	}
}

func (t *kernelTUN) eventLoop() {
	defer t.wg.Done()

	for {
		select {
		case <-t.stopCh:
			return
		case ev, ok := <-t.dev.Events():
			if !ok {
				return
			}
			switch ev {
			case wgtun.EventUp:
				logging.Infof("TUN device %s is up", t.name)
			case wgtun.EventDown:
				logging.Infof("TUN device %s is down", t.name)
			case wgtun.EventMTUUpdate:
				if mtu, err := t.dev.MTU(); err == nil {
					logging.Infof("TUN device %s MTU changed to %d", t.name, mtu)
				}
			}
		}
	}
}
