package socket

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/irctrakz/mirage/pkg/core"
	"github.com/irctrakz/mirage/pkg/logging"
)

// PacketHandler consumes whole inbound IP packets and produces any replies as
// a side effect. Handlers run concurrently on worker goroutines.
type PacketHandler interface {
	HandlePacket(packet core.Packet) error
}

// ResponderProcessor implements core.PacketProcessor: a bounded worker pool
// between the capture loops and the reply pipeline. Under overload it sheds
// inbound packets rather than blocking the capture path; a probe that is
// dropped simply goes unanswered, which is indistinguishable from a
// suppressed reply.
type ResponderProcessor struct {
	handler PacketHandler

	workerCount int
	packetCh    chan core.Packet
	stopCh      chan struct{}
	wg          sync.WaitGroup

	packetsProcessed uint64
	packetsDropped   uint64
	queueFullDrops   uint64
}

// NewResponderProcessor creates a worker pool delivering packets to handler.
func NewResponderProcessor(handler PacketHandler, workerCount, queueCap int) *ResponderProcessor {
	if workerCount <= 0 {
		workerCount = 4
	}
	if queueCap <= 0 {
		queueCap = 1000
	}
	return &ResponderProcessor{
		handler:     handler,
		workerCount: workerCount,
		packetCh:    make(chan core.Packet, queueCap),
		stopCh:      make(chan struct{}),
	}
}

// Start starts the worker pool.
func (p *ResponderProcessor) Start() error {
	p.wg.Add(p.workerCount)
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i)
	}

	logging.Infof("Responder processor started with %d workers", p.workerCount)
	return nil
}

// Stop stops the worker pool.
func (p *ResponderProcessor) Stop() error {
	close(p.stopCh)
	p.wg.Wait()
	close(p.packetCh)

	logging.Infof("Responder processor stopped")
	return nil
}

// ProcessPacket implements core.PacketProcessor.
func (p *ResponderProcessor) ProcessPacket(packet core.Packet) error {
	data := packet.Data()
	if len(data) < ipv4MinHeaderSize {
		atomic.AddUint64(&p.packetsDropped, 1)
		return fmt.Errorf("packet too short")
	}

	select {
	case p.packetCh <- packet:
		atomic.AddUint64(&p.packetsProcessed, 1)
	default:
		atomic.AddUint64(&p.packetsDropped, 1)
		atomic.AddUint64(&p.queueFullDrops, 1)
		return fmt.Errorf("packet dropped: worker pool is full")
	}

	return nil
}

// worker processes packets from the channel.
func (p *ResponderProcessor) worker(id int) {
	defer p.wg.Done()

	logging.Debugf("Responder worker %d started", id)

	for {
		select {
		case <-p.stopCh:
			logging.Debugf("Responder worker %d stopped", id)
			return
		case packet, ok := <-p.packetCh:
			if !ok {
				return
			}
			if err := p.handlePacketInternal(packet); err != nil {
				logging.Errorf("Failed to handle packet in worker %d: %v", id, err)
			}
		}
	}
}

func (p *ResponderProcessor) handlePacketInternal(packet core.Packet) error {
	// Return any pooled read buffer once the reply has been produced.
	defer core.ReleasePacket(packet)
	return p.handler.HandlePacket(packet)
}

// Metrics returns metrics for the packet processor.
func (p *ResponderProcessor) Metrics() map[string]uint64 {
	return map[string]uint64{
		"packetsProcessed": atomic.LoadUint64(&p.packetsProcessed),
		"packetsDropped":   atomic.LoadUint64(&p.packetsDropped),
		"queueFullDrops":   atomic.LoadUint64(&p.queueFullDrops),
	}
}
