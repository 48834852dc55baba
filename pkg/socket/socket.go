package socket

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"github.com/irctrakz/mirage/pkg/core"
	"github.com/irctrakz/mirage/pkg/logging"
	"github.com/irctrakz/mirage/pkg/tcp"
)

// ReplyWriter injects a synthesized IPv4 packet back toward the network.
type ReplyWriter interface {
	WriteReply(pkt []byte) error
}

// SocketInterface is the capture and reply surface of the responder. It owns
// the capture sockets (or TUN device), a worker pool, and the per-transport
// reply pipeline. It implements core.SocketInterface and PacketHandler.
type SocketInterface struct {
	config  Config
	machine *core.Responder
	engine  *tcp.Engine
	upper   core.UpperLayer

	processor core.PacketProcessor

	// Raw mode capture sockets. The kernel strips and rebuilds the IP
	// header on these, so read loops re-wrap payloads into full packets
	// and WriteReply strips them again.
	tcpConn  net.PacketConn
	udpConn  net.PacketConn
	icmpConn *icmp.PacketConn
	tcp4     *ipv4.PacketConn
	udp4     *ipv4.PacketConn
	icmp4    *ipv4.PacketConn

	// TUN mode capture device.
	tun core.TUNDevice

	// writer is the injection side; settable before Start for tests.
	writer ReplyWriter

	metrics  core.SocketMetrics
	tcpPath  PathMetrics
	udpPath  PathMetrics
	icmpPath PathMetrics

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

var _ core.SocketInterface = (*SocketInterface)(nil)
var _ PacketHandler = (*SocketInterface)(nil)

// NewSocketInterface creates a socket interface answering as the given
// responder, dispatching verified payloads to upper (which may be nil).
func NewSocketInterface(config Config, machine *core.Responder, upper core.UpperLayer) *SocketInterface {
	return &SocketInterface{
		config:  config,
		machine: machine,
		engine:  tcp.NewEngine(upper),
		upper:   upper,
		stopCh:  make(chan struct{}),
	}
}

// SetTUNDevice supplies the capture device used in ModeTUN. Must be called
// before Start.
func (s *SocketInterface) SetTUNDevice(dev core.TUNDevice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tun = dev
}

// SetReplyWriter overrides the injection path. Must be called before Start.
func (s *SocketInterface) SetReplyWriter(w ReplyWriter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writer = w
}

// Start opens the capture surface and starts the worker pool.
func (s *SocketInterface) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("socket interface already running")
	}
	if s.machine == nil {
		return fmt.Errorf("no responder identity set")
	}

	proc := NewResponderProcessor(s, s.config.Workers, s.config.QueueCap)
	if err := proc.Start(); err != nil {
		return err
	}
	s.processor = proc

	switch s.config.Mode {
	case ModeTUN:
		if s.tun == nil {
			proc.Stop()
			return fmt.Errorf("no TUN device set for mode %q", ModeTUN)
		}
		if s.writer == nil {
			s.writer = &tunWriter{dev: s.tun}
		}
		s.tun.SetPacketProcessor(proc)
		if err := s.tun.Start(); err != nil {
			proc.Stop()
			return fmt.Errorf("failed to start TUN device: %w", err)
		}

	case ModeRaw, "":
		if err := s.openRawSockets(); err != nil {
			proc.Stop()
			s.closeRawSockets()
			return err
		}
		if s.writer == nil {
			s.writer = &rawWriter{s: s}
		}
		s.wg.Add(1)
		go s.readLoop("tcp", s.tcp4, protoTCP)
		if s.udp4 != nil {
			s.wg.Add(1)
			go s.readLoop("udp", s.udp4, protoUDP)
		}
		if s.icmp4 != nil {
			s.wg.Add(1)
			go s.readLoop("icmp", s.icmp4, protoICMP)
		}

	default:
		proc.Stop()
		return fmt.Errorf("unsupported capture mode: %s", s.config.Mode)
	}

	s.running = true
	logging.Infof("Socket interface started in %s mode", s.config.Mode)
	return nil
}

// openRawSockets opens the per-transport raw sockets. TCP is mandatory; UDP
// and ICMP follow the config toggles.
func (s *SocketInterface) openRawSockets() error {
	bind := s.config.BindAddress
	if bind == "" {
		bind = "0.0.0.0"
	}

	conn, err := net.ListenPacket("ip4:tcp", bind)
	if err != nil {
		return fmt.Errorf("failed to open raw TCP socket: %w", err)
	}
	s.tcpConn = conn
	s.tcp4 = ipv4.NewPacketConn(conn)
	if err := s.tcp4.SetControlMessage(ipv4.FlagDst, true); err != nil {
		logging.Warnf("Destination address reporting unavailable on TCP socket: %v", err)
	}

	if s.config.EnableUDP {
		conn, err := net.ListenPacket("ip4:udp", bind)
		if err != nil {
			return fmt.Errorf("failed to open raw UDP socket: %w", err)
		}
		s.udpConn = conn
		s.udp4 = ipv4.NewPacketConn(conn)
		if err := s.udp4.SetControlMessage(ipv4.FlagDst, true); err != nil {
			logging.Warnf("Destination address reporting unavailable on UDP socket: %v", err)
		}
	}

	if s.config.EnableICMP {
		c, err := icmp.ListenPacket("ip4:icmp", bind)
		if err != nil {
			return fmt.Errorf("failed to open raw ICMP socket: %w", err)
		}
		s.icmpConn = c
		s.icmp4 = c.IPv4PacketConn()
		if s.icmp4 != nil {
			if err := s.icmp4.SetControlMessage(ipv4.FlagDst, true); err != nil {
				logging.Warnf("Destination address reporting unavailable on ICMP socket: %v", err)
			}
		}
	}
	return nil
}

func (s *SocketInterface) closeRawSockets() {
	if s.tcpConn != nil {
		s.tcpConn.Close()
		s.tcpConn, s.tcp4 = nil, nil
	}
	if s.udpConn != nil {
		s.udpConn.Close()
		s.udpConn, s.udp4 = nil, nil
	}
	if s.icmpConn != nil {
		s.icmpConn.Close()
		s.icmpConn, s.icmp4 = nil, nil
	}
}

// Stop stops the socket interface.
func (s *SocketInterface) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	close(s.stopCh)
	s.wg.Wait()

	if s.tun != nil {
		s.tun.Stop()
	}
	s.closeRawSockets()

	if s.processor != nil {
		if p, ok := s.processor.(*ResponderProcessor); ok {
			p.Stop()
		}
		s.processor = nil
	}

	s.running = false
	logging.Infof("Socket interface stopped")
	return nil
}

// readLoop reads transport payloads from a raw socket, re-wraps them into
// full IPv4 packets, and hands them to the worker pool.
func (s *SocketInterface) readLoop(name string, pc *ipv4.PacketConn, proto byte) {
	defer s.wg.Done()

	buf := make([]byte, 65536)
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		if err := pc.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
			logging.Errorf("Failed to set read deadline on %s socket: %v", name, err)
			time.Sleep(100 * time.Millisecond)
			continue
		}

		n, cm, peer, err := pc.ReadFrom(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-s.stopCh:
				return
			default:
			}
			logging.Errorf("Failed to read from %s socket: %v", name, err)
			atomic.AddUint64(&s.metrics.Errors, 1)
			time.Sleep(100 * time.Millisecond)
			continue
		}

		peerIP := addrIP(peer)
		if peerIP == nil {
			continue
		}
		var dst net.IP
		if cm != nil {
			dst = cm.Dst
		}
		if dst == nil && len(s.machine.Addresses) > 0 {
			dst = s.machine.Addresses[0]
		}
		if dst == nil || dst.To4() == nil || peerIP.To4() == nil {
			continue
		}

		// Re-wrap the payload so the pipeline always sees whole packets,
		// regardless of capture mode.
		pkt := buildIPv4(ip4(peerIP.To4()), ip4(dst.To4()), proto, buf[:n])
		if err := s.processor.ProcessPacket(WrapPacket(pkt)); err != nil {
			logging.Debugf("%s packet not queued: %v", name, err)
		}
	}
}

func addrIP(a net.Addr) net.IP {
	if ipa, ok := a.(*net.IPAddr); ok {
		return ipa.IP
	}
	return nil
}

// HandlePacket implements PacketHandler: it runs one inbound IPv4 packet
// through the reply pipeline and injects at most one reply.
func (s *SocketInterface) HandlePacket(packet core.Packet) error {
	data := packet.Data()
	atomic.AddUint64(&s.metrics.PacketsReceived, 1)
	atomic.AddUint64(&s.metrics.BytesReceived, uint64(len(data)))

	reply, err := s.replyTo(data)
	if err != nil {
		atomic.AddUint64(&s.metrics.Errors, 1)
		return err
	}
	if reply == nil {
		atomic.AddUint64(&s.metrics.RepliesSuppressed, 1)
		return nil
	}
	defer func() {
		if pktShouldPut(reply) {
			pktPut(reply)
		}
	}()

	if err := s.writer.WriteReply(reply); err != nil {
		atomic.AddUint64(&s.metrics.Errors, 1)
		return fmt.Errorf("failed to inject reply: %w", err)
	}
	atomic.AddUint64(&s.metrics.PacketsSent, 1)
	atomic.AddUint64(&s.metrics.BytesSent, uint64(len(reply)))
	return nil
}

// replyTo computes the full IPv4 reply for an inbound IPv4 packet, or nil
// for silence.
func (s *SocketInterface) replyTo(data []byte) ([]byte, error) {
	h, err := ipv4.ParseHeader(data)
	if err != nil {
		return nil, fmt.Errorf("bad IPv4 header: %w", err)
	}
	if h.Version != 4 {
		return nil, fmt.Errorf("unsupported IP version: %d", h.Version)
	}
	if len(data) < h.TotalLen || h.Len > h.TotalLen {
		return nil, fmt.Errorf("truncated packet: have %d bytes, header says %d", len(data), h.TotalLen)
	}
	// Fragments never carry a probe this responder can answer whole.
	if h.FragOff != 0 || h.Flags&ipv4.MoreFragments != 0 {
		logging.Debugf("dropping fragmented packet from %s", h.Src)
		return nil, nil
	}
	if !s.machine.AnswersTo(h.Dst) {
		logging.Debugf("ignoring packet for %s: not an answering address", h.Dst)
		return nil, nil
	}

	payload := data[h.Len:h.TotalLen]

	switch byte(h.Protocol) {
	case protoTCP:
		return s.replyTCP(h, payload)
	case protoUDP:
		if !s.config.EnableUDP {
			return nil, nil
		}
		return s.replyUDP(h, payload)
	case protoICMP:
		if !s.config.EnableICMP {
			return nil, nil
		}
		return s.replyICMP(h, payload)
	default:
		logging.Debugf("dropping packet with unhandled IP protocol=%d len=%d", h.Protocol, len(data))
		return nil, nil
	}
}

func (s *SocketInterface) replyTCP(h *ipv4.Header, payload []byte) ([]byte, error) {
	s.tcpPath.received()

	seg, err := tcp.ParseSegment(payload)
	if err != nil {
		s.tcpPath.errored()
		return nil, err
	}

	ci := &core.ClientIdentity{
		IPSrc:     h.Src,
		IPDst:     h.Dst,
		Transport: core.TransportTCP,
	}
	repl := s.engine.Repl(seg, s.machine, ci)
	if repl == nil {
		s.tcpPath.suppressed()
		return nil, nil
	}

	src, dst := ip4(h.Dst.To4()), ip4(h.Src.To4())
	segBytes := repl.Marshal()
	finalizeTCP(segBytes, src, dst)
	s.tcpPath.replied()
	return buildIPv4(src, dst, protoTCP, segBytes), nil
}

func (s *SocketInterface) replyUDP(h *ipv4.Header, payload []byte) ([]byte, error) {
	s.udpPath.received()

	if len(payload) < 8 {
		s.udpPath.errored()
		return nil, fmt.Errorf("udp: datagram too short: %d bytes", len(payload))
	}
	srcPort := uint16(payload[0])<<8 | uint16(payload[1])
	dstPort := uint16(payload[2])<<8 | uint16(payload[3])

	ci := &core.ClientIdentity{
		IPSrc:     h.Src,
		IPDst:     h.Dst,
		Transport: core.TransportUDP,
		PortSrc:   srcPort,
		PortDst:   dstPort,
	}

	var data []byte
	if s.upper != nil {
		data = s.upper.Repl(payload[8:], ci)
	}
	if data == nil {
		s.udpPath.suppressed()
		return nil, nil
	}

	src, dst := ip4(h.Dst.To4()), ip4(h.Src.To4())
	dgram := buildUDP(src, dst, ci.PortDst, ci.PortSrc, data)
	s.udpPath.replied()
	return buildIPv4(src, dst, protoUDP, dgram), nil
}

func (s *SocketInterface) replyICMP(h *ipv4.Header, payload []byte) ([]byte, error) {
	s.icmpPath.received()

	msg, err := icmp.ParseMessage(protoICMP, payload)
	if err != nil {
		s.icmpPath.errored()
		return nil, fmt.Errorf("icmp: parse: %w", err)
	}
	echo, ok := msg.Body.(*icmp.Echo)
	if !ok || msg.Type != ipv4.ICMPTypeEcho {
		s.icmpPath.suppressed()
		return nil, nil
	}

	reply := icmp.Message{
		Type: ipv4.ICMPTypeEchoReply,
		Body: &icmp.Echo{ID: echo.ID, Seq: echo.Seq, Data: echo.Data},
	}
	body, err := reply.Marshal(nil)
	if err != nil {
		s.icmpPath.errored()
		return nil, fmt.Errorf("icmp: marshal: %w", err)
	}

	src, dst := ip4(h.Dst.To4()), ip4(h.Src.To4())
	s.icmpPath.replied()
	return buildIPv4(src, dst, protoICMP, body), nil
}

// Metrics returns the metrics for the socket interface.
func (s *SocketInterface) Metrics() core.SocketMetrics {
	return loadSocketMetrics(&s.metrics)
}

// DetailedMetrics returns total and per-transport metrics.
func (s *SocketInterface) DetailedMetrics() SocketDetailedMetrics {
	dm := SocketDetailedMetrics{
		Total: loadSocketMetrics(&s.metrics),
		TCP:   loadPathMetrics(&s.tcpPath),
		UDP:   loadPathMetrics(&s.udpPath),
		ICMP:  loadPathMetrics(&s.icmpPath),
	}
	if s.processor != nil {
		if m, ok := s.processor.(interface{ Metrics() map[string]uint64 }); ok {
			dm.Processor = m.Metrics()
		}
	}
	return dm
}

// rawWriter injects replies through the raw sockets. The kernel rebuilds the
// IP header, so only the transport bytes are written.
type rawWriter struct {
	s *SocketInterface
}

func (w *rawWriter) WriteReply(pkt []byte) error {
	if len(pkt) < ipv4MinHeaderSize {
		return fmt.Errorf("reply too short")
	}
	proto := pkt[9]
	src := net.IP(pkt[12:16])
	dst := &net.IPAddr{IP: net.IPv4(pkt[16], pkt[17], pkt[18], pkt[19])}
	body := pkt[ipv4MinHeaderSize:]
	cm := &ipv4.ControlMessage{Src: src}

	switch proto {
	case protoTCP:
		if w.s.tcp4 == nil {
			return fmt.Errorf("raw TCP socket not open")
		}
		_, err := w.s.tcp4.WriteTo(body, cm, dst)
		return err
	case protoUDP:
		if w.s.udp4 == nil {
			return fmt.Errorf("raw UDP socket not open")
		}
		_, err := w.s.udp4.WriteTo(body, cm, dst)
		return err
	case protoICMP:
		if w.s.icmpConn == nil {
			return fmt.Errorf("raw ICMP socket not open")
		}
		_, err := w.s.icmpConn.WriteTo(body, dst)
		return err
	default:
		return fmt.Errorf("unhandled reply protocol: %d", proto)
	}
}

// tunWriter injects whole IP packets into the TUN device.
type tunWriter struct {
	dev core.TUNDevice
}

func (w *tunWriter) WriteReply(pkt []byte) error {
	return w.dev.WritePacket(core.NewPacket(pkt))
}
