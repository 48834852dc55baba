package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/irctrakz/mirage/pkg/core"
	"github.com/irctrakz/mirage/pkg/logging"
	"github.com/irctrakz/mirage/pkg/proto"
	"github.com/irctrakz/mirage/pkg/socket"
)

// countWriter implements socket.ReplyWriter, counting replies instead of
// sending them.
type countWriter struct {
	replies uint64
	bytes   uint64
}

func (w *countWriter) WriteReply(pkt []byte) error {
	atomic.AddUint64(&w.replies, 1)
	atomic.AddUint64(&w.bytes, uint64(len(pkt)))
	return nil
}

// buildSYN crafts a full IPv4 SYN probe from a synthetic client.
func buildSYN(src, dst net.IP, srcPort uint16, seq uint32) ([]byte, error) {
	ip := &layers.IPv4{
		Version: 4, IHL: 5, TTL: 64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    src.To4(), DstIP: dst.To4(),
	}
	tcpl := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: 80,
		Seq:     seq,
		SYN:     true,
		Window:  64240,
	}
	if err := tcpl.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ip, tcpl); err != nil {
		return nil, err
	}
	return append([]byte(nil), buf.Bytes()...), nil
}

func main() {
	var (
		count   = flag.Int("n", 200000, "number of SYN probes to push through the pipeline")
		workers = flag.Int("workers", 4, "concurrent pipeline workers")
		clients = flag.Int("clients", 1024, "distinct synthetic client tuples")
	)
	flag.Parse()

	logging.SetLevel(logging.WarnLevel)

	machine := &core.Responder{
		Addresses: []net.IP{net.ParseIP("192.0.2.10")},
		SynAckKey: [2]uint64{0x06a0a1d63f305e9b, 0xd4d4bcbb7304875f},
	}
	w := &countWriter{}
	s := socket.NewSocketInterface(socket.DefaultConfig(), machine, proto.Default())
	s.SetReplyWriter(w)

	// Prebuild the probe set so crafting cost stays out of the measurement.
	probes := make([][]byte, *clients)
	for i := range probes {
		src := net.IPv4(10, 0, byte(i>>8), byte(i))
		p, err := buildSYN(src, machine.Addresses[0], uint16(1024+i), uint32(i)*2654435761)
		if err != nil {
			fmt.Fprintf(os.Stderr, "craft: %v\n", err)
			os.Exit(1)
		}
		probes[i] = p
	}

	start := time.Now()
	var wg sync.WaitGroup
	per := *count / *workers
	for wkr := 0; wkr < *workers; wkr++ {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			for i := 0; i < per; i++ {
				probe := probes[(seed+i)%len(probes)]
				// Errors are counted by the interface metrics.
				_ = s.HandlePacket(core.NewPacket(probe))
			}
		}(wkr * per)
	}
	wg.Wait()
	dur := time.Since(start)

	m := s.Metrics()
	total := *workers * per
	fmt.Printf("pushed %d SYNs in %v (%.0f pkt/s)\n", total, dur, float64(total)/dur.Seconds())
	fmt.Printf("replies=%d reply_bytes=%d suppressed=%d errors=%d\n",
		atomic.LoadUint64(&w.replies), atomic.LoadUint64(&w.bytes), m.RepliesSuppressed, m.Errors)

	if atomic.LoadUint64(&w.replies) != uint64(total) {
		fmt.Println("WARN: not every SYN was answered; inspect errors above")
	}
}
