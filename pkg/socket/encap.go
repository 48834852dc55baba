package socket

import (
	"encoding/binary"
)

const (
	ipv4MinHeaderSize = 20

	protoICMP = 1
	protoTCP  = 6
	protoUDP  = 17
)

// buildIPv4 wraps a transport payload in a minimal IPv4 header. The payload
// is copied into the returned buffer after the 20 byte header.
func buildIPv4(srcIP, dstIP [4]byte, proto byte, payload []byte) []byte {
	total := ipv4MinHeaderSize + len(payload)
	pkt := bufMaybePool(total)

	pkt[0] = 0x45 // version=4, IHL=5
	pkt[1] = 0x00 // DSCP/ECN
	pkt[2] = byte(total >> 8)
	pkt[3] = byte(total & 0xff)
	id := nextIPID()
	pkt[4] = byte(id >> 8)
	pkt[5] = byte(id)
	pkt[6], pkt[7] = 0, 0 // flags/frag offset
	pkt[8] = 64           // TTL
	pkt[9] = proto
	pkt[10], pkt[11] = 0, 0 // header checksum (below)
	copy(pkt[12:16], srcIP[:])
	copy(pkt[16:20], dstIP[:])
	csum := calculateChecksum(pkt[:ipv4MinHeaderSize])
	pkt[10] = byte(csum >> 8)
	pkt[11] = byte(csum & 0xff)

	copy(pkt[ipv4MinHeaderSize:], payload)
	return pkt
}

// finalizeTCP writes the pseudo-header checksum into a marshalled TCP
// segment.
func finalizeTCP(seg []byte, srcIP, dstIP [4]byte) {
	binary.BigEndian.PutUint16(seg[16:18], 0)
	binary.BigEndian.PutUint16(seg[16:18], transportChecksum(seg, srcIP, dstIP, protoTCP))
}

// buildUDP builds a UDP header plus payload with the pseudo-header checksum
// filled in. The checksum is optional for IPv4 but scanners notice a zero.
func buildUDP(srcIP, dstIP [4]byte, srcPort, dstPort uint16, payload []byte) []byte {
	udpLen := 8 + len(payload)
	dgram := make([]byte, udpLen)
	binary.BigEndian.PutUint16(dgram[0:2], srcPort)
	binary.BigEndian.PutUint16(dgram[2:4], dstPort)
	binary.BigEndian.PutUint16(dgram[4:6], uint16(udpLen))
	copy(dgram[8:], payload)
	binary.BigEndian.PutUint16(dgram[6:8], transportChecksum(dgram, srcIP, dstIP, protoUDP))
	return dgram
}

// transportChecksum computes the Internet checksum of a transport segment
// prefixed by the IPv4 pseudo-header.
func transportChecksum(seg []byte, srcIP, dstIP [4]byte, proto byte) uint16 {
	sum := uint32(0)
	var pseudo [12]byte
	copy(pseudo[0:4], srcIP[:])
	copy(pseudo[4:8], dstIP[:])
	pseudo[8] = 0
	pseudo[9] = proto
	binary.BigEndian.PutUint16(pseudo[10:12], uint16(len(seg)))
	for i := 0; i < len(pseudo); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(pseudo[i : i+2]))
	}
	for i := 0; i+1 < len(seg); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(seg[i : i+2]))
	}
	if len(seg)%2 == 1 {
		sum += uint32(uint16(seg[len(seg)-1]) << 8)
	}
	for (sum >> 16) != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}

// calculateChecksum calculates the Internet checksum for the given data.
func calculateChecksum(data []byte) uint16 {
	var sum uint32
	for i := 0; i < len(data)-1; i += 2 {
		sum += uint32(data[i])<<8 | uint32(data[i+1])
	}
	if len(data)%2 == 1 {
		sum += uint32(data[len(data)-1]) << 8
	}
	for sum>>16 > 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return uint16(^sum)
}

// ip4 extracts a 4-byte IPv4 address; callers validate the version before
// reaching here.
func ip4(b []byte) [4]byte {
	var a [4]byte
	copy(a[:], b)
	return a
}
