package tcp

import (
	"encoding/binary"
	"fmt"
)

// TCP flag bits.
const (
	FlagFIN = 0x01
	FlagSYN = 0x02
	FlagRST = 0x04
	FlagPSH = 0x08
	FlagACK = 0x10
	FlagURG = 0x20
)

const (
	// headerLen is the minimum TCP header size in bytes.
	headerLen = 20

	// replyDataOffset is the data offset (in 32-bit words) emitted on every
	// reply: minimal header, no options.
	replyDataOffset = 5

	// replyWindow is the fixed window advertised on every reply.
	replyWindow = 65535
)

// Segment is a parsed TCP segment: header fields plus payload. The checksum
// is not represented; encapsulation owns it.
type Segment struct {
	SrcPort    uint16
	DstPort    uint16
	Seq        uint32
	Ack        uint32
	DataOffset uint8 // in 32-bit words
	Flags      uint8
	Window     uint16
	Payload    []byte
}

// ParseSegment decodes a TCP header and payload from raw bytes. The payload
// slice aliases b; callers that reuse the read buffer must copy it first.
func ParseSegment(b []byte) (*Segment, error) {
	if len(b) < headerLen {
		return nil, fmt.Errorf("tcp: segment too short: %d bytes", len(b))
	}
	s := &Segment{
		SrcPort:    binary.BigEndian.Uint16(b[0:2]),
		DstPort:    binary.BigEndian.Uint16(b[2:4]),
		Seq:        binary.BigEndian.Uint32(b[4:8]),
		Ack:        binary.BigEndian.Uint32(b[8:12]),
		DataOffset: b[12] >> 4,
		Flags:      b[13],
		Window:     binary.BigEndian.Uint16(b[14:16]),
	}
	off := int(s.DataOffset) * 4
	if off < headerLen || off > len(b) {
		return nil, fmt.Errorf("tcp: invalid data offset %d for %d byte segment", s.DataOffset, len(b))
	}
	s.Payload = b[off:]
	return s, nil
}

// Marshal serializes the segment with a zeroed checksum field. Options are
// never emitted; a data offset above the minimum is a construction bug.
func (s *Segment) Marshal() []byte {
	b := make([]byte, headerLen+len(s.Payload))
	binary.BigEndian.PutUint16(b[0:2], s.SrcPort)
	binary.BigEndian.PutUint16(b[2:4], s.DstPort)
	binary.BigEndian.PutUint32(b[4:8], s.Seq)
	binary.BigEndian.PutUint32(b[8:12], s.Ack)
	b[12] = s.DataOffset << 4
	b[13] = s.Flags
	binary.BigEndian.PutUint16(b[14:16], s.Window)
	copy(b[headerLen:], s.Payload)
	return b
}

// flagNames maps flag bits to their conventional letters, for logs.
func flagString(flags uint8) string {
	names := []struct {
		bit  uint8
		name byte
	}{
		{FlagFIN, 'F'}, {FlagSYN, 'S'}, {FlagRST, 'R'},
		{FlagPSH, 'P'}, {FlagACK, 'A'}, {FlagURG, 'U'},
	}
	out := make([]byte, 0, len(names))
	for _, n := range names {
		if flags&n.bit != 0 {
			out = append(out, n.name)
		}
	}
	if len(out) == 0 {
		return "none"
	}
	return string(out)
}
