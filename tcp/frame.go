package tcp

import (
	"encoding/binary"
	"errors"

	"microstack/checksum"
	"microstack/ipv4"
)

var errShort = errors.New("tcp: short buffer")

// NewFrame returns a new Frame with data set to buf. An error is
// returned if the buffer is smaller than the fixed 20-byte header; this
// stack builds no TCP options of its own (data offset 5) and reads only
// the peer's MSS option (see ParseMSS).
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < sizeHeader {
		return Frame{}, errShort
	}
	return Frame{buf: buf}, nil
}

// Frame encapsulates the raw bytes of a TCP segment. See RFC 9293.
type Frame struct {
	buf []byte
}

// RawData returns the underlying slice the Frame was constructed with.
func (f Frame) RawData() []byte { return f.buf }

// SourcePort identifies the sending port.
func (f Frame) SourcePort() uint16 { return binary.BigEndian.Uint16(f.buf[0:2]) }

// SetSourcePort sets the source port.
func (f Frame) SetSourcePort(p uint16) { binary.BigEndian.PutUint16(f.buf[0:2], p) }

// DestinationPort identifies the receiving port.
func (f Frame) DestinationPort() uint16 { return binary.BigEndian.Uint16(f.buf[2:4]) }

// SetDestinationPort sets the destination port.
func (f Frame) SetDestinationPort(p uint16) { binary.BigEndian.PutUint16(f.buf[2:4], p) }

// Seq returns the sequence number of the first data octet in this
// segment (the ISN itself, if SYN is set).
func (f Frame) Seq() uint32 { return binary.BigEndian.Uint32(f.buf[4:8]) }

// SetSeq sets the sequence number field.
func (f Frame) SetSeq(v uint32) { binary.BigEndian.PutUint32(f.buf[4:8], v) }

// Ack is the next sequence number the sender expects to receive.
func (f Frame) Ack() uint32 { return binary.BigEndian.Uint32(f.buf[8:12]) }

// SetAck sets the acknowledgment number field.
func (f Frame) SetAck(v uint32) { binary.BigEndian.PutUint32(f.buf[8:12], v) }

// OffsetAndFlags returns the data offset (in 32-bit words) and flags.
func (f Frame) OffsetAndFlags() (offset uint8, flags Flags) {
	v := binary.BigEndian.Uint16(f.buf[12:14])
	return uint8(v >> 12), Flags(v).Mask()
}

// SetOffsetAndFlags sets the data offset and flags field.
func (f Frame) SetOffsetAndFlags(offset uint8, flags Flags) {
	v := uint16(offset)<<12 | uint16(flags.Mask())
	binary.BigEndian.PutUint16(f.buf[12:14], v)
}

// HeaderLength returns the header length in bytes per the data offset
// field. Performs no validation.
func (f Frame) HeaderLength() int {
	offset, _ := f.OffsetAndFlags()
	return int(offset) * 4
}

// WindowSize returns the advertised receive window.
func (f Frame) WindowSize() uint16 { return binary.BigEndian.Uint16(f.buf[14:16]) }

// SetWindowSize sets the advertised receive window.
func (f Frame) SetWindowSize(v uint16) { binary.BigEndian.PutUint16(f.buf[14:16], v) }

// CRC returns the checksum field.
func (f Frame) CRC() uint16 { return binary.BigEndian.Uint16(f.buf[16:18]) }

// SetCRC sets the checksum field.
func (f Frame) SetCRC(crc uint16) { binary.BigEndian.PutUint16(f.buf[16:18], crc) }

// UrgentPtr returns the urgent pointer field.
func (f Frame) UrgentPtr() uint16 { return binary.BigEndian.Uint16(f.buf[18:20]) }

// SetUrgentPtr sets the urgent pointer field.
func (f Frame) SetUrgentPtr(up uint16) { binary.BigEndian.PutUint16(f.buf[18:20], up) }

// Payload returns the segment data following the header, given the
// overall segment length (header + data) segLen.
func (f Frame) Payload(segLen int) []byte {
	hl := f.HeaderLength()
	return f.buf[hl:segLen]
}

// Options returns the option bytes between the fixed 20-byte header and
// the data offset, or nil if the data offset is 5 (no options). This
// stack never builds segments carrying options of its own; Options
// exists only to observe the peer's MSS on an inbound SYN.
func (f Frame) Options() []byte {
	hl := f.HeaderLength()
	if hl <= sizeHeader {
		return nil
	}
	return f.buf[sizeHeader:hl]
}

// optKindEnd, optKindNOP and optKindMSS are the TCP option kinds this
// stack recognizes while scanning for MSS; every other kind (and its
// declared length) is skipped over unread.
const (
	optKindEnd = 0
	optKindNOP = 1
	optKindMSS = 2
)

// ParseMSS scans opts (as returned by Options) for a maximum-segment-size
// option and returns its value. It reports false if no well-formed MSS
// option is present.
func ParseMSS(opts []byte) (mss uint16, ok bool) {
	for i := 0; i < len(opts); {
		kind := opts[i]
		switch kind {
		case optKindEnd:
			return 0, false
		case optKindNOP:
			i++
			continue
		}
		if i+1 >= len(opts) {
			return 0, false
		}
		length := int(opts[i+1])
		if length < 2 || i+length > len(opts) {
			return 0, false
		}
		if kind == optKindMSS && length == 4 {
			return binary.BigEndian.Uint16(opts[i+2 : i+4]), true
		}
		i += length
	}
	return 0, false
}

// ValidateSize checks that the buffer can hold at least the fixed
// header and that segLen is internally consistent.
func (f Frame) ValidateSize(segLen int) error {
	if len(f.buf) < sizeHeader || segLen < sizeHeader {
		return errShort
	}
	hl := f.HeaderLength()
	if hl < sizeHeader || hl > segLen || segLen > len(f.buf) {
		return errors.New("tcp: bad data offset")
	}
	return nil
}

// CalculateChecksum computes the TCP checksum over the pseudo-header
// followed by the segment bytes buf[:segLen], treating the checksum
// field as zero. The pseudo-header is streamed directly into the
// accumulator, so no prepend headroom on the segment buffer is needed.
func CalculateChecksum(srcIP, dstIP [4]byte, segLen int, buf []byte) uint16 {
	var a checksum.Accumulator
	ipv4.WritePseudoHeader(&a, srcIP, dstIP, ipv4.ProtoTCP, uint16(segLen))
	a.Write(buf[:segLen])
	return a.Sum16()
}
