// Package udp implements RFC 768 UDP datagrams as a stateless,
// per-destination-port responder registry sitting above ipv4.Datapath.
package udp

import (
	"encoding/binary"
	"errors"
)

const sizeHeader = 8

var (
	errBadLen = errors.New("udp: bad length field")
	errShort  = errors.New("udp: short buffer")
)

// NewFrame wraps buf, requiring at least the 8-byte UDP header.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < sizeHeader {
		return Frame{}, errShort
	}
	return Frame{buf: buf}, nil
}

// Frame encapsulates the raw bytes of a UDP datagram.
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

// Length is the UDP header+payload length in bytes, per the header field
// (distinct from len(RawData), which may include Ethernet padding).
func (f Frame) Length() uint16 { return binary.BigEndian.Uint16(f.buf[4:6]) }

// SetLength sets the length field.
func (f Frame) SetLength(l uint16) { binary.BigEndian.PutUint16(f.buf[4:6], l) }

// CRC returns the checksum field.
func (f Frame) CRC() uint16 { return binary.BigEndian.Uint16(f.buf[6:8]) }

// SetCRC sets the checksum field.
func (f Frame) SetCRC(crc uint16) { binary.BigEndian.PutUint16(f.buf[6:8], crc) }

// Payload returns the datagram's payload, as bounded by Length.
func (f Frame) Payload() []byte { return f.buf[sizeHeader:f.Length()] }

// ValidateSize checks the Length field against the buffer.
func (f Frame) ValidateSize() error {
	l := f.Length()
	if l < sizeHeader {
		return errBadLen
	}
	if int(l) > len(f.buf) {
		return errShort
	}
	return nil
}
