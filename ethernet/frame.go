// Package ethernet implements Ethernet II frame parsing/building (IEEE
// 802.3) for the subset this stack terminates: no VLAN tagging, no jumbo
// frames.
package ethernet

import (
	"encoding/binary"
	"errors"
)

var errShort = errors.New("ethernet: frame shorter than header")

// NewFrame returns a Frame backed by buf. buf must be at least the
// 14-byte Ethernet header; an error is returned otherwise.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < sizeHeaderNoVLAN {
		return Frame{}, errShort
	}
	return Frame{buf: buf}, nil
}

// Frame encapsulates the raw bytes of an Ethernet II frame (destination
// MAC first, no preamble/FCS) and provides accessors over them. Frame is
// a thin wrapper: all methods read/write the backing slice in place.
type Frame struct {
	buf []byte
}

// RawData returns the underlying slice the Frame was constructed with.
func (f Frame) RawData() []byte { return f.buf }

// HeaderLength is always 14 for the non-VLAN frames this stack handles.
func (f Frame) HeaderLength() int { return sizeHeaderNoVLAN }

// Payload returns the frame's payload, clipped to EtherTypeOrSize() when
// that field holds an 802.3 length rather than an EtherType.
func (f Frame) Payload() []byte {
	et := f.EtherTypeOrSize()
	if et.IsSize() {
		return f.buf[sizeHeaderNoVLAN : sizeHeaderNoVLAN+int(et)]
	}
	return f.buf[sizeHeaderNoVLAN:]
}

// DestinationHardwareAddr returns a pointer to the destination MAC field.
func (f Frame) DestinationHardwareAddr() *[6]byte { return (*[6]byte)(f.buf[0:6]) }

// SourceHardwareAddr returns a pointer to the source MAC field.
func (f Frame) SourceHardwareAddr() *[6]byte { return (*[6]byte)(f.buf[6:12]) }

// IsBroadcast reports whether the destination address is ff:ff:ff:ff:ff:ff.
func (f Frame) IsBroadcast() bool {
	dst := f.DestinationHardwareAddr()
	return *dst == BroadcastAddr()
}

// EtherTypeOrSize returns the 12:14 field, which may be an EtherType or an
// 802.3 payload size; see Type.IsSize.
func (f Frame) EtherTypeOrSize() Type {
	return Type(binary.BigEndian.Uint16(f.buf[12:14]))
}

// SetEtherType sets the 12:14 field.
func (f Frame) SetEtherType(t Type) {
	binary.BigEndian.PutUint16(f.buf[12:14], uint16(t))
}
