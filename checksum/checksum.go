// Package checksum implements the 16-bit one's-complement checksum with
// end-around carry used by IPv4, TCP, and UDP (RFC 791/793/768). The
// accumulator's zero value is ready to use.
package checksum

import "encoding/binary"

// Accumulator is a running one's-complement sum. Its zero value is ready
// to use.
type Accumulator struct {
	sum uint32
}

// Reset zeros the accumulator.
func (a *Accumulator) Reset() { a.sum = 0 }

// AddUint16 folds a big-endian 16-bit value into the running sum.
func (a *Accumulator) AddUint16(v uint16) { a.sum += uint32(v) }

// AddUint32 folds a big-endian 32-bit value into the running sum as two
// 16-bit words.
func (a *Accumulator) AddUint32(v uint32) {
	a.AddUint16(uint16(v >> 16))
	a.AddUint16(uint16(v))
}

// Write adds the bytes in p to the running checksum, treating them as a
// sequence of big-endian 16-bit words. An odd trailing byte is padded
// with a zero low-order byte, so only the last Write of a run may pass
// odd-length input.
func (a *Accumulator) Write(p []byte) {
	for i := 0; i+1 < len(p); i += 2 {
		a.sum += uint32(binary.BigEndian.Uint16(p[i:]))
	}
	if len(p)&1 != 0 {
		a.sum += uint32(p[len(p)-1]) << 8
	}
}

// Sum16 folds the accumulator down to its final 16-bit one's-complement
// checksum.
func (a *Accumulator) Sum16() uint16 {
	sum := a.sum
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + sum>>16
	}
	return ^uint16(sum)
}

// Sum16 is a convenience one-shot checksum over a single buffer.
func Sum16(p []byte) uint16 {
	var a Accumulator
	a.Write(p)
	return a.Sum16()
}

// NeverZero maps the all-zero checksum (which is indistinguishable from
// "no checksum" on the wire for UDP) to the equivalent all-ones value.
func NeverZero(sum16 uint16) uint16 {
	if sum16 == 0 {
		return 0xffff
	}
	return sum16
}

// Verify recomputes the checksum of data with the existing checksum field
// (stored big-endian at data[fieldOffset:fieldOffset+2]) zeroed out, and
// reports whether it matches the value that was present in that field.
// The field is restored to its original value before returning, so this
// function has no visible effect on data regardless of outcome.
func Verify(data []byte, fieldOffset int) bool {
	want := binary.BigEndian.Uint16(data[fieldOffset:])
	binary.BigEndian.PutUint16(data[fieldOffset:], 0)
	got := Sum16(data)
	binary.BigEndian.PutUint16(data[fieldOffset:], want)
	return got == want
}
