// Package icmp implements the two ICMPv4 message types this stack
// needs as a stateless responder: echo reply to echo requests, and
// destination-unreachable (protocol-unreachable) when ipv4.Datapath
// finds no registered handler for an incoming datagram's protocol.
package icmp

import (
	"encoding/binary"
	"errors"

	"microstack/checksum"
	"microstack/ipv4"
)

// Type is the ICMP message type field.
type Type uint8

const (
	TypeEchoReply              Type = 0
	TypeEcho                   Type = 8
	TypeDestinationUnreachable Type = 3
)

// CodeDestinationUnreachable is the code field of a
// TypeDestinationUnreachable message.
type CodeDestinationUnreachable uint8

const (
	CodeNetUnreachable   CodeDestinationUnreachable = 0
	CodeHostUnreachable  CodeDestinationUnreachable = 1
	CodeProtoUnreachable CodeDestinationUnreachable = 2
	CodePortUnreachable  CodeDestinationUnreachable = 3
)

var errShort = errors.New("icmp: short frame")

// NewFrame wraps buf, requiring at least the 8-byte ICMP header.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < 8 {
		return Frame{}, errShort
	}
	return Frame{buf: buf}, nil
}

// Frame is a generic ICMPv4 message: 1-byte type, 1-byte code, 2-byte
// checksum, 4-byte type-specific header, followed by payload.
type Frame struct {
	buf []byte
}

func (f Frame) RawData() []byte { return f.buf }

func (f Frame) Type() Type { return Type(f.buf[0]) }

func (f Frame) SetType(t Type) { f.buf[0] = uint8(t) }

func (f Frame) Code() uint8 { return f.buf[1] }

func (f Frame) SetCode(c uint8) { f.buf[1] = c }

func (f Frame) CRC() uint16 { return binary.BigEndian.Uint16(f.buf[2:4]) }

func (f Frame) SetCRC(crc uint16) { binary.BigEndian.PutUint16(f.buf[2:4], crc) }

// CalculateCRC computes the ICMP checksum, treating the checksum field
// as zero per RFC 792. Unlike IPv4/TCP/UDP, ICMP has no pseudo-header.
func (f Frame) CalculateCRC() uint16 {
	var a checksum.Accumulator
	a.AddUint16(binary.BigEndian.Uint16(f.buf[0:2]))
	a.Write(f.buf[4:])
	return a.Sum16()
}

// FrameEcho is an echo request/reply: identifier, sequence number, and
// opaque data to be mirrored back unmodified.
type FrameEcho struct{ Frame }

func NewFrameEcho(buf []byte) (FrameEcho, error) {
	f, err := NewFrame(buf)
	return FrameEcho{f}, err
}

func (f FrameEcho) Identifier() uint16 { return binary.BigEndian.Uint16(f.buf[4:6]) }

func (f FrameEcho) SetIdentifier(id uint16) { binary.BigEndian.PutUint16(f.buf[4:6], id) }

func (f FrameEcho) SequenceNumber() uint16 { return binary.BigEndian.Uint16(f.buf[6:8]) }

func (f FrameEcho) SetSequenceNumber(seq uint16) { binary.BigEndian.PutUint16(f.buf[6:8], seq) }

func (f FrameEcho) Data() []byte { return f.buf[8:] }

// FrameDestinationUnreachable carries an unused 4-byte field followed by
// the IPv4 header and first 8 bytes of the original datagram's payload
// (RFC 792), which is all this responder ever emits.
type FrameDestinationUnreachable struct{ Frame }

func NewFrameDestinationUnreachable(buf []byte) (FrameDestinationUnreachable, error) {
	f, err := NewFrame(buf)
	return FrameDestinationUnreachable{f}, err
}

func (f FrameDestinationUnreachable) Code() CodeDestinationUnreachable {
	return CodeDestinationUnreachable(f.Frame.Code())
}

func (f FrameDestinationUnreachable) SetCode(c CodeDestinationUnreachable) {
	f.Frame.SetCode(uint8(c))
}

// Unused returns the 4-byte field following the ICMP header, unused by
// this responder.
func (f FrameDestinationUnreachable) Unused() []byte { return f.buf[4:8] }

// OriginalFragment returns the space following the 4-byte unused field,
// meant to hold the original IPv4 header plus leading octets of its
// payload.
func (f FrameDestinationUnreachable) OriginalFragment() []byte { return f.buf[8:] }

// Responder answers echo requests and emits destination-unreachable
// notices, using Out to hand a completed ICMP payload down to the IPv4
// datapath.
type Responder struct {
	out func(payload []byte, dstIP [4]byte, protocol ipv4.IPProto) error
}

// NewResponder constructs a Responder. out is typically
// (*ipv4.Datapath).Out.
func NewResponder(out func(payload []byte, dstIP [4]byte, protocol ipv4.IPProto) error) *Responder {
	return &Responder{out: out}
}

// HandleEcho implements the ipv4 demux.Handler for ICMP: the only
// inbound message type this responder understands is echo request,
// which it answers with an identical payload under TypeEchoReply.
// Anything else is dropped silently, matching a minimal stateless
// responder.
func (r *Responder) HandleEcho(buf []byte, src [4]byte) error {
	req, err := NewFrameEcho(buf)
	if err != nil {
		return err
	}
	if req.Type() != TypeEcho {
		return nil
	}
	reply := make([]byte, len(buf))
	copy(reply, buf)
	rf, _ := NewFrameEcho(reply)
	rf.SetType(TypeEchoReply)
	rf.SetCode(0)
	rf.SetCRC(0)
	rf.SetCRC(rf.CalculateCRC())
	return r.out(reply, src, ipv4.ProtoICMP)
}

// maxOriginalPayloadBytes is how much of the dropped datagram's payload,
// beyond its IP header, RFC 792 asks a destination-unreachable message
// to echo back.
const maxOriginalPayloadBytes = 8

// unreachable builds and sends a destination-unreachable message under
// code, echoing original's IP header plus the first
// maxOriginalPayloadBytes of its payload, addressed back to original's
// source. original must be a full IPv4 datagram starting at its header.
func (r *Responder) unreachable(code CodeDestinationUnreachable, original []byte) error {
	f, err := ipv4.NewFrame(original)
	if err != nil {
		return err
	}
	n := f.HeaderLength() + maxOriginalPayloadBytes
	if n > len(original) {
		n = len(original)
	}
	echoed := original[:n]
	reply := make([]byte, 8+len(echoed))
	rf, _ := NewFrameDestinationUnreachable(reply)
	rf.SetType(TypeDestinationUnreachable)
	rf.SetCode(code)
	copy(rf.OriginalFragment(), echoed)
	rf.SetCRC(0)
	rf.SetCRC(rf.CalculateCRC())
	return r.out(reply, *f.SourceAddr(), ipv4.ProtoICMP)
}

// DestinationUnreachable builds and sends a protocol-unreachable message
// referencing original, a full copy of the dropped IPv4 datagram. It is
// installed as the ipv4.Datapath's Unreachable callback, fired when no
// handler is registered for the datagram's protocol number at all.
func (r *Responder) DestinationUnreachable(original []byte) error {
	return r.unreachable(CodeProtoUnreachable, original)
}

// PortUnreachable builds and sends a port-unreachable message referencing
// original, the full IPv4 datagram whose UDP destination port had no
// registered handler. stack.New wires it to the udp layer's Unreachable
// callback via ipv4.(*Datapath).InFlight, which still holds the datagram
// with its IP header while the UDP receive path runs.
func (r *Responder) PortUnreachable(original []byte) error {
	return r.unreachable(CodePortUnreachable, original)
}
