// Package arp implements the ARP resolver (RFC 826) for IPv4-over-Ethernet:
// the IP->MAC table, the single-slot pending-send queue keyed by
// destination IP, and the wire frame accessors.
package arp

import (
	"encoding/binary"
	"errors"

	"microstack/ethernet"
)

var errShort = errors.New("arp: frame shorter than header")

// NewFrame returns a Frame backed by buf. buf must hold at least the fixed
// 28-byte IPv4-over-Ethernet ARP record.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < sizeHeader {
		return Frame{}, errShort
	}
	return Frame{buf: buf}, nil
}

// Frame encapsulates the raw bytes of an ARP packet restricted to the
// Ethernet hardware / IPv4 protocol combination this stack resolves.
type Frame struct {
	buf []byte
}

// RawData returns the underlying slice the Frame was constructed with.
func (f Frame) RawData() []byte { return f.buf }

// Hardware returns the hardware type and address length fields.
func (f Frame) Hardware() (typ uint16, length uint8) {
	return binary.BigEndian.Uint16(f.buf[0:2]), f.buf[4]
}

// Protocol returns the protocol type and address length fields.
func (f Frame) Protocol() (typ ethernet.Type, length uint8) {
	return ethernet.Type(binary.BigEndian.Uint16(f.buf[2:4])), f.buf[5]
}

// Operation returns the ARP opcode.
func (f Frame) Operation() Op { return Op(binary.BigEndian.Uint16(f.buf[6:8])) }

// SetOperation sets the ARP opcode.
func (f Frame) SetOperation(op Op) { binary.BigEndian.PutUint16(f.buf[6:8], uint16(op)) }

// SenderHardwareAddr returns a pointer to the sender MAC field.
func (f Frame) SenderHardwareAddr() *[6]byte { return (*[6]byte)(f.buf[8:14]) }

// SenderProtoAddr returns a pointer to the sender IPv4 field.
func (f Frame) SenderProtoAddr() *[4]byte { return (*[4]byte)(f.buf[14:18]) }

// TargetHardwareAddr returns a pointer to the target MAC field.
func (f Frame) TargetHardwareAddr() *[6]byte { return (*[6]byte)(f.buf[18:24]) }

// TargetProtoAddr returns a pointer to the target IPv4 field.
func (f Frame) TargetProtoAddr() *[4]byte { return (*[4]byte)(f.buf[24:28]) }

// ValidateSize checks the fixed fields expected of an Ethernet/IPv4 ARP
// record: hardware type Ethernet, protocol type IPv4, and matching address
// lengths. Opcode validity is left to the caller (request/reply only).
func (f Frame) ValidateSize() error {
	if len(f.buf) < sizeHeader {
		return errShort
	}
	htype, hlen := f.Hardware()
	ptype, plen := f.Protocol()
	if htype != hwTypeEthernet || hlen != hwLenEthernet {
		return errors.New("arp: unsupported hardware type/length")
	}
	if ptype != ethernet.TypeIPv4 || plen != protoLenIPv4 {
		return errors.New("arp: unsupported protocol type/length")
	}
	return nil
}

// BuildRequest writes an ARP request into buf (which must be at least
// sizeHeader bytes) asking who has targetIP, from senderMAC/senderIP.
func BuildRequest(buf []byte, senderMAC [6]byte, senderIP [4]byte, targetIP [4]byte) (Frame, error) {
	f, err := NewFrame(buf[:sizeHeader])
	if err != nil {
		return Frame{}, err
	}
	fillHeader(f, OpRequest, senderMAC, senderIP, [6]byte{}, targetIP)
	return f, nil
}

// BuildReply writes an ARP reply into buf answering a request from
// targetMAC/targetIP, advertising senderMAC/senderIP as the resolved pair.
func BuildReply(buf []byte, senderMAC [6]byte, senderIP [4]byte, targetMAC [6]byte, targetIP [4]byte) (Frame, error) {
	f, err := NewFrame(buf[:sizeHeader])
	if err != nil {
		return Frame{}, err
	}
	fillHeader(f, OpReply, senderMAC, senderIP, targetMAC, targetIP)
	return f, nil
}

func fillHeader(f Frame, op Op, senderMAC [6]byte, senderIP [4]byte, targetMAC [6]byte, targetIP [4]byte) {
	binary.BigEndian.PutUint16(f.buf[0:2], hwTypeEthernet)
	binary.BigEndian.PutUint16(f.buf[2:4], uint16(ethernet.TypeIPv4))
	f.buf[4] = hwLenEthernet
	f.buf[5] = protoLenIPv4
	f.SetOperation(op)
	*f.SenderHardwareAddr() = senderMAC
	*f.SenderProtoAddr() = senderIP
	*f.TargetHardwareAddr() = targetMAC
	*f.TargetProtoAddr() = targetIP
}
