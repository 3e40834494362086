package icmp

import (
	"bytes"
	"testing"

	"microstack/ipv4"
)

func TestResponderEchoReply(t *testing.T) {
	var sentPayload []byte
	var sentDst [4]byte
	var sentProto ipv4.IPProto
	r := NewResponder(func(payload []byte, dst [4]byte, proto ipv4.IPProto) error {
		sentPayload = append([]byte(nil), payload...)
		sentDst = dst
		sentProto = proto
		return nil
	})

	req := make([]byte, 12)
	f, err := NewFrameEcho(req)
	if err != nil {
		t.Fatal(err)
	}
	f.SetType(TypeEcho)
	f.SetIdentifier(7)
	f.SetSequenceNumber(1)
	copy(f.Data(), []byte("ping"))
	f.SetCRC(0)
	f.SetCRC(f.CalculateCRC())

	src := [4]byte{10, 0, 0, 5}
	if err := r.HandleEcho(req, src); err != nil {
		t.Fatal(err)
	}
	if sentDst != src || sentProto != ipv4.ProtoICMP {
		t.Fatalf("unexpected destination/protocol: %v %v", sentDst, sentProto)
	}
	reply, err := NewFrameEcho(sentPayload)
	if err != nil {
		t.Fatal(err)
	}
	if reply.Type() != TypeEchoReply {
		t.Fatal("expected echo reply type")
	}
	if reply.Identifier() != 7 || reply.SequenceNumber() != 1 {
		t.Fatal("identifier/sequence must be mirrored")
	}
	if !bytes.Equal(reply.Data(), []byte("ping")) {
		t.Fatal("echo data must be mirrored unmodified")
	}
	want := reply.CRC()
	reply.SetCRC(0)
	if reply.CalculateCRC() != want {
		t.Fatal("reply checksum does not self-verify")
	}
}

func TestResponderIgnoresNonEchoRequest(t *testing.T) {
	var called bool
	r := NewResponder(func([]byte, [4]byte, ipv4.IPProto) error { called = true; return nil })
	req := make([]byte, 8)
	f, _ := NewFrameEcho(req)
	f.SetType(TypeEchoReply) // not a request
	if err := r.HandleEcho(req, [4]byte{}); err != nil {
		t.Fatal(err)
	}
	if called {
		t.Fatal("responder must not answer a reply with another reply")
	}
}

func TestDestinationUnreachable(t *testing.T) {
	var sentPayload []byte
	var sentDst [4]byte
	r := NewResponder(func(payload []byte, dst [4]byte, proto ipv4.IPProto) error {
		sentPayload = append([]byte(nil), payload...)
		sentDst = dst
		return nil
	})

	original := make([]byte, 20+12)
	of, err := ipv4.NewFrame(original)
	if err != nil {
		t.Fatal(err)
	}
	of.SetVersionAndIHL(4, 5)
	of.SetTotalLength(uint16(len(original)))
	*of.SourceAddr() = [4]byte{10, 0, 0, 9}
	*of.DestinationAddr() = [4]byte{10, 0, 0, 1}

	if err := r.DestinationUnreachable(original); err != nil {
		t.Fatal(err)
	}
	if sentDst != [4]byte{10, 0, 0, 9} {
		t.Fatalf("expected reply addressed to original sender, got %v", sentDst)
	}
	uf, err := NewFrameDestinationUnreachable(sentPayload)
	if err != nil {
		t.Fatal(err)
	}
	if uf.Type() != TypeDestinationUnreachable || uf.Code() != CodeProtoUnreachable {
		t.Fatal("unexpected type/code")
	}
	if len(uf.OriginalFragment()) != 20+8 {
		t.Fatalf("expected header + 8 bytes echoed back, got %d", len(uf.OriginalFragment()))
	}
	if !bytes.Equal(uf.OriginalFragment(), original[:20+8]) {
		t.Fatal("expected the IP header plus 8 payload bytes echoed verbatim")
	}
}

func TestPortUnreachableEchoesHeader(t *testing.T) {
	var sentPayload []byte
	var sentDst [4]byte
	r := NewResponder(func(payload []byte, dst [4]byte, proto ipv4.IPProto) error {
		sentPayload = append([]byte(nil), payload...)
		sentDst = dst
		return nil
	})

	original := make([]byte, 20+20) // IP header + UDP header + 12 payload bytes
	of, err := ipv4.NewFrame(original)
	if err != nil {
		t.Fatal(err)
	}
	of.SetVersionAndIHL(4, 5)
	of.SetTotalLength(uint16(len(original)))
	of.SetProtocol(ipv4.ProtoUDP)
	*of.SourceAddr() = [4]byte{10, 0, 0, 7}
	copy(original[20:], []byte{0x9c, 0x40, 0x27, 0x0f}) // ports of the dropped datagram

	if err := r.PortUnreachable(original); err != nil {
		t.Fatal(err)
	}
	if sentDst != [4]byte{10, 0, 0, 7} {
		t.Fatalf("expected reply addressed to original sender, got %v", sentDst)
	}
	uf, err := NewFrameDestinationUnreachable(sentPayload)
	if err != nil {
		t.Fatal(err)
	}
	if uf.Type() != TypeDestinationUnreachable || uf.Code() != CodePortUnreachable {
		t.Fatal("unexpected type/code")
	}
	if !bytes.Equal(uf.OriginalFragment(), original[:20+8]) {
		t.Fatal("expected the IP header plus the dropped datagram's UDP header echoed verbatim")
	}
}
