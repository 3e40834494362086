package udp

import (
	"testing"

	"microstack/checksum"
	"microstack/ipv4"
)

func buildTestDatagram(t *testing.T, srcIP, dstIP [4]byte, srcPort, dstPort uint16, payload []byte) []byte {
	t.Helper()
	buf := make([]byte, sizeHeader+len(payload))
	f, err := NewFrame(buf)
	if err != nil {
		t.Fatal(err)
	}
	f.SetSourcePort(srcPort)
	f.SetDestinationPort(dstPort)
	f.SetLength(uint16(len(buf)))
	copy(f.Payload(), payload)
	f.SetCRC(0)
	var a checksum.Accumulator
	ipv4.WritePseudoHeader(&a, srcIP, dstIP, ipv4.ProtoUDP, f.Length())
	a.Write(buf)
	f.SetCRC(checksum.NeverZero(a.Sum16()))
	return buf
}

// TestEchoUDP verifies an inbound datagram on port 60000 from
// 10.0.0.2:40000 whose handler echoes the same payload back to the
// sender, and that the outgoing datagram carries a correct
// pseudo-header checksum.
func TestEchoUDP(t *testing.T) {
	localIP := [4]byte{10, 0, 0, 1}
	peerIP := [4]byte{10, 0, 0, 2}

	var sentPayload []byte
	var sentDstIP [4]byte
	var sentProto ipv4.IPProto
	s := NewStack(Config{
		LocalIP: localIP,
		IPOut: func(payload []byte, dstIP [4]byte, proto ipv4.IPProto) error {
			sentPayload = append([]byte(nil), payload...)
			sentDstIP = dstIP
			sentProto = proto
			return nil
		},
	})
	if err := s.Register(60000, func(buf []byte, src Src) error {
		return s.Out(60000, src.Port, src.IP, buf)
	}); err != nil {
		t.Fatal(err)
	}

	dgram := buildTestDatagram(t, peerIP, localIP, 40000, 60000, []byte("hello"))
	if err := s.In(dgram, peerIP); err != nil {
		t.Fatal(err)
	}

	if sentDstIP != peerIP || sentProto != ipv4.ProtoUDP {
		t.Fatalf("unexpected destination/protocol: %v %v", sentDstIP, sentProto)
	}
	reply, err := NewFrame(sentPayload)
	if err != nil {
		t.Fatal(err)
	}
	if reply.SourcePort() != 60000 || reply.DestinationPort() != 40000 {
		t.Fatalf("unexpected ports: src=%d dst=%d", reply.SourcePort(), reply.DestinationPort())
	}
	if string(reply.Payload()) != "hello" {
		t.Fatalf("want payload %q, got %q", "hello", reply.Payload())
	}
	var a checksum.Accumulator
	ipv4.WritePseudoHeader(&a, localIP, peerIP, ipv4.ProtoUDP, reply.Length())
	a.Write(reply.RawData())
	if a.Sum16() != 0 {
		t.Fatal("reply pseudo-header checksum does not verify")
	}
}

func TestInEmitsPortUnreachable(t *testing.T) {
	localIP := [4]byte{10, 0, 0, 1}
	peerIP := [4]byte{10, 0, 0, 2}
	var unreachableCalled bool
	s := NewStack(Config{
		LocalIP: localIP,
		IPOut:   func([]byte, [4]byte, ipv4.IPProto) error { return nil },
		Unreachable: func(srcIP [4]byte, original []byte) error {
			unreachableCalled = true
			if srcIP != peerIP {
				t.Fatalf("unexpected src %v", srcIP)
			}
			return nil
		},
	})
	dgram := buildTestDatagram(t, peerIP, localIP, 40000, 9999, []byte("x"))
	if err := s.In(dgram, peerIP); err != nil {
		t.Fatal(err)
	}
	if !unreachableCalled {
		t.Fatal("expected Unreachable callback for unregistered port")
	}
}

func TestInRejectsBadChecksum(t *testing.T) {
	localIP := [4]byte{10, 0, 0, 1}
	peerIP := [4]byte{10, 0, 0, 2}
	s := NewStack(Config{LocalIP: localIP, IPOut: func([]byte, [4]byte, ipv4.IPProto) error { return nil }})
	var called bool
	s.Register(60000, func([]byte, Src) error { called = true; return nil })
	dgram := buildTestDatagram(t, peerIP, localIP, 40000, 60000, []byte("hello"))
	dgram[6] ^= 0xff
	if err := s.In(dgram, peerIP); err == nil {
		t.Fatal("expected checksum error")
	}
	if called {
		t.Fatal("handler must not run on checksum mismatch")
	}
}
