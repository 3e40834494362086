package udp

import (
	"errors"

	"microstack/checksum"
	"microstack/demux"
	"microstack/ipv4"
)

var errBadChecksum = errors.New("udp: pseudo-header checksum mismatch")

// Src is the addressing context a registered Handler receives: the
// remote IPv4 address and source port of the datagram.
type Src struct {
	IP   [4]byte
	Port uint16
}

// IPOut matches (*ipv4.Datapath).Out: hand a completed upper-layer
// payload to the IPv4 send path.
type IPOut func(payload []byte, dstIP [4]byte, protocol ipv4.IPProto) error

// Unreachable is invoked with the full inbound datagram when In finds no
// handler registered for its destination port, so the caller can emit
// an ICMP port-unreachable notice.
type Unreachable func(srcIP [4]byte, original []byte) error

// Stack is the UDP layer: a per-destination-port handler registry plus
// the datagram send path. It has no connection state of its own; it is
// a simple stateless responder.
type Stack struct {
	localIP     [4]byte
	ipOut       IPOut
	unreachable Unreachable
	registry    *demux.Registry[uint16, Src]
}

// Config configures a Stack.
type Config struct {
	LocalIP     [4]byte
	IPOut       IPOut
	Unreachable Unreachable
}

// NewStack constructs a Stack.
func NewStack(cfg Config) *Stack {
	return &Stack{
		localIP:     cfg.LocalIP,
		ipOut:       cfg.IPOut,
		unreachable: cfg.Unreachable,
		registry:    demux.NewRegistry[uint16, Src](),
	}
}

// Register installs fn as the receiver for datagrams addressed to
// localPort.
func (s *Stack) Register(localPort uint16, fn demux.Handler[Src]) error {
	return s.registry.Register(localPort, fn)
}

// Unregister removes any handler bound to localPort.
func (s *Stack) Unregister(localPort uint16) { s.registry.Unregister(localPort) }

// In handles an inbound UDP datagram (buf is the datagram starting at
// its own 8-byte header) received from srcIP. It verifies the
// pseudo-header checksum, then dispatches to the handler registered for
// the destination port, or emits ICMP port-unreachable if none exists.
func (s *Stack) In(buf []byte, srcIP [4]byte) error {
	f, err := NewFrame(buf)
	if err != nil {
		return err
	}
	if err := f.ValidateSize(); err != nil {
		return err
	}
	if f.CRC() != 0 {
		var a checksum.Accumulator
		ipv4.WritePseudoHeader(&a, srcIP, s.localIP, ipv4.ProtoUDP, f.Length())
		want := f.CRC()
		f.SetCRC(0)
		a.Write(f.buf[:f.Length()])
		f.SetCRC(want)
		if a.Sum16() != want {
			return errBadChecksum
		}
	}

	dstPort := f.DestinationPort()
	src := Src{IP: srcIP, Port: f.SourcePort()}
	found, err := s.registry.Dispatch(dstPort, f.Payload(), src)
	if err != nil {
		return err
	}
	if !found {
		if s.unreachable != nil {
			return s.unreachable(srcIP, buf)
		}
		return nil
	}
	return nil
}

// Out builds and sends a UDP datagram to dstIP:dstPort from srcPort
// carrying payload.
func (s *Stack) Out(srcPort, dstPort uint16, dstIP [4]byte, payload []byte) error {
	buf := make([]byte, sizeHeader+len(payload))
	f, err := NewFrame(buf)
	if err != nil {
		return err
	}
	f.SetSourcePort(srcPort)
	f.SetDestinationPort(dstPort)
	f.SetLength(uint16(len(buf)))
	copy(f.Payload(), payload)
	f.SetCRC(0)

	var a checksum.Accumulator
	ipv4.WritePseudoHeader(&a, s.localIP, dstIP, ipv4.ProtoUDP, f.Length())
	a.Write(buf)
	f.SetCRC(checksum.NeverZero(a.Sum16()))

	return s.ipOut(buf, dstIP, ipv4.ProtoUDP)
}
