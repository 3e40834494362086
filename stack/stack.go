// Package stack wires the Ethernet, ARP, IPv4, ICMP, UDP, and TCP
// layers into a single polled protocol stack, and exposes the
// application-facing tcp_open/tcp_close and udp_init primitives over a
// caller-supplied frame transport.
package stack

import (
	"errors"
	"log/slog"

	"microstack/arp"
	"microstack/demux"
	"microstack/ethernet"
	"microstack/icmp"
	"microstack/internal/xlog"
	"microstack/ipv4"
	"microstack/tcp"
	"microstack/ttlmap"
	"microstack/udp"
)

// Driver is the raw frame transport this stack consumes: opaque
// send/recv of whole Ethernet frames.
type Driver interface {
	// Send transmits a complete Ethernet frame.
	Send(frame []byte) error
	// TryRecv copies the next available frame into buf and returns its
	// length, or 0 if none is available. It must not block.
	TryRecv(buf []byte) (int, error)
}

// Config configures a Stack.
type Config struct {
	LocalMAC [6]byte
	LocalIP  [4]byte
	Driver   Driver
	Clock    ttlmap.Clock
	// ARPTimeout and ARPMinInterval are ARP_TIMEOUT and ARP_MIN_INTERVAL,
	// expressed in Clock's unit.
	ARPTimeout     int64
	ARPMinInterval int64
	// TCPBufCap sizes each TCP connection's rx/tx buffers (BUF_MAX_LEN).
	TCPBufCap int
	Logger    *slog.Logger
}

// Stack is the assembled protocol stack.
type Stack struct {
	xlog.Logger
	driver   Driver
	localMAC [6]byte
	localIP  [4]byte

	arp  *arp.Resolver
	ip   *ipv4.Datapath
	icmp *icmp.Responder
	udp  *udp.Stack
	tcp  *tcp.Stack
}

// New assembles a Stack from cfg, wiring each layer's egress path into
// the one below it (tcp/udp -> ip -> arp -> driver) and each layer's
// ingress handler into the one above (tcp_init/udp_init, performed here
// instead of by a separate call).
func New(cfg Config) (*Stack, error) {
	if cfg.Driver == nil || cfg.Clock == nil {
		return nil, errors.New("stack: Driver and Clock are required")
	}
	s := &Stack{
		Logger:   xlog.Logger{Log: cfg.Logger},
		driver:   cfg.Driver,
		localMAC: cfg.LocalMAC,
		localIP:  cfg.LocalIP,
	}

	resolver, err := arp.NewResolver(arp.Config{
		LocalMAC:   cfg.LocalMAC,
		LocalIP:    cfg.LocalIP,
		ResolveTTL: cfg.ARPTimeout,
		PendingTTL: cfg.ARPMinInterval,
		Clock:      cfg.Clock,
		Transmit:   s.transmitEthernet,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	s.arp = resolver

	ip, err := ipv4.NewDatapath(ipv4.Config{
		LocalIP: cfg.LocalIP,
		ArpOut:  resolver.Out,
		Logger:  cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	s.ip = ip

	s.icmp = icmp.NewResponder(ip.Out)
	ip.SetUnreachable(s.icmp.DestinationUnreachable)
	if err := ip.Register(ipv4.ProtoICMP, func(buf []byte, src [4]byte) error {
		return s.icmp.HandleEcho(buf, src)
	}); err != nil {
		return nil, err
	}

	s.udp = udp.NewStack(udp.Config{
		LocalIP: cfg.LocalIP,
		IPOut:   ip.Out,
		// The udp layer only sees its own datagram; the ICMP error must
		// echo the IP header too, which the datapath still holds while
		// the receive path runs.
		Unreachable: func([4]byte, []byte) error {
			return s.icmp.PortUnreachable(ip.InFlight())
		},
	})
	if err := ip.Register(ipv4.ProtoUDP, func(buf []byte, src [4]byte) error {
		return s.udp.In(buf, src)
	}); err != nil {
		return nil, err
	}

	bufCap := cfg.TCPBufCap
	s.tcp = tcp.NewStack(tcp.Config{
		LocalIP: cfg.LocalIP,
		IPOut:   ip.Out,
		BufCap:  bufCap,
		Logger:  cfg.Logger,
	})
	if err := ip.Register(ipv4.ProtoTCP, func(buf []byte, src [4]byte) error {
		return s.tcp.In(buf, src)
	}); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Stack) transmitEthernet(dstMAC [6]byte, etherType ethernet.Type, payload []byte) error {
	frame := make([]byte, 14+len(payload))
	ef, err := ethernet.NewFrame(frame)
	if err != nil {
		return err
	}
	*ef.DestinationHardwareAddr() = dstMAC
	*ef.SourceHardwareAddr() = s.localMAC
	ef.SetEtherType(etherType)
	copy(ef.Payload(), payload)
	return s.driver.Send(frame)
}

// Startup emits a gratuitous ARP request so peers learn this stack's MAC
// before it needs theirs.
func (s *Stack) Startup() error { return s.arp.StartupGratuitous() }

// RecvEth implements ethernet_in: parses one received Ethernet frame and
// dispatches it to ARP or IPv4 by EtherType.
func (s *Stack) RecvEth(frame []byte) error {
	ef, err := ethernet.NewFrame(frame)
	if err != nil {
		return err
	}
	dst := *ef.DestinationHardwareAddr()
	if dst != s.localMAC && !ef.IsBroadcast() {
		return nil
	}
	srcMAC := *ef.SourceHardwareAddr()
	switch ef.EtherTypeOrSize() {
	case ethernet.TypeARP:
		return s.arp.In(ef.Payload(), srcMAC)
	case ethernet.TypeIPv4:
		return s.ip.In(ef.Payload())
	default:
		return nil // Unknown EtherType: drop silently.
	}
}

// Poll drives one iteration of the host loop: pull one frame from the
// driver, if any, and process it to completion. Returns the number of
// bytes read (0 if none were available).
func (s *Stack) Poll(buf []byte) (int, error) {
	n, err := s.driver.TryRecv(buf)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, nil
	}
	return n, s.RecvEth(buf[:n])
}

// TCPOpen implements tcp_open: register a TCP listener on port.
func (s *Stack) TCPOpen(port uint16, h tcp.Handler) error { return s.tcp.Open(port, h) }

// TCPClose implements tcp_close.
func (s *Stack) TCPClose(port uint16) { s.tcp.Close(port) }

// UDPRegister installs fn as the receiver for datagrams addressed to
// localPort (the closest analog to udp_init's per-port registration).
func (s *Stack) UDPRegister(localPort uint16, fn demux.Handler[udp.Src]) error {
	return s.udp.Register(localPort, fn)
}

// UDPUnregister removes any handler bound to localPort.
func (s *Stack) UDPUnregister(localPort uint16) { s.udp.Unregister(localPort) }

// UDPSend sends a UDP datagram from srcPort to dstIP:dstPort.
func (s *Stack) UDPSend(srcPort, dstPort uint16, dstIP [4]byte, payload []byte) error {
	return s.udp.Out(srcPort, dstPort, dstIP, payload)
}

// ARPLookup returns the MAC address currently resolved for ip, if any.
func (s *Stack) ARPLookup(ip [4]byte) ([6]byte, bool) { return s.arp.Lookup(ip) }
