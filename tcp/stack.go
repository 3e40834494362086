package tcp

import (
	"errors"
	"log/slog"
	"math/rand"

	"microstack/buffer"
	"microstack/internal/xlog"
	"microstack/ipv4"
)

var (
	errNotEstablished = errors.New("tcp: connection not established")
	errPortInUse      = errors.New("tcp: port already has a listener")
)

// IPOut matches (*ipv4.Datapath).Out.
type IPOut func(payload []byte, dstIP [4]byte, protocol ipv4.IPProto) error

// Config configures a Stack.
type Config struct {
	LocalIP [4]byte
	IPOut   IPOut
	// BufCap sizes each connection's rx_buf/tx_buf (BUF_MAX_LEN).
	BufCap int
	// RandSeq generates an initial sequence number for a new passively
	// opened connection. Defaults to math/rand if nil.
	RandSeq func() uint32
	Logger  *slog.Logger
}

// Stack implements the TCP engine: a connection table keyed by
// (remote-ip, remote-port, local-port), the receive pipeline and state
// machine, and the application-facing read/write/close primitives
// exposed through Conn.
//
// All connections originate from an inbound SYN; this engine does not
// support active (client-side) connect.
type Stack struct {
	xlog.Logger
	localIP   [4]byte
	ipOut     IPOut
	bufCap    int
	randSeq   func() uint32
	listeners map[uint16]Handler
	conns     map[connKey]*Conn
}

// NewStack constructs a Stack from cfg.
func NewStack(cfg Config) *Stack {
	bufCap := cfg.BufCap
	if bufCap == 0 {
		bufCap = 4096
	}
	randSeq := cfg.RandSeq
	if randSeq == nil {
		randSeq = func() uint32 { return rand.Uint32() }
	}
	return &Stack{
		Logger:    xlog.Logger{Log: cfg.Logger},
		localIP:   cfg.LocalIP,
		ipOut:     cfg.IPOut,
		bufCap:    bufCap,
		randSeq:   randSeq,
		listeners: make(map[uint16]Handler),
		conns:     make(map[connKey]*Conn),
	}
}

// Open implements tcp_open: register a listener on port. Inbound SYNs
// to port spawn connections dispatched to h.
func (s *Stack) Open(port uint16, h Handler) error {
	if _, ok := s.listeners[port]; ok {
		return errPortInUse
	}
	s.listeners[port] = h
	return nil
}

// Close implements tcp_close: releases every connection whose
// local_port == port and removes the listener.
func (s *Stack) Close(port uint16) {
	for k := range s.conns {
		if k.localPort == port {
			delete(s.conns, k)
		}
	}
	delete(s.listeners, port)
}

// In implements tcp_in: validate the segment, locate or spawn its
// connection, then dispatch it through the state machine.
func (s *Stack) In(buf []byte, srcIP [4]byte) error {
	segLen := len(buf)
	if segLen < sizeHeader {
		return errShort
	}
	f, err := NewFrame(buf)
	if err != nil {
		return err
	}
	if err := f.ValidateSize(segLen); err != nil {
		return err
	}
	want := f.CRC()
	f.SetCRC(0)
	got := CalculateChecksum(srcIP, s.localIP, segLen, buf)
	f.SetCRC(want)
	if got != want {
		return errors.New("tcp: checksum mismatch")
	}

	dstPort := f.DestinationPort()
	h, ok := s.listeners[dstPort]
	if !ok {
		s.Debug("tcp:in-no-listener", slog.Int("port", int(dstPort)))
		return nil
	}

	key := connKey{remoteIP: srcIP, remotePort: f.SourcePort(), localPort: dstPort}
	c, ok := s.conns[key]
	if !ok {
		c = &Conn{stack: s, state: StateListen, key: key, handler: h}
		s.conns[key] = c
	}
	c.remoteWin = f.WindowSize()
	_, flags := f.OffsetAndFlags()
	var mss uint16
	if flags.HasAny(FlagSYN) {
		if m, ok := ParseMSS(f.Options()); ok {
			mss = m
		}
	}
	return s.dispatch(c, f.Seq(), f.Ack(), flags, f.Payload(segLen), mss)
}

func (s *Stack) dispatch(c *Conn, seq, ackNum uint32, flags Flags, payload []byte, mss uint16) error {
	if c.state == StateListen {
		return s.dispatchListen(c, seq, flags, mss)
	}

	// Sequence sanity: any state but LISTEN requires seg.seq ==
	// connection.ack.
	if seq != c.ack {
		s.sendRST(c.key, seq+1)
		s.release(c.key)
		return nil
	}
	if flags.HasAny(FlagRST) {
		s.release(c.key)
		return nil
	}

	switch c.state {
	case StateSynRcvd:
		return s.dispatchSynRcvd(c, flags)
	case StateEstablished:
		return s.dispatchEstablished(c, ackNum, flags, payload)
	case StateFinWait1:
		return s.dispatchFinWait1(c, flags)
	case StateFinWait2:
		return s.dispatchFinWait2(c, flags)
	case StateLastAck:
		return s.dispatchLastAck(c, flags)
	default:
		panic("tcp: unreachable state")
	}
}

func (s *Stack) dispatchListen(c *Conn, seq uint32, flags Flags, mss uint16) error {
	if flags.HasAny(FlagRST) {
		s.release(c.key)
		return nil
	}
	if !flags.HasAny(FlagSYN) {
		s.sendRST(c.key, seq+1)
		s.release(c.key)
		return nil
	}
	c.rxBuf = buffer.New(s.bufCap)
	c.txBuf = buffer.New(s.bufCap)
	isn := s.randSeq()
	c.unackSeq = isn
	c.nextSeq = isn
	c.ack = seq + 1
	c.remoteMSS = mss
	c.state = StateSynRcvd
	return s.flush(c, flagSynAck)
}

func (s *Stack) dispatchSynRcvd(c *Conn, flags Flags) error {
	if !flags.HasAny(FlagACK) {
		return nil // ignore
	}
	c.unackSeq++
	c.state = StateEstablished
	c.handler(c, EventConnected)
	return nil
}

func (s *Stack) dispatchEstablished(c *Conn, ackNum uint32, flags Flags, payload []byte) error {
	if flags.HasAny(FlagACK) && ackNum > c.unackSeq && ackNum <= c.nextSeq {
		popped := int(ackNum - c.unackSeq)
		c.txBuf.RemoveHeader(popped)
		c.unackSeq = ackNum
	}
	if flags.HasAny(FlagFIN) {
		if len(payload) > 0 {
			if c.rxBuf.TailRoom() < len(payload) {
				c.rxBuf.Compact()
			}
			c.rxBuf.Append(payload)
			c.ack += uint32(len(payload))
			c.handler(c, EventDataRecv)
		}
		c.ack++
		c.state = StateLastAck
		return s.flush(c, flagFinAck)
	}
	if len(payload) > 0 {
		if c.rxBuf.TailRoom() < len(payload) {
			c.rxBuf.Compact()
		}
		c.rxBuf.Append(payload)
		c.ack += uint32(len(payload))
		c.handler(c, EventDataRecv)
		return s.flush(c, FlagACK)
	}
	return nil // !ACK & !FIN, or a pure ACK with nothing to do: ignore.
}

func (s *Stack) dispatchFinWait1(c *Conn, flags Flags) error {
	if flags.HasAll(flagFinAck) {
		s.release(c.key)
		return nil
	}
	if flags.HasAny(FlagACK) {
		c.state = StateFinWait2
	}
	return nil
}

func (s *Stack) dispatchFinWait2(c *Conn, flags Flags) error {
	if flags.HasAny(FlagFIN) {
		c.ack++
		err := s.flush(c, FlagACK)
		s.release(c.key)
		return err
	}
	return nil
}

func (s *Stack) dispatchLastAck(c *Conn, flags Flags) error {
	if flags.HasAny(FlagACK) {
		c.handler(c, EventClosed)
		s.release(c.key)
	}
	return nil
}

func (s *Stack) release(key connKey) { delete(s.conns, key) }

// sendRST emits a bare RST+ACK: ack = ackVal, seq = 0, no payload.
func (s *Stack) sendRST(key connKey, ackVal uint32) error {
	buf := make([]byte, sizeHeader)
	f, _ := NewFrame(buf)
	f.SetSourcePort(key.localPort)
	f.SetDestinationPort(key.remotePort)
	f.SetSeq(0)
	f.SetAck(ackVal)
	f.SetOffsetAndFlags(5, flagRstAck)
	f.SetCRC(0)
	f.SetCRC(CalculateChecksum(s.localIP, key.remoteIP, sizeHeader, buf))
	return s.ipOut(buf, key.remoteIP, ipv4.ProtoTCP)
}

// flush sends every currently-unsent byte in c.txBuf (possibly none),
// split into one or more segments no larger than c.segmentCap(). flags
// is carried on every segment except that FlagFIN/FlagSYN are only ever
// applied to the final one, since they each consume exactly one
// sequence number of their own.
func (s *Stack) flush(c *Conn, flags Flags) error {
	var payload []byte
	if c.txBuf != nil {
		data := c.txBuf.Data()
		off := c.unsentOffset()
		if off < len(data) {
			payload = data[off:]
		}
	}
	if len(payload) == 0 {
		return s.sendSegment(c, nil, flags)
	}
	segCap := c.segmentCap()
	const terminal = FlagSYN | FlagFIN
	for len(payload) > 0 {
		n := len(payload)
		if n > segCap {
			n = segCap
		}
		segFlags := flags
		if n < len(payload) {
			segFlags &^= terminal
		}
		if err := s.sendSegment(c, payload[:n], segFlags); err != nil {
			return err
		}
		payload = payload[n:]
	}
	return nil
}

// sendSegment implements tcp_send: builds and transmits one TCP segment
// for c carrying payload under flags, then advances next_seq.
func (s *Stack) sendSegment(c *Conn, payload []byte, flags Flags) error {
	segSeq := c.nextSeq
	segLen := sizeHeader + len(payload)
	buf := make([]byte, segLen)
	f, _ := NewFrame(buf)
	f.SetSourcePort(c.key.localPort)
	f.SetDestinationPort(c.key.remotePort)
	f.SetSeq(segSeq)
	f.SetAck(c.ack)
	f.SetOffsetAndFlags(5, flags)
	f.SetWindowSize(c.remoteWin)
	copy(f.Payload(segLen), payload)
	f.SetCRC(0)
	f.SetCRC(CalculateChecksum(s.localIP, c.key.remoteIP, segLen, buf))

	if err := s.ipOut(buf, c.key.remoteIP, ipv4.ProtoTCP); err != nil {
		return err
	}
	c.nextSeq = segSeq + uint32(len(payload))
	if flags.HasAny(FlagSYN) || flags.HasAny(FlagFIN) {
		c.nextSeq++
	}
	return nil
}
