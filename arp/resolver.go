package arp

import (
	"errors"
	"log/slog"

	"microstack/buffer"
	"microstack/ethernet"
	"microstack/internal/xlog"
	"microstack/ttlmap"
)

// Transmit sends a completed Ethernet payload (everything after the
// 14-byte Ethernet header) to dstMAC under the given EtherType. It is the
// resolver's only dependency on the Ethernet layer.
type Transmit func(dstMAC [6]byte, etherType ethernet.Type, payload []byte) error

// Config configures a Resolver.
type Config struct {
	LocalMAC [6]byte
	LocalIP  [4]byte
	// ResolveTTL ("ARP_TIMEOUT") is how long a learned IP->MAC mapping is
	// trusted before it must be re-resolved.
	ResolveTTL int64
	// PendingTTL ("ARP_MIN_INTERVAL") bounds how long a single pending
	// egress frame is held, and how long duplicate requests to the same
	// target are suppressed.
	PendingTTL int64
	Clock      ttlmap.Clock
	Transmit   Transmit
	Logger     *slog.Logger
}

// Resolver implements the ARP egress/ingress paths: an IP->MAC table
// with TTL ARP_TIMEOUT, and a single-slot pending-send queue per
// destination IP with TTL ARP_MIN_INTERVAL.
type Resolver struct {
	xlog.Logger
	localMAC [6]byte
	localIP  [4]byte
	transmit Transmit
	table    *ttlmap.Map[[4]byte, [6]byte]
	pending  *ttlmap.Map[[4]byte, buffer.Buffer]
}

// NewResolver constructs a Resolver from cfg.
func NewResolver(cfg Config) (*Resolver, error) {
	if cfg.Transmit == nil || cfg.Clock == nil {
		return nil, errors.New("arp: Transmit and Clock are required")
	}
	r := &Resolver{
		Logger:   xlog.Logger{Log: cfg.Logger},
		localMAC: cfg.LocalMAC,
		localIP:  cfg.LocalIP,
		transmit: cfg.Transmit,
		table:    ttlmap.New[[4]byte, [6]byte](cfg.Clock, cfg.ResolveTTL, nil),
		pending: ttlmap.New[[4]byte, buffer.Buffer](cfg.Clock, cfg.PendingTTL,
			func(dst *buffer.Buffer, src buffer.Buffer) { dst.CopyFrom(&src) }),
	}
	return r, nil
}

// Lookup returns the MAC address currently resolved for ip, if any.
func (r *Resolver) Lookup(ip [4]byte) (mac [6]byte, ok bool) {
	return r.table.Get(ip)
}

// StartupGratuitous emits a gratuitous ARP request for the local IP so
// peers populate their caches with our MAC before we need anything from
// them. Called once at stack initialization.
func (r *Resolver) StartupGratuitous() error {
	var buf [sizeHeader]byte
	frm, err := BuildRequest(buf[:], r.localMAC, r.localIP, r.localIP)
	if err != nil {
		return err
	}
	return r.transmit(ethernet.BroadcastAddr(), ethernet.TypeARP, frm.RawData())
}

// Out resolves dstIP and forwards payload (an already-built outgoing
// network-layer frame) to the Ethernet layer. On an ARP table hit the
// frame is sent immediately. On a miss, it queues payload (at most one
// frame per destination IP) and emits an ARP request, unless a request is
// already in flight for dstIP within ARP_MIN_INTERVAL.
func (r *Resolver) Out(dstIP [4]byte, etherType ethernet.Type, payload []byte) error {
	if mac, ok := r.table.Get(dstIP); ok {
		return r.transmit(mac, etherType, payload)
	}
	if r.pending.Has(dstIP) {
		r.Debug("arp:out-suppressed", xlog.IPAttr("ip", dstIP))
		return nil // Request already in flight; drop silently.
	}
	pb := buffer.New(len(payload))
	if err := pb.SetBytes(payload); err != nil {
		return err
	}
	r.pending.Set(dstIP, *pb)
	r.Debug("arp:out-queue-request", xlog.IPAttr("ip", dstIP))
	return r.sendRequest(dstIP)
}

func (r *Resolver) sendRequest(targetIP [4]byte) error {
	var buf [sizeHeader]byte
	frm, err := BuildRequest(buf[:], r.localMAC, r.localIP, targetIP)
	if err != nil {
		return err
	}
	return r.transmit(ethernet.BroadcastAddr(), ethernet.TypeARP, frm.RawData())
}

// In handles an incoming ARP frame received from srcMAC at the Ethernet
// layer. It learns the sender's address unconditionally, flushes any
// pending egress frame waiting on that sender, and answers requests
// targeting the local IP.
func (r *Resolver) In(frame []byte, srcMAC [6]byte) error {
	f, err := NewFrame(frame)
	if err != nil {
		return err
	}
	if err := f.ValidateSize(); err != nil {
		return err
	}
	op := f.Operation()
	if op != OpRequest && op != OpReply {
		return nil // Unknown opcode: drop silently.
	}
	senderIP := *f.SenderProtoAddr()
	senderMAC := *f.SenderHardwareAddr()
	r.table.Set(senderIP, senderMAC)
	r.Debug("arp:learned", xlog.IPAttr("ip", senderIP), xlog.MACAttr("mac", senderMAC))

	if pb, ok := r.pending.Get(senderIP); ok {
		r.pending.Delete(senderIP)
		r.Debug("arp:flush-pending", xlog.IPAttr("ip", senderIP))
		return r.transmit(senderMAC, ethernet.TypeIPv4, pb.Data())
	}
	if op == OpRequest && *f.TargetProtoAddr() == r.localIP {
		var buf [sizeHeader]byte
		reply, err := BuildReply(buf[:], r.localMAC, r.localIP, senderMAC, senderIP)
		if err != nil {
			return err
		}
		return r.transmit(srcMAC, ethernet.TypeARP, reply.RawData())
	}
	return nil
}
