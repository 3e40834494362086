package ipv4

import (
	"errors"
	"log/slog"

	"microstack/buffer"
	"microstack/checksum"
	"microstack/demux"
	"microstack/ethernet"
	"microstack/internal/xlog"
)

// MTU is the link MTU this datapath fragments egress traffic against.
const MTU = 1500

// maxFragment is the largest payload slice that fits a single fragment
// alongside the 20-byte fixed header.
const maxFragment = MTU - sizeHeader

// ArpOut matches arp.(*Resolver).Out: resolve dstIP and forward payload
// (a complete IPv4 datagram) to the link layer.
type ArpOut func(dstIP [4]byte, etherType ethernet.Type, payload []byte) error

// Unreachable is invoked with a saved copy of a dropped datagram when
// ip_in finds no registered handler for its protocol number, so the
// caller can emit an ICMP destination-unreachable (protocol-unreachable)
// reply.
type Unreachable func(original []byte) error

// Config configures a Datapath.
type Config struct {
	LocalIP     [4]byte
	ArpOut      ArpOut
	Unreachable Unreachable
	Logger      *slog.Logger
}

// Datapath implements ip_in/ip_out: reassembly-free receive validation
// and protocol demultiplexing, and fragmenting egress send with a
// monotonically increasing identification counter.
type Datapath struct {
	xlog.Logger
	localIP     [4]byte
	arpOut      ArpOut
	unreachable Unreachable
	registry    *demux.Registry[IPProto, [4]byte]
	nextID      uint16
	inFlight    []byte
}

// NewDatapath constructs a Datapath from cfg.
func NewDatapath(cfg Config) (*Datapath, error) {
	if cfg.ArpOut == nil {
		return nil, errors.New("ipv4: ArpOut is required")
	}
	return &Datapath{
		Logger:      xlog.Logger{Log: cfg.Logger},
		localIP:     cfg.LocalIP,
		arpOut:      cfg.ArpOut,
		unreachable: cfg.Unreachable,
		registry:    demux.NewRegistry[IPProto, [4]byte](),
	}, nil
}

// SetUnreachable installs fn as the callback invoked with a saved copy of
// any datagram dropped for want of a registered protocol handler. It
// exists as a setter, rather than requiring fn at NewDatapath time,
// because the ICMP responder that usually backs it needs this Datapath's
// Out method to construct itself in turn (stack.New wires the cycle).
func (d *Datapath) SetUnreachable(fn Unreachable) { d.unreachable = fn }

// Register installs fn as the receive handler for protocol p. src passed
// to fn is the remote (source) IPv4 address of the datagram.
func (d *Datapath) Register(p IPProto, fn demux.Handler[[4]byte]) error {
	return d.registry.Register(p, fn)
}

// Unregister removes any handler for protocol p.
func (d *Datapath) Unregister(p IPProto) { d.registry.Unregister(p) }

// In implements ip_in: validates frame, strips the header, and
// demultiplexes the payload to a registered protocol handler. Padding
// and header are stripped by reslicing, so frame's bytes are left as
// they were; the payload handed to the handler aliases frame.
func (d *Datapath) In(frame []byte) error {
	if len(frame) < sizeHeader {
		return errShort
	}
	// Step 2: snapshot for a possible ICMP-unreachable response, taken
	// before any in-place mutation.
	var snapshot []byte
	if d.unreachable != nil {
		snapshot = append([]byte(nil), frame...)
	}

	f, err := NewFrame(frame)
	if err != nil {
		return err
	}
	version, _ := f.VersionAndIHL()
	if version != 4 {
		return errors.New("ipv4: bad version")
	}
	if err := f.ValidateSize(); err != nil {
		return err
	}
	if !checksum.Verify(frame[:f.HeaderLength()], 10) {
		return errors.New("ipv4: header checksum mismatch")
	}
	dst := *f.DestinationAddr()
	if dst != d.localIP {
		d.Debug("ipv4:in-drop-not-local", xlog.IPAttr("dst", dst))
		return nil
	}

	totalLen := int(f.TotalLength())
	if len(frame) > totalLen {
		// Strip Ethernet padding from the tail.
		frame = frame[:totalLen]
		f, err = NewFrame(frame)
		if err != nil {
			return err
		}
	}

	hdrLen := f.HeaderLength()
	payload := frame[hdrLen:]
	proto := f.Protocol()
	src := *f.SourceAddr()

	d.inFlight = frame
	found, err := d.registry.Dispatch(proto, payload, src)
	d.inFlight = nil
	if err != nil {
		return err
	}
	if !found {
		d.Debug("ipv4:in-unreachable", slog.String("proto", proto.String()))
		if d.unreachable != nil {
			return d.unreachable(snapshot)
		}
		return nil
	}
	return nil
}

// InFlight returns the full datagram (header included) currently being
// dispatched by In, or nil outside a dispatch. The stack is strictly
// single-threaded, so an upper-layer handler may call this to echo the
// triggering datagram's IP header in an ICMP error message.
func (d *Datapath) InFlight() []byte { return d.inFlight }

// Out implements ip_out: fragments payload (an upper-layer datagram
// body) into MTU-sized IPv4 datagrams addressed to dstIP and hands each
// to ArpOut. All fragments of one call share a single identifier drawn
// from a monotonic 16-bit counter.
func (d *Datapath) Out(payload []byte, dstIP [4]byte, protocol IPProto) error {
	id := d.nextID
	d.nextID++

	nFrags := 1
	if len(payload) > maxFragment {
		nFrags = (len(payload) + maxFragment - 1) / maxFragment
	}

	for i := 0; i < nFrags; i++ {
		start := i * maxFragment
		end := start + maxFragment
		if end > len(payload) {
			end = len(payload)
		}
		slice := payload[start:end]
		more := i != nFrags-1

		buf := buffer.New(sizeHeader + len(slice))
		if err := buf.Init(sizeHeader + len(slice)); err != nil {
			return err
		}
		data := buf.Data()
		copy(data[sizeHeader:], slice)

		frm, err := NewFrame(data)
		if err != nil {
			return err
		}
		frm.SetVersionAndIHL(4, 5)
		frm.SetTotalLength(uint16(len(data)))
		frm.SetID(id)
		frm.SetFlagsAndOffset(NewFlags(more, uint16(start/8)))
		frm.SetTTL(64)
		frm.SetProtocol(protocol)
		frm.SetCRC(0)
		*frm.SourceAddr() = d.localIP
		*frm.DestinationAddr() = dstIP
		frm.SetCRC(frm.CalculateHeaderCRC())

		if err := d.arpOut(dstIP, ethernet.TypeIPv4, data); err != nil {
			return err
		}
	}
	return nil
}
