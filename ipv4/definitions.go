package ipv4

const (
	sizeHeader = 20
)

// IPProto names the upper-layer protocol carried in an IPv4 packet.
type IPProto uint8

const (
	ProtoICMP IPProto = 1
	ProtoTCP  IPProto = 6
	ProtoUDP  IPProto = 17
)

func (p IPProto) String() string {
	switch p {
	case ProtoICMP:
		return "ICMP"
	case ProtoTCP:
		return "TCP"
	case ProtoUDP:
		return "UDP"
	default:
		return "proto?"
	}
}

// Flags holds the fragmentation field of an IPv4 header (flags + 13-bit
// fragment offset in 8-byte units).
type Flags uint16

const (
	flagDontFragment  Flags = 0x4000
	flagMoreFragments Flags = 0x2000
	flagOffsetMask    Flags = 0x1fff
)

// DontFragment reports the DF bit.
func (f Flags) DontFragment() bool { return f&flagDontFragment != 0 }

// MoreFragments reports the MF bit: set on every fragment but the last.
func (f Flags) MoreFragments() bool { return f&flagMoreFragments != 0 }

// FragmentOffset returns the offset of this fragment, in 8-byte units,
// relative to the start of the original unfragmented datagram.
func (f Flags) FragmentOffset() uint16 { return uint16(f & flagOffsetMask) }

// NewFlags packs the MF bit and fragment offset (in 8-byte units) into a
// Flags value. DF is never set by this stack's egress path.
func NewFlags(moreFragments bool, fragOffset8 uint16) Flags {
	f := Flags(fragOffset8 & uint16(flagOffsetMask))
	if moreFragments {
		f |= flagMoreFragments
	}
	return f
}
