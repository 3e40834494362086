package ethernet

import "strconv"

const (
	sizeHeaderNoVLAN = 14
)

// AppendAddr appends the text representation of the hardware address to dst.
func AppendAddr(dst []byte, hwAddr [6]byte) []byte {
	for i, b := range hwAddr {
		if i != 0 {
			dst = append(dst, ':')
		}
		if b < 16 {
			dst = append(dst, '0')
		}
		dst = strconv.AppendUint(dst, uint64(b), 16)
	}
	return dst
}

// BroadcastAddr returns the all-0xff broadcast hardware address.
func BroadcastAddr() [6]byte {
	return [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
}

// Type is the EtherType field of an Ethernet II frame. Only the two
// protocols this stack terminates are named; anything else demuxes as
// "no handler registered" rather than failing a closed enum switch.
type Type uint16

// IsSize returns true if the value is actually the IEEE 802.3 payload size
// field rather than an EtherType (values <= 1500).
func (et Type) IsSize() bool { return et <= 1500 }

const (
	TypeIPv4 Type = 0x0800
	TypeARP  Type = 0x0806
)

func (et Type) String() string {
	switch et {
	case TypeIPv4:
		return "IPv4"
	case TypeARP:
		return "ARP"
	}
	if et.IsSize() {
		return "size(" + strconv.Itoa(int(et)) + ")"
	}
	return "Type(0x" + strconv.FormatUint(uint64(et), 16) + ")"
}
