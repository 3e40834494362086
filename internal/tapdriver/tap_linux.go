//go:build linux

// Package tapdriver implements stack.Driver over a Linux TAP device, so
// cmd/microstackd can drive the protocol stack against a real kernel
// network interface. It opens /dev/net/tun directly and issues its
// ioctls through golang.org/x/sys/unix rather than the standard
// library's syscall package, since unix is where this module's
// low-level networking dependency lives.
package tapdriver

import (
	"errors"
	"fmt"
	"net/netip"
	"os/exec"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Driver opens a Linux TAP device (/dev/net/tun in TAP mode) and
// implements stack.Driver's Send/TryRecv over it.
type Driver struct {
	fd   int
	name string
}

// Open creates (or attaches to) the named TAP interface. If ip is valid
// the interface is brought up and assigned that address/prefix via the
// "ip" command rather than a netlink library, keeping interface setup
// outside the Go process.
func Open(name string, ip netip.Prefix) (*Driver, error) {
	if len(name) >= unix.IFNAMSIZ {
		return nil, errors.New("tapdriver: interface name too long")
	}
	fd, err := unix.Open("/dev/net/tun", unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("tapdriver: open /dev/net/tun: %w", err)
	}
	ifr := makeifreq(name)
	ifr.setUint16(unix.IFF_TAP | unix.IFF_NO_PI)
	if err := ioctl(fd, unix.TUNSETIFF, unsafe.Pointer(&ifr)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("tapdriver: TUNSETIFF: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("tapdriver: set nonblocking: %w", err)
	}
	if ip.IsValid() {
		if err := exec.Command("ip", "link", "set", "dev", name, "up").Run(); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("tapdriver: ip link set up: %w", err)
		}
		if err := exec.Command("ip", "addr", "add", ip.String(), "dev", name).Run(); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("tapdriver: ip addr add: %w", err)
		}
	}
	return &Driver{fd: fd, name: name}, nil
}

// Send implements stack.Driver: write a complete Ethernet frame to the
// TAP device.
func (d *Driver) Send(frame []byte) error {
	_, err := unix.Write(d.fd, frame)
	return err
}

// TryRecv implements stack.Driver: a non-blocking read of the next
// available frame. It returns (0, nil), not an error, when the device
// has nothing queued (EAGAIN).
func (d *Driver) TryRecv(buf []byte) (int, error) {
	n, err := unix.Read(d.fd, buf)
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
		return 0, nil
	}
	return n, err
}

// Close releases the underlying file descriptor.
func (d *Driver) Close() error { return unix.Close(d.fd) }

// HardwareAddress queries the kernel for the TAP interface's MAC
// address via an AF_INET control socket, since the TAP fd itself has no
// notion of addressing.
func (d *Driver) HardwareAddress() (hw [6]byte, err error) {
	sock, err := d.controlSocket()
	if err != nil {
		return hw, err
	}
	defer unix.Close(sock)
	ifr := makeifreq(d.name)
	if err := ioctl(sock, unix.SIOCGIFHWADDR, unsafe.Pointer(&ifr)); err != nil {
		return hw, fmt.Errorf("tapdriver: SIOCGIFHWADDR: %w", err)
	}
	copy(hw[:], ifr.data[2:8]) // sockaddr family (2 bytes) then the 6-byte MAC.
	return hw, nil
}

// MTU queries the kernel for the TAP interface's configured MTU.
func (d *Driver) MTU() (int, error) {
	sock, err := d.controlSocket()
	if err != nil {
		return 0, err
	}
	defer unix.Close(sock)
	ifr := makeifreq(d.name)
	if err := ioctl(sock, unix.SIOCGIFMTU, unsafe.Pointer(&ifr)); err != nil {
		return 0, fmt.Errorf("tapdriver: SIOCGIFMTU: %w", err)
	}
	return int(*(*int32)(unsafe.Pointer(&ifr.data[0]))), nil
}

func (d *Driver) controlSocket() (int, error) {
	sock, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, unix.IPPROTO_IP)
	if err != nil {
		return 0, fmt.Errorf("tapdriver: control socket: %w", err)
	}
	return sock, nil
}

func ioctl(fd int, request uintptr, argp unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), request, uintptr(argp))
	if errno != 0 {
		return errno
	}
	return nil
}

// ifreq mirrors struct ifreq from <net/if.h>: a fixed interface name
// followed by a union of type-specific fields, which we only ever
// access as raw bytes.
type ifreq struct {
	name [unix.IFNAMSIZ]byte
	data [64]byte
}

func makeifreq(name string) ifreq {
	var ifr ifreq
	copy(ifr.name[:], name)
	return ifr
}

func (ifr *ifreq) setUint16(v uint16) {
	*(*uint16)(unsafe.Pointer(&ifr.data[0])) = v
}
