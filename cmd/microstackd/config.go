package main

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/BurntSushi/toml"
)

// config is the on-disk TOML configuration for microstackd: interface
// name, local MAC, local IPv4, ARP timing, TCP buffer size and log
// level, all runtime-configurable rather than
// compiled-in constants, as is idiomatic for a Go daemon.
type config struct {
	Iface          string `toml:"iface"`
	LocalMAC       string `toml:"local_mac"`
	LocalAddr      string `toml:"local_addr"` // CIDR, e.g. "192.168.10.1/24"
	ARPTimeout     int64  `toml:"arp_timeout_seconds"`
	ARPMinInterval int64  `toml:"arp_min_interval_seconds"`
	TCPBufCap      int    `toml:"tcp_buf_cap"`
	LogLevel       string `toml:"log_level"`
}

func defaultConfig() config {
	return config{
		Iface:          "tap0",
		LocalMAC:       "02:00:00:00:00:01",
		LocalAddr:      "192.168.10.1/24",
		ARPTimeout:     60,
		ARPMinInterval: 1,
		TCPBufCap:      4096,
		LogLevel:       "info",
	}
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

func (c config) parseMAC() ([6]byte, error) {
	var mac [6]byte
	hw, err := net.ParseMAC(c.LocalMAC)
	if err != nil {
		return mac, fmt.Errorf("local_mac %q: %w", c.LocalMAC, err)
	}
	if len(hw) != 6 {
		return mac, fmt.Errorf("local_mac %q: want 6 octets, got %d", c.LocalMAC, len(hw))
	}
	copy(mac[:], hw)
	return mac, nil
}

func (c config) parsePrefix() (netip.Prefix, error) {
	p, err := netip.ParsePrefix(c.LocalAddr)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("local_addr %q: %w", c.LocalAddr, err)
	}
	if !p.Addr().Is4() {
		return netip.Prefix{}, fmt.Errorf("local_addr %q: want IPv4", c.LocalAddr)
	}
	return p, nil
}
