// Package xlog provides the small embeddable structured-logging helper
// shared by the arp, ipv4, tcp and stack packages: a nil-safe logger
// wrapper around
// log/slog so packages can be used without configuring a logger at all.
package xlog

import (
	"context"
	"log/slog"
	"net/netip"

	"microstack/ethernet"
)

// Logger embeds a *slog.Logger that may be nil; all methods are no-ops in
// that case. Embed it by value in any type that wants structured logging.
type Logger struct {
	Log *slog.Logger
}

func (l Logger) log(level slog.Level, msg string, attrs ...slog.Attr) {
	if l.Log == nil || !l.Log.Enabled(context.Background(), level) {
		return
	}
	l.Log.LogAttrs(context.Background(), level, msg, attrs...)
}

func (l Logger) Error(msg string, attrs ...slog.Attr) { l.log(slog.LevelError, msg, attrs...) }
func (l Logger) Warn(msg string, attrs ...slog.Attr)  { l.log(slog.LevelWarn, msg, attrs...) }
func (l Logger) Info(msg string, attrs ...slog.Attr)  { l.log(slog.LevelInfo, msg, attrs...) }
func (l Logger) Debug(msg string, attrs ...slog.Attr) { l.log(slog.LevelDebug, msg, attrs...) }

// IPAttr renders a 4-byte IPv4 address as a dotted-quad slog.Attr, so
// address logging in arp, ipv4 and cmd/microstackd shares one
// formatting rule instead of each package hand-rolling its own ipString
// helper.
func IPAttr(key string, ip [4]byte) slog.Attr {
	return slog.String(key, netip.AddrFrom4(ip).String())
}

// MACAttr renders a 6-byte hardware address as colon-separated hex.
func MACAttr(key string, mac [6]byte) slog.Attr {
	return slog.String(key, string(ethernet.AppendAddr(nil, mac)))
}
