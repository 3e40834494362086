// Command microstackd wires the protocol stack in package stack to a
// real Linux TAP device, giving it a concrete frame transport and host
// poll loop.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"microstack/internal/tapdriver"
	"microstack/internal/xlog"
	"microstack/stack"
	"microstack/tcp"
	"microstack/udp"
)

// version is set by the release process via -ldflags; it defaults to
// "dev" for local builds.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "microstackd",
		Short: "A user-space TCP/IP stack bound to a Linux TAP device",
	}
	root.AddCommand(newVersionCmd(), newServeCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the microstackd version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Bring up the TAP device and run the protocol stack",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a TOML configuration file")
	return cmd
}

func serve(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))

	mac, err := cfg.parseMAC()
	if err != nil {
		return err
	}
	prefix, err := cfg.parsePrefix()
	if err != nil {
		return err
	}

	tap, err := tapdriver.Open(cfg.Iface, prefix)
	if err != nil {
		return fmt.Errorf("open tap %s: %w", cfg.Iface, err)
	}
	defer tap.Close()

	localIP := prefix.Addr().As4()
	st, err := stack.New(stack.Config{
		LocalMAC:       mac,
		LocalIP:        localIP,
		Driver:         tap,
		Clock:          monotonicClock,
		ARPTimeout:     cfg.ARPTimeout,
		ARPMinInterval: cfg.ARPMinInterval,
		TCPBufCap:      cfg.TCPBufCap,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("assemble stack: %w", err)
	}

	registerDemoServices(st, logger)

	if err := st.Startup(); err != nil {
		return fmt.Errorf("gratuitous arp: %w", err)
	}
	logger.Info("microstackd listening", slog.String("iface", cfg.Iface), slog.String("addr", prefix.String()))

	buf := make([]byte, 2048)
	for {
		n, err := st.Poll(buf)
		if err != nil {
			logger.Error("poll", slog.String("err", err.Error()))
			continue
		}
		if n == 0 {
			time.Sleep(time.Millisecond)
		}
	}
}

// monotonicClock supplies stack.Config.Clock: seconds since the Unix
// epoch are monotonic enough for ARP TTL aging, which only ever compares
// two readings taken from this same process.
func monotonicClock() int64 { return time.Now().Unix() }

// registerDemoServices wires a TCP echo listener and a UDP echo handler
// so the binary is runnable and testable end to end, not just a
// library.
func registerDemoServices(st *stack.Stack, logger *slog.Logger) {
	const echoPort = 7
	err := st.TCPOpen(echoPort, func(c *tcp.Conn, ev tcp.Event) {
		switch ev {
		case tcp.EventDataRecv:
			buf := make([]byte, 1500)
			n := c.Read(buf)
			if n > 0 {
				if _, err := c.Write(buf[:n]); err != nil {
					logger.Error("tcp echo write", slog.String("err", err.Error()))
				}
			}
		case tcp.EventConnected:
			ip, port := c.RemoteAddr()
			logger.Info("tcp echo connected", xlog.IPAttr("remote_ip", ip), slog.Int("remote_port", int(port)))
		}
	})
	if err != nil {
		logger.Error("tcp_open", slog.Int("port", echoPort), slog.String("err", err.Error()))
	}

	err = st.UDPRegister(echoPort, func(buf []byte, src udp.Src) error {
		return st.UDPSend(echoPort, src.Port, src.IP, buf)
	})
	if err != nil {
		logger.Error("udp register", slog.Int("port", echoPort), slog.String("err", err.Error()))
	}
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
