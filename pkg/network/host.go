package network

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
)

// DefaultWirelessStats is the Linux wireless statistics table.
const DefaultWirelessStats = "/proc/net/wireless"

// Host is the adapter of a Linux host whose link is managed by the OS
// (wpa_supplicant, NetworkManager). Connect verifies the link instead of
// associating, and Reset flushes the sessions registered with OnReset.
type Host struct {
	iface         string
	wirelessStats string
	log           *slog.Logger

	// interfaces is swapped in tests.
	interfaces func() ([]netInterface, error)

	mu     sync.Mutex
	hooks  []func()
	ssid   string
	linkUp bool
}

// netInterface is the subset of net.Interface used by Host.
type netInterface struct {
	Name  string
	Flags net.Flags
	Addrs []net.Addr
}

// NewHost creates a host adapter watching iface. An empty iface accepts
// any non-loopback interface.
func NewHost(iface string, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{
		iface:         iface,
		wirelessStats: DefaultWirelessStats,
		log:           logger.With("interface", iface),
		interfaces:    systemInterfaces,
	}
}

// OnReset registers a hook invoked by Reset, e.g. flushing idle HTTP
// connections or dropping an MQTT session.
func (h *Host) OnReset(hook func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook)
}

// Connect succeeds once the watched interface is up with an IPv4 address.
func (h *Host) Connect(ctx context.Context, ssid, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ifc, ip, err := h.find()
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.ssid = ssid
	h.linkUp = true
	h.mu.Unlock()

	h.log.Debug("link up", "via", ifc, "ip", ip)
	return nil
}

// Reset marks the link down and runs the registered hooks.
func (h *Host) Reset() error {
	h.mu.Lock()
	h.linkUp = false
	hooks := make([]func(), len(h.hooks))
	copy(hooks, h.hooks)
	h.mu.Unlock()

	for _, hook := range hooks {
		hook()
	}
	h.log.Debug("link reset", "hooks", len(hooks))
	return nil
}

// IsConnected reports whether the last Connect succeeded and the interface
// still has an IPv4 address.
func (h *Host) IsConnected() bool {
	h.mu.Lock()
	up := h.linkUp
	h.mu.Unlock()
	if !up {
		return false
	}
	_, _, err := h.find()
	return err == nil
}

// RSSI returns the signal level in dBm from the wireless statistics table,
// or 0 when the interface is not wireless.
func (h *Host) RSSI() int {
	f, err := os.Open(h.wirelessStats)
	if err != nil {
		return 0
	}
	defer f.Close()

	ifc, _, err := h.find()
	if err != nil {
		return 0
	}

	rssi, err := parseWireless(f, ifc)
	if err != nil {
		h.log.Debug("no signal level", "error", err)
		return 0
	}
	return rssi
}

// IPAddress returns the IPv4 address of the watched interface, or nil.
func (h *Host) IPAddress() net.IP {
	_, ip, err := h.find()
	if err != nil {
		return nil
	}
	return ip
}

func (h *Host) find() (string, net.IP, error) {
	ifcs, err := h.interfaces()
	if err != nil {
		return "", nil, fmt.Errorf("failed to list interfaces: %w", err)
	}

	for _, ifc := range ifcs {
		if h.iface != "" && ifc.Name != h.iface {
			continue
		}
		if ifc.Flags&net.FlagUp == 0 || ifc.Flags&net.FlagLoopback != 0 {
			continue
		}
		for _, addr := range ifc.Addrs {
			if ip := ipv4(addr); ip != nil {
				return ifc.Name, ip, nil
			}
		}
	}

	if h.iface != "" {
		return "", nil, fmt.Errorf("%w: %s has no IPv4 address", ErrNotConnected, h.iface)
	}
	return "", nil, ErrNotConnected
}

func ipv4(addr net.Addr) net.IP {
	var ip net.IP
	switch a := addr.(type) {
	case *net.IPNet:
		ip = a.IP
	case *net.IPAddr:
		ip = a.IP
	}
	return ip.To4()
}

func systemInterfaces() ([]netInterface, error) {
	ifcs, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	result := make([]netInterface, 0, len(ifcs))
	for _, ifc := range ifcs {
		addrs, err := ifc.Addrs()
		if err != nil {
			continue
		}
		result = append(result, netInterface{Name: ifc.Name, Flags: ifc.Flags, Addrs: addrs})
	}
	return result, nil
}

// parseWireless extracts the signal level of iface from a
// /proc/net/wireless table.
func parseWireless(r io.Reader, iface string) (int, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || strings.TrimSuffix(fields[0], ":") != iface || !strings.HasSuffix(fields[0], ":") {
			continue
		}
		level, err := strconv.ParseFloat(strings.TrimSuffix(fields[3], "."), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid signal level %q: %w", fields[3], err)
		}
		return int(level), nil
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("%s not listed", iface)
}
