package network

import (
	"context"
	"fmt"
	"net"
	"sync"
)

// Mock is a scripted adapter for simulated runs.
type Mock struct {
	mu        sync.Mutex
	connected bool
	failNext  int
	connects  int
	resets    int
	rssi      int
	ip        net.IP
	ssid      string
}

// NewMock creates a disconnected mock adapter reporting the given signal
// level and address once connected.
func NewMock(rssi int, ip net.IP) *Mock {
	if ip == nil {
		ip = net.IPv4(192, 168, 4, 2)
	}
	return &Mock{rssi: rssi, ip: ip}
}

// FailConnects makes the next n Connect calls fail.
func (m *Mock) FailConnects(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
}

// Connect associates unless a failure has been scripted.
func (m *Mock) Connect(ctx context.Context, ssid, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects++
	if m.failNext > 0 {
		m.failNext--
		return fmt.Errorf("%w: association with %q failed", ErrNotConnected, ssid)
	}
	m.connected = true
	m.ssid = ssid
	return nil
}

// Reset drops the association.
func (m *Mock) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	m.connected = false
	return nil
}

// IsConnected reports the association state.
func (m *Mock) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// RSSI returns the scripted signal level while connected.
func (m *Mock) RSSI() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return 0
	}
	return m.rssi
}

// IPAddress returns the scripted address while connected.
func (m *Mock) IPAddress() net.IP {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil
	}
	return m.ip
}

// Connects returns the number of Connect calls.
func (m *Mock) Connects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}

// Resets returns the number of Reset calls.
func (m *Mock) Resets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resets
}

// SSID returns the network joined last.
func (m *Mock) SSID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ssid
}
