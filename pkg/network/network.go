package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/itohio/aqnode/pkg/retry"
)

// ErrNotConnected is returned when an adapter has no usable link.
var ErrNotConnected = errors.New("network not connected")

// Adapter is the network association collaborator of the control loop.
type Adapter interface {
	Connect(ctx context.Context, ssid, password string) error
	// Reset drops the current association and any cached sessions.
	Reset() error
	IsConnected() bool
	RSSI() int
	IPAddress() net.IP
}

// Ensure Host implements Adapter.
var _ Adapter = (*Host)(nil)

// Ensure Mock implements Adapter.
var _ Adapter = (*Mock)(nil)

// Credentials identify the wireless network to join.
type Credentials struct {
	SSID     string
	Password string
}

// String hides the password.
func (c Credentials) String() string {
	return fmt.Sprintf("ssid=%q", c.SSID)
}

// Connect associates the adapter, retrying with policy until it succeeds or
// ctx is done. A nil policy retries forever with the default backoff.
func Connect(ctx context.Context, a Adapter, creds Credentials, policy *retry.ExponentialBackoff) error {
	if policy == nil {
		policy = &retry.ExponentialBackoff{}
	}

	err := policy.Start(ctx, "network connect", func(ctx context.Context) (bool, error) {
		if err := a.Connect(ctx, creds.SSID, creds.Password); err != nil {
			return ctx.Err() == nil, err
		}
		return false, nil
	})
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", creds, err)
	}
	return nil
}

// LogStatus logs the association details of a connected adapter.
func LogStatus(logger *slog.Logger, a Adapter, creds Credentials) {
	if logger == nil {
		logger = slog.Default()
	}
	ip := "none"
	if addr := a.IPAddress(); addr != nil {
		ip = addr.String()
	}
	logger.Info("connected",
		"ssid", creds.SSID,
		"rssi", a.RSSI(),
		"ip", ip,
	)
}
