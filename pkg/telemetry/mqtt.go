package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
)

// DefaultBroker is the Adafruit IO MQTT endpoint.
const DefaultBroker = "io.adafruit.com:1883"

// Topic returns the JSON topic of a feed.
func Topic(username, feedKey string) string {
	return username + "/feeds/" + feedKey + "/json"
}

// MQTT publishes feed values over MQTT. The session is established on the
// first send and dropped on any failure; the next send dials again.
type MQTT struct {
	broker   string
	username string
	key      string
	clientID string
	log      *slog.Logger

	mu     sync.Mutex
	client *paho.Client
}

// NewMQTT creates a publisher. An empty clientID is replaced by a random
// UUID.
func NewMQTT(broker, username, key, clientID string, logger *slog.Logger) *MQTT {
	if broker == "" {
		broker = DefaultBroker
	}
	if clientID == "" {
		clientID = "aqnode-" + uuid.NewString()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTT{
		broker:   broker,
		username: username,
		key:      key,
		clientID: clientID,
		log:      logger.With("broker", broker, "client_id", clientID),
	}
}

// ClientID returns the MQTT client identifier.
func (m *MQTT) ClientID() string { return m.clientID }

// SendData publishes value to the feed's JSON topic with QoS 1.
func (m *MQTT) SendData(ctx context.Context, feedKey, value string, loc *Location) error {
	data, err := json.Marshal(newPayload(value, loc))
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.session(ctx)
	if err != nil {
		return err
	}

	topic := Topic(m.username, feedKey)
	if _, err := c.Publish(ctx, &paho.Publish{
		QoS:     1,
		Topic:   topic,
		Payload: data,
	}); err != nil {
		m.dropLocked()
		return fmt.Errorf("%w: publish %s: %w", ErrRetryable, topic, err)
	}

	m.log.Debug("published", "topic", topic, "value", value)
	return nil
}

// Reset drops the current session.
func (m *MQTT) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropLocked()
}

// Close disconnects from the broker.
func (m *MQTT) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil
	}
	err := m.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
	m.client = nil
	return err
}

func (m *MQTT) session(ctx context.Context) (*paho.Client, error) {
	if m.client != nil {
		return m.client, nil
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", m.broker)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrRetryable, m.broker, err)
	}

	c := paho.NewClient(paho.ClientConfig{
		ClientID: m.clientID,
		Conn:     conn,
		OnClientError: func(err error) {
			m.log.Warn("client error", "error", err)
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			m.log.Warn("server disconnect", "reason", d.ReasonCode)
		},
	})

	cp := &paho.Connect{
		ClientID:   m.clientID,
		KeepAlive:  30,
		CleanStart: true,
	}
	if m.username != "" {
		cp.Username = m.username
		cp.UsernameFlag = true
		cp.Password = []byte(m.key)
		cp.PasswordFlag = true
	}

	if _, err := c.Connect(ctx, cp); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: connect %s: %w", ErrRetryable, m.broker, err)
	}

	m.log.Info("connected")
	m.client = c
	return c, nil
}

func (m *MQTT) dropLocked() {
	if m.client == nil {
		return
	}
	_ = m.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
	m.client = nil
}
