package pm25

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the PMS5003 UART baud rate.
	DefaultBaudRate = 9600
	// DefaultReadTimeout bounds a single frame read. The sensor emits a
	// frame roughly every second.
	DefaultReadTimeout = 2 * time.Second

	// maxPortFaults is the number of consecutive port I/O failures after
	// which the port is closed and reopened on the next read.
	maxPortFaults = 3
)

// errPortIO marks a failure of the port itself rather than of the data on it.
var errPortIO = errors.New("serial port i/o")

func portFault(err error) error {
	return fmt.Errorf("%w: %w", errPortIO, err)
}

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// port is the subset of serial.Port used by Serial.
type port interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
	SetReadTimeout(t time.Duration) error
}

// opener opens a named port with the given mode.
type opener func(name string, mode *serial.Mode) (port, error)

func openSerial(name string, mode *serial.Mode) (port, error) {
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Serial is a PMS5003 sensor attached to a UART.
type Serial struct {
	channel     string
	port        string
	baudRate    int
	readTimeout time.Duration
	log         *slog.Logger
	open        opener

	mu        sync.Mutex
	conn      port
	connected bool
	faults    int
}

// New creates a new Serial source for the given channel name and port.
func New(channel, portName string, baudRate int, readTimeout time.Duration, logger *slog.Logger) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Serial{
		channel:     channel,
		port:        portName,
		baudRate:    baudRate,
		readTimeout: readTimeout,
		log:         logger.With("channel", channel, "port", portName),
		open:        openSerial,
	}
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{Name: name, Description: name})
	}

	return result, nil
}

// Channel returns the sensor channel name.
func (d *Serial) Channel() string { return d.channel }

// Connect opens the serial port.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return fmt.Errorf("already connected")
	}

	return d.openPort()
}

// openPort opens and attaches the port. d.mu must be held.
func (d *Serial) openPort() error {
	mode := &serial.Mode{
		BaudRate: d.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	p, err := d.open(d.port, mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	return d.attach(p)
}

func (d *Serial) attach(p port) error {
	if err := p.SetReadTimeout(d.readTimeout); err != nil {
		p.Close()
		return fmt.Errorf("failed to set read timeout on %s: %w", d.port, err)
	}
	d.conn = p
	d.connected = true
	d.faults = 0
	d.log.Info("sensor connected", "baud", d.baudRate)
	return nil
}

// Close closes the serial port.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			d.log.Warn("error closing serial port", "error", err)
		}
		d.conn = nil
	}

	d.connected = false

	return nil
}

// IsConnected returns whether the port is open.
func (d *Serial) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// Read discards buffered input and decodes the next complete frame.
// The returned value is the environmental PM2.5 concentration. After
// repeated port I/O failures the port is closed and reopened by a later
// Read, so an unplugged adapter recovers once it is back.
func (d *Serial) Read(ctx context.Context) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return Reading{}, fmt.Errorf("%s: %w", d.channel, ErrNotConnected)
	}

	if d.conn == nil {
		if err := d.openPort(); err != nil {
			return Reading{}, fmt.Errorf("%s: %w: %v", d.channel, ErrTransient, err)
		}
	}

	frame, err := d.nextFrame()
	if err != nil {
		if errors.Is(err, errPortIO) {
			d.portFailed(err)
		}
		return Reading{}, fmt.Errorf("%s: %w", d.channel, err)
	}
	d.faults = 0

	return Reading{
		Channel:   d.channel,
		Value:     float64(frame.PM25Env),
		Timestamp: time.Now(),
	}, nil
}

func (d *Serial) nextFrame() (Frame, error) {
	// Stale frames queue up between sampling windows.
	if err := d.conn.ResetInputBuffer(); err != nil {
		return Frame{}, fmt.Errorf("%w: reset input buffer: %w", ErrTransient, portFault(err))
	}
	return readFrame(d.conn)
}

// portFailed counts a port I/O failure and drops the port once too many
// happen in a row. d.mu must be held.
func (d *Serial) portFailed(err error) {
	d.faults++
	if d.faults < maxPortFaults {
		return
	}

	d.log.Warn("serial port failing, reopening", "failures", d.faults, "error", err)
	if cerr := d.conn.Close(); cerr != nil {
		d.log.Warn("error closing serial port", "error", cerr)
	}
	d.conn = nil
	d.faults = 0
}
