package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Telemetry transports.
const (
	TransportHTTP = "http"
	TransportMQTT = "mqtt"
)

// Config represents the node configuration.
type Config struct {
	Sensors   []SensorConfig  `yaml:"sensors"`
	Sampling  SamplingConfig  `yaml:"sampling"`
	Publish   PublishConfig   `yaml:"publish"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Location  LocationConfig  `yaml:"location"`
	Network   NetworkConfig   `yaml:"network"`
	Mock      MockConfig      `yaml:"mock"`
	Status    StatusConfig    `yaml:"status"`
	Log       LogConfig       `yaml:"log"`
}

// SensorConfig describes one PM2.5 sensor UART.
type SensorConfig struct {
	Name        string        `yaml:"name"`
	Port        string        `yaml:"port"`
	BaudRate    int           `yaml:"baud_rate"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// SamplingConfig contains the sampling window parameters.
type SamplingConfig struct {
	Window       time.Duration `yaml:"window"`        // Sampling window length
	PollInterval time.Duration `yaml:"poll_interval"` // Pause after each pass over all sensors
}

// PublishConfig contains publish cycle timing.
type PublishConfig struct {
	IntervalMinutes int           `yaml:"interval_minutes"`
	LoopSleep       time.Duration `yaml:"loop_sleep"` // Fixed pause at the end of every loop iteration
}

// TelemetryConfig contains the Adafruit IO connection settings.
type TelemetryConfig struct {
	Transport string        `yaml:"transport"` // "http" or "mqtt"
	BaseURL   string        `yaml:"base_url"`
	Broker    string        `yaml:"broker"` // host:port, mqtt transport only
	ClientID  string        `yaml:"client_id,omitempty"`
	Username  string        `yaml:"username,omitempty"`
	Key       string        `yaml:"key,omitempty"`
	Timeout   time.Duration `yaml:"timeout"`
	Feeds     FeedsConfig   `yaml:"feeds"`
}

// FeedsConfig names the three published feeds.
type FeedsConfig struct {
	Raw      string `yaml:"raw"`
	AQI      string `yaml:"aqi"`
	Category string `yaml:"category"`
}

// LocationConfig is attached as metadata to published values.
type LocationConfig struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Elevation float64 `yaml:"elevation"`
}

// NetworkConfig contains network association settings.
type NetworkConfig struct {
	Interface string        `yaml:"interface"`
	SSID      string        `yaml:"ssid,omitempty"`
	Password  string        `yaml:"password,omitempty"`
	RetryMin  time.Duration `yaml:"retry_min"`
	RetryMax  time.Duration `yaml:"retry_max"`
}

// MockConfig contains simulated sensor configuration.
type MockConfig struct {
	Base      []float64 `yaml:"base"`       // Base concentration per simulated sensor (µg/m³)
	Noise     float64   `yaml:"noise"`      // Noise amplitude (µg/m³)
	FailEvery int       `yaml:"fail_every"` // Fail every Nth read (0 = never)
}

// StatusConfig controls the local status endpoint.
type StatusConfig struct {
	Listen string `yaml:"listen"` // e.g. ":8080"; empty disables the endpoint
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Sensors: []SensorConfig{
			{Name: "pm25-1", Port: "/dev/ttyS0", BaudRate: 9600, ReadTimeout: 2 * time.Second},
			{Name: "pm25-2", Port: "/dev/ttyS1", BaudRate: 9600, ReadTimeout: 2 * time.Second},
		},
		Sampling: SamplingConfig{
			Window:       2300 * time.Millisecond,
			PollInterval: time.Second, // Sensor output rate is 1 Hz
		},
		Publish: PublishConfig{
			IntervalMinutes: 1,
			LoopSleep:       30 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Transport: TransportHTTP,
			BaseURL:   "https://io.adafruit.com",
			Broker:    "io.adafruit.com:1883",
			Timeout:   10 * time.Second,
			Feeds: FeedsConfig{
				Raw:      "air-quality-sensor.raw-pm2-dot-5",
				AQI:      "air-quality-sensor.aqi",
				Category: "air-quality-sensor.category",
			},
		},
		Network: NetworkConfig{
			Interface: "wlan0",
			RetryMin:  time.Second,
			RetryMax:  30 * time.Second,
		},
		Mock: MockConfig{
			Base:  []float64{10, 14},
			Noise: 0.5,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadEnv loads secrets from a .env file into the process environment.
// A missing file is not an error.
func LoadEnv(filename string) error {
	if err := godotenv.Load(filename); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", filename, err)
	}
	return nil
}

// ApplyEnv overrides secrets and location from environment variables.
func (c *Config) ApplyEnv() error {
	strs := map[string]*string{
		"AIO_USERNAME":  &c.Telemetry.Username,
		"AIO_KEY":       &c.Telemetry.Key,
		"WIFI_SSID":     &c.Network.SSID,
		"WIFI_PASSWORD": &c.Network.Password,
	}
	for name, dst := range strs {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
		}
	}

	floats := map[string]*float64{
		"AQ_LATITUDE":  &c.Location.Latitude,
		"AQ_LONGITUDE": &c.Location.Longitude,
		"AQ_ELEVATION": &c.Location.Elevation,
	}
	for name, dst := range floats {
		v := strings.TrimSpace(os.Getenv(name))
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		*dst = f
	}

	return nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate(mock bool) error {
	if !mock && len(c.Sensors) == 0 {
		return errors.New("at least one sensor is required")
	}
	for i, s := range c.Sensors {
		if !mock && s.Port == "" {
			return fmt.Errorf("sensor %d: port is required", i)
		}
	}
	switch c.Telemetry.Transport {
	case TransportHTTP, TransportMQTT:
	default:
		return fmt.Errorf("unknown telemetry transport %q", c.Telemetry.Transport)
	}
	if !mock && (c.Telemetry.Username == "" || c.Telemetry.Key == "") {
		return errors.New("telemetry username and key are required (AIO_USERNAME, AIO_KEY)")
	}
	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if len(c.Sensors) == 0 {
		c.Sensors = def.Sensors
	}
	for i := range c.Sensors {
		s := &c.Sensors[i]
		if s.Name == "" {
			s.Name = fmt.Sprintf("pm25-%d", i+1)
		}
		if s.BaudRate == 0 {
			s.BaudRate = def.Sensors[0].BaudRate
		}
		if s.ReadTimeout == 0 {
			s.ReadTimeout = def.Sensors[0].ReadTimeout
		}
	}

	if c.Sampling.Window == 0 {
		c.Sampling.Window = def.Sampling.Window
	}
	if c.Sampling.PollInterval == 0 {
		c.Sampling.PollInterval = def.Sampling.PollInterval
	}

	if c.Publish.IntervalMinutes <= 0 {
		c.Publish.IntervalMinutes = def.Publish.IntervalMinutes
	}
	if c.Publish.LoopSleep == 0 {
		c.Publish.LoopSleep = def.Publish.LoopSleep
	}

	if c.Telemetry.Transport == "" {
		c.Telemetry.Transport = def.Telemetry.Transport
	}
	if c.Telemetry.BaseURL == "" {
		c.Telemetry.BaseURL = def.Telemetry.BaseURL
	}
	if c.Telemetry.Broker == "" {
		c.Telemetry.Broker = def.Telemetry.Broker
	}
	if c.Telemetry.Timeout == 0 {
		c.Telemetry.Timeout = def.Telemetry.Timeout
	}
	if c.Telemetry.Feeds.Raw == "" {
		c.Telemetry.Feeds.Raw = def.Telemetry.Feeds.Raw
	}
	if c.Telemetry.Feeds.AQI == "" {
		c.Telemetry.Feeds.AQI = def.Telemetry.Feeds.AQI
	}
	if c.Telemetry.Feeds.Category == "" {
		c.Telemetry.Feeds.Category = def.Telemetry.Feeds.Category
	}

	if c.Network.RetryMin == 0 {
		c.Network.RetryMin = def.Network.RetryMin
	}
	if c.Network.RetryMax == 0 {
		c.Network.RetryMax = def.Network.RetryMax
	}

	if len(c.Mock.Base) == 0 {
		c.Mock.Base = def.Mock.Base
	}

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}
