package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	require.Len(t, cfg.Sensors, 2)
	assert.Equal(t, "/dev/ttyS0", cfg.Sensors[0].Port)
	assert.Equal(t, 9600, cfg.Sensors[0].BaudRate)
	assert.Equal(t, 2300*time.Millisecond, cfg.Sampling.Window)
	assert.Equal(t, time.Second, cfg.Sampling.PollInterval)
	assert.Equal(t, 1, cfg.Publish.IntervalMinutes)
	assert.Equal(t, 30*time.Second, cfg.Publish.LoopSleep)
	assert.Equal(t, TransportHTTP, cfg.Telemetry.Transport)
	assert.Equal(t, "air-quality-sensor.raw-pm2-dot-5", cfg.Telemetry.Feeds.Raw)
	assert.Equal(t, "air-quality-sensor.aqi", cfg.Telemetry.Feeds.AQI)
	assert.Equal(t, "air-quality-sensor.category", cfg.Telemetry.Feeds.Category)
	assert.Equal(t, []float64{10, 14}, cfg.Mock.Base)
	assert.Empty(t, cfg.Status.Listen)
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, "/dev/ttyS0", cfg.Sensors[0].Port)
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
sensors:
  - name: outdoor
    port: /dev/ttyUSB0
    baud_rate: 19200
  - port: /dev/ttyUSB1

sampling:
  window: 5s
  poll_interval: 500ms

publish:
  interval_minutes: 5
  loop_sleep: 10s

telemetry:
  transport: mqtt
  broker: localhost:1883
  feeds:
    raw: node.raw

location:
  latitude: 54.68
  longitude: 25.28
  elevation: 112

status:
  listen: ":8080"
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)

	require.Len(t, cfg.Sensors, 2)
	assert.Equal(t, "outdoor", cfg.Sensors[0].Name)
	assert.Equal(t, 19200, cfg.Sensors[0].BaudRate)
	assert.Equal(t, "pm25-2", cfg.Sensors[1].Name)
	assert.Equal(t, 9600, cfg.Sensors[1].BaudRate)
	assert.Equal(t, 2*time.Second, cfg.Sensors[1].ReadTimeout)
	assert.Equal(t, 5*time.Second, cfg.Sampling.Window)
	assert.Equal(t, 500*time.Millisecond, cfg.Sampling.PollInterval)
	assert.Equal(t, 5, cfg.Publish.IntervalMinutes)
	assert.Equal(t, 10*time.Second, cfg.Publish.LoopSleep)
	assert.Equal(t, TransportMQTT, cfg.Telemetry.Transport)
	assert.Equal(t, "localhost:1883", cfg.Telemetry.Broker)
	assert.Equal(t, "node.raw", cfg.Telemetry.Feeds.Raw)
	assert.Equal(t, "air-quality-sensor.aqi", cfg.Telemetry.Feeds.AQI) // default
	assert.Equal(t, 54.68, cfg.Location.Latitude)
	assert.Equal(t, 112.0, cfg.Location.Elevation)
	assert.Equal(t, ":8080", cfg.Status.Listen)
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.WriteString("invalid: yaml: content: [")
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_PartialYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
publish:
  interval_minutes: 2
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)

	// Should use defaults for missing fields
	assert.Equal(t, 2, cfg.Publish.IntervalMinutes)
	assert.Len(t, cfg.Sensors, 2)                                   // default
	assert.Equal(t, 2300*time.Millisecond, cfg.Sampling.Window)      // default
	assert.Equal(t, 30*time.Second, cfg.Publish.LoopSleep)           // default
	assert.Equal(t, "https://io.adafruit.com", cfg.Telemetry.BaseURL) // default
}

func TestSave(t *testing.T) {
	cfg := Default()
	cfg.Sensors[0].Port = "/dev/ttyAMA0"
	cfg.Publish.IntervalMinutes = 15

	filename := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, cfg.Save(filename))

	loaded, err := Load(filename)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyAMA0", loaded.Sensors[0].Port)
	assert.Equal(t, 15, loaded.Publish.IntervalMinutes)
	assert.Equal(t, cfg.Sampling, loaded.Sampling)
}

func TestLoadEnv_ApplyEnv(t *testing.T) {
	filename := filepath.Join(t.TempDir(), ".env")
	content := "AIO_USERNAME=node-user\nAIO_KEY=aio_secret\nWIFI_SSID=home\n"
	require.NoError(t, os.WriteFile(filename, []byte(content), 0600))

	// godotenv does not override variables that are already set.
	t.Setenv("AIO_USERNAME", "")
	t.Setenv("AIO_KEY", "")
	t.Setenv("WIFI_SSID", "")
	require.NoError(t, os.Unsetenv("AIO_USERNAME"))
	require.NoError(t, os.Unsetenv("AIO_KEY"))
	require.NoError(t, os.Unsetenv("WIFI_SSID"))
	t.Setenv("WIFI_PASSWORD", "hunter2")
	t.Setenv("AQ_LATITUDE", "40.7")
	t.Setenv("AQ_LONGITUDE", "-74.0")

	require.NoError(t, LoadEnv(filename))

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())

	assert.Equal(t, "node-user", cfg.Telemetry.Username)
	assert.Equal(t, "aio_secret", cfg.Telemetry.Key)
	assert.Equal(t, "home", cfg.Network.SSID)
	assert.Equal(t, "hunter2", cfg.Network.Password)
	assert.Equal(t, 40.7, cfg.Location.Latitude)
	assert.Equal(t, -74.0, cfg.Location.Longitude)
}

func TestLoadEnv_Missing(t *testing.T) {
	assert.NoError(t, LoadEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestApplyEnv_InvalidFloat(t *testing.T) {
	t.Setenv("AQ_ELEVATION", "high")

	cfg := Default()
	assert.Error(t, cfg.ApplyEnv())
}

func TestValidate(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Validate(false), "credentials missing")
	assert.NoError(t, cfg.Validate(true), "mock runs need no credentials")

	cfg.Telemetry.Username = "user"
	cfg.Telemetry.Key = "key"
	assert.NoError(t, cfg.Validate(false))

	cfg.Telemetry.Transport = "carrier-pigeon"
	assert.Error(t, cfg.Validate(false))

	cfg = Default()
	cfg.Telemetry.Username = "user"
	cfg.Telemetry.Key = "key"
	cfg.Sensors = nil
	assert.Error(t, cfg.Validate(false))
}
