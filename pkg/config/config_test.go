package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, DriverMock, cfg.Sensor.Driver)
	assert.Equal(t, uint16(25), cfg.Sensor.Threshold)
	assert.Equal(t, 5*time.Second, cfg.Sensor.Interval)
	assert.Equal(t, float64(3.3), cfg.Sensor.VRef)
	assert.Equal(t, 116.6020682, cfg.Calibration.A)
	assert.Equal(t, -2.769034857, cfg.Calibration.B)
	assert.Equal(t, "http://api.thingspeak.com/update", cfg.Telemetry.URL)
	assert.Empty(t, cfg.Telemetry.APIKey)
	assert.Equal(t, ReconnectImmediate, cfg.Network.Reconnect.Policy)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, uint16(0x48), cfg.Periph.Address)
	assert.Empty(t, cfg.Status.Listen)
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp(t.TempDir(), "test_config_*.yaml")
	require.NoError(t, err)
	_, err = tmpfile.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())
	return tmpfile.Name()
}

func TestLoad_ValidYAML(t *testing.T) {
	name := writeTemp(t, `
network:
  interface: wlp2s0
  ssid: lab
  passphrase: secret
  reconnect:
    policy: backoff
    initial: 2s
    max: 30s

telemetry:
  api_key: KEY123

sensor:
  driver: serial
  threshold: 40
  interval: 1s

calibration:
  a: 100
  b: -2

serial:
  port: /dev/ttyUSB0

periph:
  address: 0x49
  channel: 2

status:
  listen: ":8080"
`)

	cfg, err := Load(name)
	require.NoError(t, err)

	assert.Equal(t, "wlp2s0", cfg.Network.Interface)
	assert.Equal(t, "lab", cfg.Network.SSID)
	assert.Equal(t, "secret", cfg.Network.Passphrase)
	assert.Equal(t, ReconnectBackoff, cfg.Network.Reconnect.Policy)
	assert.Equal(t, 2*time.Second, cfg.Network.Reconnect.Initial)
	assert.Equal(t, 30*time.Second, cfg.Network.Reconnect.Max)
	assert.Equal(t, float64(2), cfg.Network.Reconnect.Factor) // default
	assert.Equal(t, "KEY123", cfg.Telemetry.APIKey)
	assert.Equal(t, DriverSerial, cfg.Sensor.Driver)
	assert.Equal(t, uint16(40), cfg.Sensor.Threshold)
	assert.Equal(t, time.Second, cfg.Sensor.Interval)
	assert.Equal(t, float64(100), cfg.Calibration.A)
	assert.Equal(t, float64(-2), cfg.Calibration.B)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	assert.Equal(t, uint16(0x49), cfg.Periph.Address)
	assert.Equal(t, 2, cfg.Periph.Channel)
	assert.Equal(t, ":8080", cfg.Status.Listen)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_InvalidYAML(t *testing.T) {
	name := writeTemp(t, "invalid: yaml: content: [")

	cfg, err := Load(name)
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_PartialYAML(t *testing.T) {
	name := writeTemp(t, `
sensor:
  driver: periph
  vref: 0
  interval: 0s
`)

	cfg, err := Load(name)
	require.NoError(t, err)

	// Should use defaults for missing and zeroed fields
	assert.Equal(t, DriverPeriph, cfg.Sensor.Driver)
	assert.Equal(t, float64(3.3), cfg.Sensor.VRef)
	assert.Equal(t, 5*time.Second, cfg.Sensor.Interval)
	assert.Equal(t, uint16(25), cfg.Sensor.Threshold)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_ZeroThresholdKept(t *testing.T) {
	name := writeTemp(t, "sensor:\n  threshold: 0\n")

	cfg, err := Load(name)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), cfg.Sensor.Threshold)
}

func TestSave(t *testing.T) {
	cfg := Default()
	cfg.Serial.Port = "/dev/ttyUSB0"
	cfg.Sensor.Interval = 15 * time.Second
	cfg.Telemetry.APIKey = "abc"

	name := writeTemp(t, "")
	require.NoError(t, cfg.Save(name))

	// Load it back and verify
	loaded, err := Load(name)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", loaded.Serial.Port)
	assert.Equal(t, 15*time.Second, loaded.Sensor.Interval)
	assert.Equal(t, "abc", loaded.Telemetry.APIKey)
	assert.Equal(t, cfg, loaded)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvWiFiSSID, "env-ssid")
	t.Setenv(EnvWiFiPassphrase, "env-pass")
	t.Setenv(EnvAPIKey, "env-key")
	t.Setenv(EnvTelemetryURL, "http://example.test/update")

	cfg := Default()
	cfg.Network.SSID = "file-ssid"
	cfg.ApplyEnv()

	assert.Equal(t, "env-ssid", cfg.Network.SSID)
	assert.Equal(t, "env-pass", cfg.Network.Passphrase)
	assert.Equal(t, "env-key", cfg.Telemetry.APIKey)
	assert.Equal(t, "http://example.test/update", cfg.Telemetry.URL)
}

func TestApplyEnv_UnsetKeepsFile(t *testing.T) {
	os.Unsetenv(EnvAPIKey)

	cfg := Default()
	cfg.Telemetry.APIKey = "file-key"
	cfg.ApplyEnv()

	assert.Equal(t, "file-key", cfg.Telemetry.APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr string
	}{
		{
			name:   "valid",
			modify: func(c *Config) {},
		},
		{
			name:    "missing api key",
			modify:  func(c *Config) { c.Telemetry.APIKey = "" },
			wantErr: "api_key",
		},
		{
			name:    "unknown driver",
			modify:  func(c *Config) { c.Sensor.Driver = "spi" },
			wantErr: "unknown sensor driver",
		},
		{
			name: "serial without port",
			modify: func(c *Config) {
				c.Sensor.Driver = DriverSerial
				c.Serial.Port = ""
			},
			wantErr: "serial.port",
		},
		{
			name:    "unknown reconnect policy",
			modify:  func(c *Config) { c.Network.Reconnect.Policy = "never" },
			wantErr: "reconnect policy",
		},
		{
			name:    "non-positive interval",
			modify:  func(c *Config) { c.Sensor.Interval = 0 },
			wantErr: "interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Telemetry.APIKey = "key"
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
