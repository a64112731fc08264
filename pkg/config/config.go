package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Sensor drivers understood by the host daemon.
const (
	DriverMock   = "mock"
	DriverSerial = "serial"
	DriverPeriph = "periph"
)

// Reconnect policies.
const (
	ReconnectImmediate = "immediate"
	ReconnectBackoff   = "backoff"
)

// Environment variables that override credentials and endpoints.
const (
	EnvWiFiSSID       = "GASMON_WIFI_SSID"
	EnvWiFiPassphrase = "GASMON_WIFI_PASSPHRASE"
	EnvAPIKey         = "GASMON_API_KEY"
	EnvTelemetryURL   = "GASMON_TELEMETRY_URL"
)

// Config represents the application configuration.
type Config struct {
	Network     NetworkConfig     `yaml:"network"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Sensor      SensorConfig      `yaml:"sensor"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Serial      SerialConfig      `yaml:"serial"`
	Periph      PeriphConfig      `yaml:"periph"`
	Storage     StorageConfig     `yaml:"storage"`
	Status      StatusConfig      `yaml:"status"`
	Mock        MockConfig        `yaml:"mock"`
	Log         LogConfig         `yaml:"log"`
}

// NetworkConfig contains wireless station configuration.
type NetworkConfig struct {
	Interface    string          `yaml:"interface"` // Host interface to watch, e.g. wlan0
	SSID         string          `yaml:"ssid"`
	Passphrase   string          `yaml:"passphrase"`
	PollInterval time.Duration   `yaml:"poll_interval"` // Interface polling period
	Reconnect    ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig selects the delay between reconnect attempts.
type ReconnectConfig struct {
	Policy  string        `yaml:"policy"` // immediate or backoff
	Initial time.Duration `yaml:"initial"`
	Max     time.Duration `yaml:"max"`
	Factor  float64       `yaml:"factor"`
}

// TelemetryConfig contains the upload endpoint.
type TelemetryConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// SensorConfig contains sampling parameters.
type SensorConfig struct {
	Driver    string        `yaml:"driver"`    // mock, serial or periph
	VRef      float64       `yaml:"vref"`      // ADC full-scale voltage
	Threshold uint16        `yaml:"threshold"` // Alarm when the raw count exceeds this
	Interval  time.Duration `yaml:"interval"`
}

// CalibrationConfig contains the power-law curve ppm = A * v^B.
type CalibrationConfig struct {
	A float64 `yaml:"a"`
	B float64 `yaml:"b"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port       string        `yaml:"port"`
	BaudRate   int           `yaml:"baud_rate"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

// PeriphConfig contains I2C ADC and GPIO configuration for Linux boards.
type PeriphConfig struct {
	Bus      string `yaml:"bus"` // Empty selects the first bus
	Address  uint16 `yaml:"address"`
	Channel  int    `yaml:"channel"`
	AlarmPin string `yaml:"alarm_pin"`
}

// StorageConfig contains the persistent key-value region.
type StorageConfig struct {
	Path string `yaml:"path"`
	Size int64  `yaml:"size"`
}

// StatusConfig contains the status HTTP surface.
type StatusConfig struct {
	Listen string        `yaml:"listen"` // Empty disables the server
	Window time.Duration `yaml:"window"` // History kept in memory
}

// MockConfig contains mock device configuration.
type MockConfig struct {
	Baseline     uint16        `yaml:"baseline"`      // Idle raw reading
	Peak         uint16        `yaml:"peak"`          // Raw reading during a gas puff
	NoiseLevel   float64       `yaml:"noise_level"`   // Noise amplitude in counts
	PuffDuration time.Duration `yaml:"puff_duration"` // Gas puff duration
	PuffPeriod   time.Duration `yaml:"puff_period"`   // Time between puffs
	WifiFailures int           `yaml:"wifi_failures"` // Simulated failed associations
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Network: NetworkConfig{
			Interface:    "wlan0",
			PollInterval: time.Second,
			Reconnect: ReconnectConfig{
				Policy:  ReconnectImmediate,
				Initial: time.Second,
				Max:     time.Minute,
				Factor:  2,
			},
		},
		Telemetry: TelemetryConfig{
			URL: "http://api.thingspeak.com/update",
		},
		Sensor: SensorConfig{
			Driver:    DriverMock,
			VRef:      3.3,
			Threshold: 25,
			Interval:  5 * time.Second,
		},
		Calibration: CalibrationConfig{
			A: 116.6020682,
			B: -2.769034857,
		},
		Serial: SerialConfig{
			Port:       "/dev/ttyACM0",
			BaudRate:   115200,
			StaleAfter: 5 * time.Second,
		},
		Periph: PeriphConfig{
			Address:  0x48,
			AlarmPin: "GPIO13",
		},
		Storage: StorageConfig{
			Path: "gasmon.kv",
			Size: 16 * 1024,
		},
		Status: StatusConfig{
			Window: 10 * time.Minute,
		},
		Mock: MockConfig{
			Baseline:     18,
			Peak:         600,
			NoiseLevel:   4,
			PuffDuration: 10 * time.Second,
			PuffPeriod:   time.Minute,
			WifiFailures: 2,
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
			// File doesn't exist, return defaults
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

// ApplyEnv overrides credentials and the telemetry endpoint from the
// environment. Unset variables leave the file values alone.
func (c *Config) ApplyEnv() {
	if v, ok := os.LookupEnv(EnvWiFiSSID); ok {
		c.Network.SSID = v
	}
	if v, ok := os.LookupEnv(EnvWiFiPassphrase); ok {
		c.Network.Passphrase = v
	}
	if v, ok := os.LookupEnv(EnvAPIKey); ok {
		c.Telemetry.APIKey = v
	}
	if v, ok := os.LookupEnv(EnvTelemetryURL); ok {
		c.Telemetry.URL = v
	}
}

// Validate reports configuration the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Telemetry.APIKey == "" {
		return fmt.Errorf("telemetry.api_key is required (or set %s)", EnvAPIKey)
	}

	switch c.Sensor.Driver {
	case DriverMock, DriverPeriph:
	case DriverSerial:
		if c.Serial.Port == "" {
			return fmt.Errorf("serial.port is required for the %s driver", DriverSerial)
		}
	default:
		return fmt.Errorf("unknown sensor driver %q", c.Sensor.Driver)
	}

	switch c.Network.Reconnect.Policy {
	case ReconnectImmediate, ReconnectBackoff:
	default:
		return fmt.Errorf("unknown reconnect policy %q", c.Network.Reconnect.Policy)
	}

	if c.Sensor.Interval <= 0 {
		return fmt.Errorf("sensor.interval must be positive, got %s", c.Sensor.Interval)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Network.PollInterval == 0 {
		c.Network.PollInterval = def.Network.PollInterval
	}
	if c.Network.Reconnect.Policy == "" {
		c.Network.Reconnect.Policy = def.Network.Reconnect.Policy
	}
	if c.Network.Reconnect.Initial == 0 {
		c.Network.Reconnect.Initial = def.Network.Reconnect.Initial
	}
	if c.Network.Reconnect.Max == 0 {
		c.Network.Reconnect.Max = def.Network.Reconnect.Max
	}
	if c.Network.Reconnect.Factor == 0 {
		c.Network.Reconnect.Factor = def.Network.Reconnect.Factor
	}

	if c.Telemetry.URL == "" {
		c.Telemetry.URL = def.Telemetry.URL
	}

	// Threshold 0 is a valid setting and is left alone.
	if c.Sensor.Driver == "" {
		c.Sensor.Driver = def.Sensor.Driver
	}
	if c.Sensor.VRef == 0 {
		c.Sensor.VRef = def.Sensor.VRef
	}
	if c.Sensor.Interval == 0 {
		c.Sensor.Interval = def.Sensor.Interval
	}

	if c.Calibration.A == 0 {
		c.Calibration.A = def.Calibration.A
	}
	if c.Calibration.B == 0 {
		c.Calibration.B = def.Calibration.B
	}

	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}
	if c.Serial.StaleAfter == 0 {
		c.Serial.StaleAfter = def.Serial.StaleAfter
	}

	if c.Periph.Address == 0 {
		c.Periph.Address = def.Periph.Address
	}
	if c.Periph.AlarmPin == "" {
		c.Periph.AlarmPin = def.Periph.AlarmPin
	}

	if c.Storage.Path == "" {
		c.Storage.Path = def.Storage.Path
	}
	if c.Storage.Size == 0 {
		c.Storage.Size = def.Storage.Size
	}

	if c.Status.Window == 0 {
		c.Status.Window = def.Status.Window
	}

	if c.Mock.PuffPeriod == 0 {
		c.Mock.PuffPeriod = def.Mock.PuffPeriod
	}
	if c.Mock.PuffDuration == 0 {
		c.Mock.PuffDuration = def.Mock.PuffDuration
	}

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}
