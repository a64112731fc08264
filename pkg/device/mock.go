package device

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/itohio/gasmon/pkg/config"
)

// Mock simulates a gas sensor for development without hardware. It idles at
// a baseline reading and periodically rises to a peak, as if a gas puff
// reached the sensor.
type Mock struct {
	cfg *config.MockConfig

	mu        sync.RWMutex
	connected bool
	alarm     bool
	startTime time.Time
	now       func() time.Time
}

// NewMock creates a simulated device.
func NewMock(cfg *config.MockConfig) *Mock {
	if cfg == nil {
		def := config.Default().Mock
		cfg = &def
	}

	return &Mock{
		cfg: cfg,
		now: time.Now,
	}
}

// Connect starts the simulation clock.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}

	m.connected = true
	m.startTime = m.now()
	m.alarm = false

	return nil
}

// Close stops the simulated device.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

// Read returns the simulated raw reading for the current time.
func (m *Mock) Read() (uint16, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.connected {
		return 0, ErrNotConnected
	}
	return m.reading(m.now().Sub(m.startTime)), nil
}

// SetAlarm records the simulated alarm level.
func (m *Mock) SetAlarm(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return ErrNotConnected
	}
	m.alarm = on
	return nil
}

// Alarm returns the last simulated alarm level.
func (m *Mock) Alarm() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.alarm
}

// IsConnected returns whether the device is currently connected.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// reading computes the simulated count elapsed into the run.
func (m *Mock) reading(elapsed time.Duration) uint16 {
	level := float64(m.cfg.Baseline)
	if m.puffActive(elapsed) {
		level = float64(m.cfg.Peak)
	}

	noise := (math.Sin(float64(elapsed.Nanoseconds())*0.001) +
		math.Cos(float64(elapsed.Nanoseconds())*0.0013)) *
		m.cfg.NoiseLevel * 0.5
	level += noise

	if level < 0 {
		level = 0
	} else if level > MaxRaw {
		level = MaxRaw
	}
	return uint16(level)
}

func (m *Mock) puffActive(elapsed time.Duration) bool {
	if m.cfg.PuffPeriod <= 0 || m.cfg.PuffDuration <= 0 {
		return false
	}
	return elapsed%m.cfg.PuffPeriod >= m.cfg.PuffPeriod-m.cfg.PuffDuration
}
