// Package monitor runs the sampling loop: read the sensor, upload the raw
// count, convert it for display and drive the alarm.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/itohio/gasmon/pkg/calibration"
	"github.com/itohio/gasmon/pkg/console"
	"github.com/itohio/gasmon/pkg/telemetry"
)

const (
	// DefaultThreshold is the raw count above which the alarm turns on.
	DefaultThreshold = 25
	// DefaultInterval is the pause between iterations.
	DefaultInterval = 5 * time.Second
)

// Sensor yields one 12-bit raw sample per call.
type Sensor interface {
	Read() (uint16, error)
}

// Alarm drives the alarm output.
type Alarm interface {
	SetAlarm(on bool) error
}

// Reading is the outcome of one loop iteration.
type Reading struct {
	Timestamp time.Time `json:"timestamp"`
	Raw       uint16    `json:"raw"`
	Voltage   float64   `json:"voltage"`
	PPM       float64   `json:"ppm"`
	Alarm     bool      `json:"alarm"`
}

// Monitor owns the sampling loop.
type Monitor struct {
	sensor   Sensor
	alarm    Alarm
	uploader telemetry.Uploader

	curve     calibration.Curve
	single    bool
	threshold uint16
	interval  time.Duration
	log       console.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error

	mu        sync.RWMutex
	observers []func(Reading)
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithThreshold sets the raw alarm threshold.
func WithThreshold(t uint16) Option {
	return func(m *Monitor) { m.threshold = t }
}

// WithInterval sets the pause between iterations.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithCurve sets the calibration curve.
func WithCurve(c calibration.Curve) Option {
	return func(m *Monitor) { m.curve = c }
}

// WithSinglePrecision converts with float32 math, for targets without a
// double-precision FPU.
func WithSinglePrecision() Option {
	return func(m *Monitor) { m.single = true }
}

// WithLogger sets the logger.
func WithLogger(l console.Logger) Option {
	return func(m *Monitor) { m.log = console.OrStd(l) }
}

// New creates a monitor reading sensor, driving alarm and uploading every
// raw sample through uploader.
func New(sensor Sensor, alarm Alarm, uploader telemetry.Uploader, opts ...Option) *Monitor {
	m := &Monitor{
		sensor:    sensor,
		alarm:     alarm,
		uploader:  uploader,
		curve:     calibration.DefaultCurve(),
		threshold: DefaultThreshold,
		interval:  DefaultInterval,
		log:       console.Std{},
		now:       time.Now,
		sleep:     sleep,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnReading registers a callback invoked after every completed iteration.
// Callbacks run on the loop goroutine and should return quickly.
func (m *Monitor) OnReading(cb func(Reading)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, cb)
}

// Step runs one iteration without sleeping. It returns false when the sensor
// read failed, in which case nothing was uploaded and the alarm is unchanged.
func (m *Monitor) Step(ctx context.Context) (Reading, bool) {
	raw, err := m.sensor.Read()
	if err != nil {
		m.log.Errorf("failed to read sensor: %v", err)
		return Reading{}, false
	}
	m.log.Infof("sensor value: %d", raw)

	m.uploader.Upload(ctx, raw)

	v, ppm := m.convert(raw)
	m.log.Infof("voltage: %.2f V (%.2f ppm)", v, ppm)

	r := Reading{
		Timestamp: m.now(),
		Raw:       raw,
		Voltage:   v,
		PPM:       ppm,
		Alarm:     raw > m.threshold,
	}

	if err := m.alarm.SetAlarm(r.Alarm); err != nil {
		m.log.Errorf("failed to set alarm: %v", err)
	}
	if r.Alarm {
		m.log.Warnf("critical level reached!")
	}

	m.notify(r)
	return r, true
}

// Run loops until ctx is done. Each iteration reads, uploads the raw value,
// drives the alarm and then sleeps the configured interval. An iteration whose
// sensor read fails skips both the upload and the alarm update.
func (m *Monitor) Run(ctx context.Context) error {
	for {
		m.Step(ctx)
		if err := m.sleep(ctx, m.interval); err != nil {
			return err
		}
	}
}

func (m *Monitor) convert(raw uint16) (voltage, ppm float64) {
	if m.single {
		v := m.curve.Voltage32(raw)
		return float64(v), float64(m.curve.PPM32(v))
	}
	return m.curve.Convert(raw)
}

func (m *Monitor) notify(r Reading) {
	m.mu.RLock()
	observers := make([]func(Reading), len(m.observers))
	copy(observers, m.observers)
	m.mu.RUnlock()

	for _, cb := range observers {
		if cb != nil {
			cb(r)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
