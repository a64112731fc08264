// Package history keeps a time window of readings for the status surface.
package history

import (
	"sync"
	"time"

	"github.com/itohio/gasmon/pkg/monitor"
)

// DefaultWindow is how far back readings are kept.
const DefaultWindow = 10 * time.Minute

// Stats summarizes the readings in the window.
type Stats struct {
	Count   int     `json:"count"`
	MinRaw  uint16  `json:"min_raw"`
	MaxRaw  uint16  `json:"max_raw"`
	MeanPPM float64 `json:"mean_ppm"`
	Alarms  int     `json:"alarms"`
}

// Buffer is a FIFO of readings trimmed by timestamp, not by count.
// Readings are ordered oldest first.
type Buffer struct {
	window time.Duration

	mu       sync.RWMutex
	readings []monitor.Reading

	callbacks []func(r monitor.Reading)
	cbMu      sync.RWMutex
}

// New creates a buffer keeping window worth of readings.
func New(window time.Duration) *Buffer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Buffer{
		window:   window,
		readings: make([]monitor.Reading, 0),
	}
}

// Add appends a reading, drops readings that fell out of the window and
// notifies callbacks. It is meant to be registered with Monitor.OnReading.
func (b *Buffer) Add(r monitor.Reading) {
	b.mu.Lock()
	b.readings = append(b.readings, r)

	cutoff := r.Timestamp.Add(-b.window)
	cutoffIndex := 0
	for i, old := range b.readings {
		if old.Timestamp.After(cutoff) {
			cutoffIndex = i
			break
		}
	}
	if cutoffIndex > 0 {
		b.readings = append(b.readings[:0], b.readings[cutoffIndex:]...)
	}
	b.mu.Unlock()

	b.notifyCallbacks(r)
}

// Readings returns a copy of the buffered readings.
func (b *Buffer) Readings() []monitor.Reading {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]monitor.Reading, len(b.readings))
	copy(result, b.readings)
	return result
}

// Latest returns the newest reading.
func (b *Buffer) Latest() (monitor.Reading, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.readings) == 0 {
		return monitor.Reading{}, false
	}
	return b.readings[len(b.readings)-1], true
}

// Stats summarizes the buffered readings.
func (b *Buffer) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var s Stats
	if len(b.readings) == 0 {
		return s
	}

	s.Count = len(b.readings)
	s.MinRaw = b.readings[0].Raw
	s.MaxRaw = b.readings[0].Raw
	var sum float64
	for _, r := range b.readings {
		s.MinRaw = min(s.MinRaw, r.Raw)
		s.MaxRaw = max(s.MaxRaw, r.Raw)
		sum += r.PPM
		if r.Alarm {
			s.Alarms++
		}
	}
	s.MeanPPM = sum / float64(s.Count)
	return s
}

// OnUpdate registers a callback invoked with every added reading, after it
// is stored. The callback should return quickly.
func (b *Buffer) OnUpdate(callback func(r monitor.Reading)) {
	b.cbMu.Lock()
	defer b.cbMu.Unlock()
	b.callbacks = append(b.callbacks, callback)
}

func (b *Buffer) notifyCallbacks(r monitor.Reading) {
	b.cbMu.RLock()
	callbacks := make([]func(monitor.Reading), len(b.callbacks))
	copy(callbacks, b.callbacks)
	b.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(r)
		}
	}
}
