package device

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/itohio/gasmon/pkg/console"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate matches the bridge firmware.
	DefaultBaudRate = 115200
	// DefaultStaleAfter is how old the latest bridge sample may be before
	// Read reports it as stale.
	DefaultStaleAfter = 5 * time.Second
)

var (
	// ErrNotConnected is returned when the device is used before Connect.
	ErrNotConnected = errors.New("device: not connected")
	// ErrNoSample is returned by Read before the bridge has sent anything.
	ErrNoSample = errors.New("device: no sample received yet")
	// ErrStale is returned by Read when the bridge stopped sending.
	ErrStale = errors.New("device: sample is stale")
)

// BridgeSample is one line received from the bridge firmware.
type BridgeSample struct {
	Timestamp time.Time // MCU clock
	Raw       uint16    // 12-bit ADC reading (0-4095)
}

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Serial talks to the UART bridge firmware. The bridge streams
// "unix_micros,raw\n" lines and accepts "1\n"/"0\n" to drive the alarm pin.
type Serial struct {
	port       string
	baudRate   int
	staleAfter time.Duration
	log        console.Logger

	conn       serial.Port
	mu         sync.RWMutex
	latest     BridgeSample
	receivedAt time.Time
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	connected  bool
	now        func() time.Time
}

// NewSerial creates a bridge device on port. Zero values select defaults.
func NewSerial(port string, baudRate int, staleAfter time.Duration, log console.Logger) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if staleAfter == 0 {
		staleAfter = DefaultStaleAfter
	}

	return &Serial{
		port:       port,
		baudRate:   baudRate,
		staleAfter: staleAfter,
		log:        console.OrStd(log),
		now:        time.Now,
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
		result = append(result, Port{
			Name:        name,
			Description: name,
		})
	}

	return result, nil
}

// Connect opens the serial port and starts reading bridge samples.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return fmt.Errorf("already connected")
	}

	mode := &serial.Mode{
		BaudRate: d.baudRate,
	}

	port, err := serial.Open(d.port, mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	d.attach(port)
	return nil
}

// attach starts the reader on an open port. Must be called with d.mu held.
func (d *Serial) attach(port serial.Port) {
	d.conn = port
	d.connected = true
	d.latest = BridgeSample{}
	d.receivedAt = time.Time{}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.done = make(chan struct{})

	go d.readSamples(d.ctx, port, d.done)
}

// Close closes the port and waits for the reader to stop.
func (d *Serial) Close() error {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return nil
	}

	d.cancel()
	var closeErr error
	if d.conn != nil {
		closeErr = d.conn.Close()
		d.conn = nil
	}
	d.connected = false
	done := d.done
	d.mu.Unlock()

	<-done

	if closeErr != nil {
		return fmt.Errorf("failed to close serial port: %w", closeErr)
	}
	return nil
}

// Read returns the most recent sample streamed by the bridge.
func (d *Serial) Read() (uint16, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return 0, ErrNotConnected
	}
	if d.receivedAt.IsZero() {
		return 0, ErrNoSample
	}
	if age := d.now().Sub(d.receivedAt); age > d.staleAfter {
		return 0, fmt.Errorf("%w: last sample %s ago", ErrStale, age.Round(time.Millisecond))
	}
	return d.latest.Raw, nil
}

// SetAlarm sends the alarm command to the bridge.
func (d *Serial) SetAlarm(on bool) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return ErrNotConnected
	}

	cmd := "0\n"
	if on {
		cmd = "1\n"
	}
	if _, err := d.conn.Write([]byte(cmd)); err != nil {
		return fmt.Errorf("failed to send alarm command: %w", err)
	}
	return nil
}

// IsConnected returns whether the device is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// readSamples parses bridge lines until the port closes or ctx ends.
func (d *Serial) readSamples(ctx context.Context, r io.Reader, done chan struct{}) {
	defer close(done)
	defer func() {
		if p := recover(); p != nil {
			d.log.Errorf("panic in serial reader: %v", p)
		}
	}()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		sample, err := parseLine(line)
		if err != nil {
			d.log.Warnf("failed to parse bridge line %q: %v", line, err)
			continue
		}

		d.mu.Lock()
		prev := d.latest.Timestamp
		d.latest = sample
		d.receivedAt = d.now()
		d.mu.Unlock()

		if sample.Timestamp.Before(prev) {
			d.log.Warnf("bridge clock went back from %d to %d us, bridge restarted", prev.UnixMicro(), sample.Timestamp.UnixMicro())
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		d.log.Errorf("error reading from serial port: %v", err)
	}
}

// parseLine parses a bridge line.
// Format: unix_micros,raw
// Example: 1234567890123,2048
func parseLine(line string) (BridgeSample, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 2 {
		return BridgeSample{}, fmt.Errorf("invalid line format: expected 2 comma-separated values, got %d", len(parts))
	}

	timestampMicros, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return BridgeSample{}, fmt.Errorf("invalid timestamp: %w", err)
	}

	raw, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return BridgeSample{}, fmt.Errorf("invalid reading: %w", err)
	}
	if raw > MaxRaw {
		return BridgeSample{}, fmt.Errorf("reading out of range: %d (max %d)", raw, MaxRaw)
	}

	return BridgeSample{
		Timestamp: time.Unix(0, timestampMicros*1000),
		Raw:       uint16(raw),
	}, nil
}
