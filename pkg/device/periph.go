package device

import (
	"fmt"
	"math"
	"sync"

	"github.com/itohio/gasmon/pkg/config"
	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/host/v3"
)

// adcPin is the part of an analog input the driver needs.
type adcPin interface {
	Read() (analog.Sample, error)
	Halt() error
}

// outPin is the part of a GPIO the driver needs.
type outPin interface {
	Out(l gpio.Level) error
}

// Periph reads the sensor through an ADS1115 on a Linux I2C bus and drives the
// alarm through a GPIO, using periph.io. ADS1115 readings are rescaled to the
// 12-bit range the rest of the system works with.
type Periph struct {
	cfg  config.PeriphConfig
	vref float64

	mu        sync.Mutex
	bus       i2c.BusCloser
	adc       adcPin
	alarm     outPin
	connected bool
}

// NewPeriph creates an I2C ADC device. vref is the full-scale voltage mapped to
// a reading of 4095.
func NewPeriph(cfg config.PeriphConfig, vref float64) *Periph {
	return &Periph{cfg: cfg, vref: vref}
}

// Connect initializes the host drivers, the ADC channel and the alarm pin.
func (p *Periph) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.connected {
		return fmt.Errorf("already connected")
	}

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize host drivers: %w", err)
	}

	bus, err := i2creg.Open(p.cfg.Bus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus %q: %w", p.cfg.Bus, err)
	}

	adc, err := ads1x15.NewADS1115(bus, &ads1x15.Opts{I2cAddress: p.cfg.Address})
	if err != nil {
		bus.Close()
		return fmt.Errorf("failed to open ADS1115 at 0x%02x: %w", p.cfg.Address, err)
	}

	channel, err := adsChannel(p.cfg.Channel)
	if err != nil {
		bus.Close()
		return err
	}

	maxV := physic.ElectricPotential(p.vref * float64(physic.Volt))
	pin, err := adc.PinForChannel(channel, maxV, 8*physic.Hertz, ads1x15.SaveEnergy)
	if err != nil {
		bus.Close()
		return fmt.Errorf("failed to configure ADC channel %d: %w", p.cfg.Channel, err)
	}

	alarm := gpioreg.ByName(p.cfg.AlarmPin)
	if alarm == nil {
		pin.Halt()
		bus.Close()
		return fmt.Errorf("unknown alarm pin %q", p.cfg.AlarmPin)
	}
	if err := alarm.Out(gpio.Low); err != nil {
		pin.Halt()
		bus.Close()
		return fmt.Errorf("failed to configure alarm pin %s: %w", p.cfg.AlarmPin, err)
	}

	p.bus = bus
	p.adc = pin
	p.alarm = alarm
	p.connected = true

	return nil
}

// Close halts the ADC channel and releases the bus.
func (p *Periph) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return nil
	}
	p.connected = false

	var firstErr error
	if err := p.adc.Halt(); err != nil {
		firstErr = fmt.Errorf("failed to halt ADC: %w", err)
	}
	if p.bus != nil {
		if err := p.bus.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close I2C bus: %w", err)
		}
	}
	return firstErr
}

// Read samples the ADC once and rescales it to 12 bits.
func (p *Periph) Read() (uint16, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return 0, ErrNotConnected
	}

	s, err := p.adc.Read()
	if err != nil {
		return 0, fmt.Errorf("failed to read ADC: %w", err)
	}
	return toRaw(s.V, p.vref), nil
}

// SetAlarm drives the alarm GPIO.
func (p *Periph) SetAlarm(on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return ErrNotConnected
	}
	if err := p.alarm.Out(gpio.Level(on)); err != nil {
		return fmt.Errorf("failed to set alarm pin: %w", err)
	}
	return nil
}

// IsConnected returns whether the device is currently connected.
func (p *Periph) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// toRaw maps a voltage in [0, vref] onto [0, 4095].
func toRaw(v physic.ElectricPotential, vref float64) uint16 {
	if vref <= 0 {
		return 0
	}
	raw := math.Round(float64(v) / float64(physic.Volt) / vref * MaxRaw)
	if raw < 0 {
		return 0
	}
	if raw > MaxRaw {
		return MaxRaw
	}
	return uint16(raw)
}

func adsChannel(n int) (ads1x15.Channel, error) {
	switch n {
	case 0:
		return ads1x15.Channel0, nil
	case 1:
		return ads1x15.Channel1, nil
	case 2:
		return ads1x15.Channel2, nil
	case 3:
		return ads1x15.Channel3, nil
	}
	return 0, fmt.Errorf("invalid ADS1115 channel %d (want 0-3)", n)
}
