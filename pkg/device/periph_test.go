package device

import (
	"errors"
	"testing"

	"github.com/itohio/gasmon/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

type fakeADC struct {
	v      physic.ElectricPotential
	err    error
	halted bool
}

func (f *fakeADC) Read() (analog.Sample, error) { return analog.Sample{V: f.v}, f.err }
func (f *fakeADC) Halt() error                  { f.halted = true; return nil }

type fakeOut struct {
	levels []gpio.Level
}

func (f *fakeOut) Out(l gpio.Level) error {
	f.levels = append(f.levels, l)
	return nil
}

func TestToRaw(t *testing.T) {
	tests := []struct {
		name string
		v    physic.ElectricPotential
		want uint16
	}{
		{"zero", 0, 0},
		{"negative", -100 * physic.MilliVolt, 0},
		{"full scale", 3300 * physic.MilliVolt, 4095},
		{"over range", 5 * physic.Volt, 4095},
		{"one volt", physic.Volt, 1241},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, toRaw(tt.v, 3.3))
		})
	}

	assert.Equal(t, uint16(0), toRaw(physic.Volt, 0))
}

func TestAdsChannel(t *testing.T) {
	for n := 0; n <= 3; n++ {
		_, err := adsChannel(n)
		assert.NoError(t, err)
	}
	_, err := adsChannel(4)
	assert.Error(t, err)
	_, err = adsChannel(-1)
	assert.Error(t, err)
}

func newFakePeriph(adc *fakeADC, out *fakeOut) *Periph {
	p := NewPeriph(config.PeriphConfig{Bus: "1", Address: 0x48, AlarmPin: "GPIO13"}, 3.3)
	p.adc = adc
	p.alarm = out
	p.connected = true
	return p
}

func TestPeriph_ReadAndAlarm(t *testing.T) {
	adc := &fakeADC{v: 3300 * physic.MilliVolt}
	out := &fakeOut{}
	p := newFakePeriph(adc, out)

	raw, err := p.Read()
	require.NoError(t, err)
	assert.Equal(t, uint16(4095), raw)

	require.NoError(t, p.SetAlarm(true))
	require.NoError(t, p.SetAlarm(false))
	assert.Equal(t, []gpio.Level{gpio.High, gpio.Low}, out.levels)

	require.NoError(t, p.Close())
	assert.True(t, adc.halted)
	assert.False(t, p.IsConnected())

	_, err = p.Read()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestPeriph_ReadError(t *testing.T) {
	p := newFakePeriph(&fakeADC{err: errors.New("i2c nack")}, &fakeOut{})
	_, err := p.Read()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "i2c nack")
}
