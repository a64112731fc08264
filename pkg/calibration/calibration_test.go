package calibration

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVoltage(t *testing.T) {
	tests := []struct {
		name string
		raw  uint16
		want float64
	}{
		{"zero", 0, 0},
		{"mid scale", 2048, 2048.0 / 4095.0 * 3.3},
		{"full scale", 4095, 3.3},
		{"threshold", 25, 25.0 / 4095.0 * 3.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Voltage(tt.raw), 0.0001)
		})
	}
}

func TestPPM_NonPositive(t *testing.T) {
	for _, v := range []float64{0, -0.0001, -1, -3.3, math.Inf(-1)} {
		assert.Equal(t, 0.0, PPM(v), "voltage %v", v)
	}
}

func TestPPM_AtReference(t *testing.T) {
	assert.InDelta(t, 116.6020682, PPM(3.3), 1e-9)
}

func TestPPM_PowerLaw(t *testing.T) {
	for _, v := range []float64{0.01, 0.5, 1.0, 1.6498, 2.5, 3.3, 5.0} {
		want := DefaultA * math.Pow(v/DefaultVRef, DefaultB)
		assert.Equal(t, want, PPM(v), "voltage %v", v)
	}
}

func TestPPM_DecreasesWithVoltage(t *testing.T) {
	// negative exponent: lower voltage means higher estimate, unbounded near 0
	assert.Greater(t, PPM(0.1), PPM(1.0))
	assert.Greater(t, PPM(1e-6), 1e6)
}

func TestCurve_Convert(t *testing.T) {
	c := DefaultCurve()
	v, ppm := c.Convert(4095)
	assert.InDelta(t, 3.3, v, 1e-12)
	assert.InDelta(t, DefaultA, ppm, 1e-9)

	v, ppm = c.Convert(0)
	assert.Equal(t, 0.0, v)
	assert.Equal(t, 0.0, ppm)
}

func TestCurve_Custom(t *testing.T) {
	c := Curve{A: 100, B: -2, VRef: 5.0, Max: 1023}
	assert.InDelta(t, 5.0, c.Voltage(1023), 1e-12)
	assert.InDelta(t, 400.0, c.PPM(2.5), 1e-9)
}

func TestCurve_ZeroMax(t *testing.T) {
	c := Curve{A: 1, B: 1, VRef: 3.3}
	assert.Equal(t, 0.0, c.Voltage(100))
	assert.Equal(t, float32(0), c.Voltage32(100))
}

func TestCurve_SinglePrecision(t *testing.T) {
	c := DefaultCurve()
	assert.InDelta(t, 2048.0/4095.0*3.3, float64(c.Voltage32(2048)), 0.0001)
	assert.InDelta(t, DefaultA, float64(c.PPM32(3.3)), 0.001)
	assert.Equal(t, float32(0), c.PPM32(0))
	assert.Equal(t, float32(0), c.PPM32(-1))

	for _, v := range []float32{0.2, 1.0, 2.0} {
		assert.InEpsilon(t, c.PPM(float64(v)), float64(c.PPM32(v)), 1e-4)
	}
}
