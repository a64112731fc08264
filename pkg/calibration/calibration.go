// Package calibration converts raw ADC counts into sensed voltage and a gas
// concentration estimate using a power-law curve fit.
package calibration

import (
	"math"

	"github.com/chewxy/math32"
)

const (
	// DefaultA is the curve coefficient (PPM at VRef).
	DefaultA = 116.6020682
	// DefaultB is the curve exponent.
	DefaultB = -2.769034857
	// DefaultVRef is the ADC reference voltage (V).
	DefaultVRef = 3.3
	// DefaultMax is the full-scale count of a 12-bit ADC.
	DefaultMax = 4095
)

// Curve describes the sensor's ADC scaling and PPM curve.
type Curve struct {
	A    float64 // PPM at VRef
	B    float64 // exponent of the power law
	VRef float64 // reference voltage (V)
	Max  uint16  // full-scale ADC count
}

// DefaultCurve returns the stock calibration.
func DefaultCurve() Curve {
	return Curve{
		A:    DefaultA,
		B:    DefaultB,
		VRef: DefaultVRef,
		Max:  DefaultMax,
	}
}

// Voltage converts a 12-bit raw count to volts using the default curve.
func Voltage(raw uint16) float64 {
	return DefaultCurve().Voltage(raw)
}

// PPM converts volts to parts-per-million using the default curve.
func PPM(voltage float64) float64 {
	return DefaultCurve().PPM(voltage)
}

// Voltage scales a raw count linearly into [0, VRef].
func (c Curve) Voltage(raw uint16) float64 {
	if c.Max == 0 {
		return 0
	}
	return (float64(raw) / float64(c.Max)) * c.VRef
}

// PPM returns A*(voltage/VRef)^B, or 0 for non-positive voltages where the
// power is undefined. There is no upper clamp: readings close to 0 V produce
// very large estimates.
func (c Curve) PPM(voltage float64) float64 {
	if voltage <= 0 || c.VRef == 0 {
		return 0
	}
	ratio := voltage / c.VRef
	return c.A * math.Pow(ratio, c.B)
}

// Convert returns both the voltage and the PPM estimate for a raw count.
func (c Curve) Convert(raw uint16) (voltage, ppm float64) {
	voltage = c.Voltage(raw)
	return voltage, c.PPM(voltage)
}

// Voltage32 is Voltage in single precision.
func (c Curve) Voltage32(raw uint16) float32 {
	if c.Max == 0 {
		return 0
	}
	return (float32(raw) / float32(c.Max)) * float32(c.VRef)
}

// PPM32 is PPM in single precision, for targets without a double FPU.
func (c Curve) PPM32(voltage float32) float32 {
	if voltage <= 0 || c.VRef == 0 {
		return 0
	}
	ratio := voltage / float32(c.VRef)
	return float32(c.A) * math32.Pow(ratio, float32(c.B))
}
