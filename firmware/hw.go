//go:build tinygo

package main

import "machine"

// adcSensor reads the gas sensor through the on-chip ADC.
type adcSensor struct {
	adc machine.ADC
}

func newADCSensor(pin machine.Pin) *adcSensor {
	pin.Configure(machine.PinConfig{Mode: machine.PinInput})
	adc := machine.ADC{Pin: pin}
	adc.Configure(machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	})
	return &adcSensor{adc: adc}
}

// Read returns a 12-bit count. machine.ADC scales every reading to 16 bits.
func (s *adcSensor) Read() (uint16, error) {
	return s.adc.Get() >> 4, nil
}

// pinAlarm drives the buzzer or LED.
type pinAlarm struct {
	pin machine.Pin
}

func newPinAlarm(pin machine.Pin) *pinAlarm {
	pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pin.Low()
	return &pinAlarm{pin: pin}
}

func (a *pinAlarm) SetAlarm(on bool) error {
	a.pin.Set(on)
	return nil
}
