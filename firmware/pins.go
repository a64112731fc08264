//go:build tinygo

package main

import (
	"machine"
	"time"
)

const (
	// Sampling configuration
	SAMPLE_INTERVAL = 5 * time.Second // Pause between loop iterations
	ALARM_THRESHOLD = 25              // Alarm when the raw 12-bit reading exceeds this

	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Full-scale input in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // ADC resolution in bits (12-bit = 0-4095)

	// Sensor and alarm pins
	PIN_SENSOR = machine.ADC0
	PIN_ALARM  = machine.GP15

	// Persistent storage: erase blocks reserved at the start of machine.Flash
	STORAGE_BLOCKS = 4
)
