//go:build tinygo

package main

import "machine"

const (
	// Sampling configuration
	SAMPLE_INTERVAL_MS = 10 // ADC read interval in milliseconds
	NUM_SAMPLES        = 20 // Number of samples to average per output line

	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // ADC resolution in bits (12-bit = 0-4095)

	// Sensor and alarm pins
	PIN_ADC   = machine.A1
	PIN_ALARM = machine.D7

	// Serial configuration
	// Format "unix_micros,reading\n" is ~22 bytes max per line at 5 lines/sec,
	// far below what 115200 baud carries.
	UART_BAUD_RATE = 115200
)
