//go:build tinygo

//go:generate tinygo flash -target=xiao

// Command bridge streams averaged gas sensor readings over UART to the host
// daemon and drives the alarm pin on request.
package main

import (
	"machine"
	"time"
)

var (
	adcSensor machine.ADC
	uart      = machine.UART0

	// ADC averaging
	sensorSum   uint32
	sensorCount int

	// Timing
	lastADCRead time.Time

	// Serial buffer for reading lines
	serialBuffer [4]byte
	serialPos    int
)

func main() {
	PIN_ALARM.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_ALARM.Low()

	PIN_ADC.Configure(machine.PinConfig{Mode: machine.PinInput})
	adcSensor = machine.ADC{Pin: PIN_ADC}
	adcSensor.Configure(machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	})

	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	lastADCRead = time.Now()

	for {
		now := time.Now()

		processSerial()

		if now.Sub(lastADCRead) >= SAMPLE_INTERVAL_MS*time.Millisecond {
			// machine.ADC scales readings to 16 bits
			sensorSum += uint32(adcSensor.Get() >> 4)
			sensorCount++
			lastADCRead = now
		}

		if sensorCount >= NUM_SAMPLES {
			outputAveragedValue()
			sensorSum = 0
			sensorCount = 0
		}

		time.Sleep(100 * time.Microsecond)
	}
}

func outputAveragedValue() {
	avg := uint16(sensorSum / uint32(sensorCount))

	// Output format: "unix_micros,reading\n"
	// Example: "1234567890123,2048\n"
	print(time.Now().UnixNano() / 1000)
	print(",")
	print(avg)
	print("\n")
}

func processSerial() {
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		if data == '\n' || data == '\r' {
			if serialPos == 1 {
				setAlarm(serialBuffer[0] == '1')
			}
			serialPos = 0
			continue
		}

		if data == ' ' || data == '\t' {
			continue
		}

		// Only a single '0' or '1' per line is a valid command
		if (data == '0' || data == '1') && serialPos < len(serialBuffer) {
			serialBuffer[serialPos] = data
			serialPos++
		} else {
			serialPos = len(serialBuffer)
		}
	}
}

func setAlarm(on bool) {
	PIN_ALARM.Set(on)
}
