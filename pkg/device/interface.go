// Package device provides the sensor front-ends the host daemon can sample:
// a UART bridge MCU, an I2C ADC on a Linux board, and a simulation.
package device

// Device is an analog gas sensor with a digital alarm output.
type Device interface {
	Connect() error
	Close() error
	// Read returns one 12-bit raw sample (0-4095).
	Read() (uint16, error)
	// SetAlarm drives the alarm output high (on) or low.
	SetAlarm(on bool) error
	IsConnected() bool
}

// MaxRaw is the full-scale 12-bit reading.
const MaxRaw = 4095

var (
	_ Device = (*Serial)(nil)
	_ Device = (*Mock)(nil)
	_ Device = (*Periph)(nil)
)
