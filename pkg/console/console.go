// Package console defines the logging surface shared by the host daemon and
// the firmware images. It has no third-party dependencies so it links under
// TinyGo.
package console

import (
	"fmt"
	"log"
)

// Logger is the logger the components need.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Std logs through the standard library logger.
type Std struct{}

var _ Logger = Std{}

func (Std) Debugf(format string, args ...any) { log.Printf("[DEBUG] "+format, args...) }
func (Std) Infof(format string, args ...any)  { log.Printf("[INFO] "+format, args...) }
func (Std) Warnf(format string, args ...any)  { log.Printf("[WARN] "+format, args...) }
func (Std) Errorf(format string, args ...any) { log.Printf("[ERROR] "+format, args...) }

// Nop discards everything.
type Nop struct{}

var _ Logger = Nop{}

func (Nop) Debugf(string, ...any) {}
func (Nop) Infof(string, ...any)  {}
func (Nop) Warnf(string, ...any)  {}
func (Nop) Errorf(string, ...any) {}

// OrStd returns l, or Std when l is nil.
func OrStd(l Logger) Logger {
	if l == nil {
		return Std{}
	}
	return l
}

// Print writes through the runtime println, the cheapest output on a
// microcontroller console.
type Print struct{}

var _ Logger = Print{}

func (Print) Debugf(format string, args ...any) { println("[DEBUG]", sprintf(format, args...)) }
func (Print) Infof(format string, args ...any)  { println("[INFO]", sprintf(format, args...)) }
func (Print) Warnf(format string, args ...any)  { println("[WARN]", sprintf(format, args...)) }
func (Print) Errorf(format string, args ...any) { println("[ERROR]", sprintf(format, args...)) }

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
