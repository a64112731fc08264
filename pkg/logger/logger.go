// Package logger is the host daemon's levelled, coloured logger.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/itohio/gasmon/pkg/console"
)

// Level is a logging threshold.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	OffLevel
)

// Logger writes levelled lines to an io.Writer.
type Logger struct {
	mu     sync.Mutex
	logger *log.Logger
	level  Level

	debug *color.Color
	info  *color.Color
	warn  *color.Color
	err   *color.Color
}

var _ console.Logger = (*Logger)(nil)

// New creates a logger writing to w. Colour is disabled unless w is a terminal
// file (stdout or stderr).
func New(w io.Writer, level Level) *Logger {
	if w == nil {
		w = os.Stdout
	}
	l := &Logger{
		logger: log.New(w, "", log.LstdFlags),
		level:  level,
		debug:  color.New(color.FgCyan),
		info:   color.New(color.FgGreen),
		warn:   color.New(color.FgYellow),
		err:    color.New(color.FgRed),
	}
	if f, ok := w.(*os.File); !ok || (f != os.Stdout && f != os.Stderr) {
		for _, c := range []*color.Color{l.debug, l.info, l.warn, l.err} {
			c.DisableColor()
		}
	}
	return l
}

// ParseLevel maps a config string to a Level. Unknown strings yield InfoLevel
// and an error.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "off", "none":
		return OffLevel, nil
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", s)
}

// SetLevel changes the threshold.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) Debugf(format string, v ...any) { l.print(DebugLevel, l.debug, "[DEBUG] ", format, v) }
func (l *Logger) Infof(format string, v ...any)  { l.print(InfoLevel, l.info, "[INFO] ", format, v) }
func (l *Logger) Warnf(format string, v ...any)  { l.print(WarnLevel, l.warn, "[WARN] ", format, v) }
func (l *Logger) Errorf(format string, v ...any) { l.print(ErrorLevel, l.err, "[ERROR] ", format, v) }

// Fatalf logs at error level and exits the process.
func (l *Logger) Fatalf(format string, v ...any) {
	l.print(ErrorLevel, l.err, "[FATAL] ", format, v)
	os.Exit(1)
}

func (l *Logger) print(level Level, c *color.Color, prefix, format string, v []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}
	l.logger.Print(c.Sprintf(prefix+format, v...))
}
