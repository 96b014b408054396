package intake

import (
	"fmt"
	"strings"
)

// Logger is the minimal logging surface handlers depend on. Wire a real
// implementation in the composition root; the default prints to stdout.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] INTAKE "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] INTAKE "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] INTAKE "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] INTAKE "+newline(format), args...)
}

// NewLogger returns a named stdout logger for composition roots that have
// nothing better wired.
func NewLogger(name string) Logger {
	return namedLogger{prefix: strings.ToUpper(name)}
}

type namedLogger struct {
	prefix string
}

func (l namedLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] "+l.prefix+" "+newline(format), args...)
}

func (l namedLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] "+l.prefix+" "+newline(format), args...)
}

func (l namedLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] "+l.prefix+" "+newline(format), args...)
}

func (l namedLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] "+l.prefix+" "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
