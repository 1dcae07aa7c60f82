package logging

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// Logger is the minimal logging surface services depend on. Implementations
// are injected at wiring time; every package falls back to Default.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Error(format string, args ...any)
}

// Default writes to stdout with a printf prefix. Used when no logger was
// injected, mostly in tests.
type Default struct {
	Name string
}

func (d Default) Debug(format string, args ...any) {
	fmt.Printf("[DBG] "+d.prefix()+newline(format), args...)
}

func (d Default) Info(format string, args ...any) {
	fmt.Printf("[INF] "+d.prefix()+newline(format), args...)
}

func (d Default) Error(format string, args ...any) {
	fmt.Printf("[ERR] "+d.prefix()+newline(format), args...)
}

func (d Default) prefix() string {
	if d.Name == "" {
		return ""
	}
	return d.Name + " "
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

// Zerolog adapts a zerolog.Logger to the Logger interface.
type Zerolog struct {
	log zerolog.Logger
}

// NewZerolog builds a console-friendly zerolog backed Logger named after the
// component it is handed to.
func NewZerolog(w io.Writer, name string) *Zerolog {
	log := zerolog.New(zerolog.ConsoleWriter{Out: w}).
		With().
		Timestamp().
		Str("component", name).
		Logger()
	return &Zerolog{log: log}
}

// Named returns a copy scoped to a sub component.
func (z *Zerolog) Named(name string) *Zerolog {
	return &Zerolog{log: z.log.With().Str("component", name).Logger()}
}

func (z *Zerolog) Debug(format string, args ...any) {
	z.log.Debug().Msgf(format, args...)
}

func (z *Zerolog) Info(format string, args ...any) {
	z.log.Info().Msgf(format, args...)
}

func (z *Zerolog) Error(format string, args ...any) {
	z.log.Error().Msgf(format, args...)
}
