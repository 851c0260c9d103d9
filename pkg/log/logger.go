package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type LoggerType uint8

const (
	ConsoleLogger LoggerType = iota
	JSONLogger
)

var (
	Root    = zerolog.Nop()
	Beacon  = zerolog.Nop()
	Network = zerolog.Nop()
	Store   = zerolog.Nop()
	API     = zerolog.Nop()
)

// Options for Logger
type Options struct {
	// Enable Debug loglevel, default Info
	LogLevel zerolog.Level
	Type     LoggerType
	// Output defaults to stdout
	Output io.Writer
}

func ParseLogLevel(loglevel string) (zerolog.Level, error) {
	return zerolog.ParseLevel(loglevel)
}

// ParseLoggerType maps the configured name to a LoggerType.
func ParseLoggerType(name string) (LoggerType, error) {
	switch strings.ToLower(name) {
	case "", "console":
		return ConsoleLogger, nil
	case "json":
		return JSONLogger, nil
	default:
		return ConsoleLogger, fmt.Errorf("unknown logger type %q", name)
	}
}

func Init(opts Options) {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	switch opts.Type {
	case ConsoleLogger:
		Root = zerolog.New(newConsoleWriter(out)).Level(opts.LogLevel).
			With().Timestamp().Logger()
	default:
		Root = zerolog.New(out).Level(opts.LogLevel).
			With().Timestamp().Logger()
	}
	Beacon = Root.With().Str("component", "beacon").Logger()
	Network = Root.With().Str("component", "network").Logger()
	Store = Root.With().Str("component", "store").Logger()
	API = Root.With().Str("component", "api").Logger()
}

func newConsoleWriter(out io.Writer) zerolog.ConsoleWriter {
	cw := zerolog.ConsoleWriter{Out: out, NoColor: true, TimeFormat: time.RFC3339}

	cw.FormatLevel = func(i interface{}) string {
		return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
	}

	cw.FormatMessage = func(i interface{}) string {
		return fmt.Sprintf("message: \"%s\" |", i)
	}

	cw.FormatFieldName = func(i interface{}) string {
		return fmt.Sprintf("\"%s\": ", i)
	}

	cw.FormatFieldValue = func(i interface{}) string {
		return fmt.Sprintf("\"%s\" |", i)
	}

	cw.FormatErrFieldValue = func(i interface{}) string {
		return fmt.Sprintf(" %s |", i)
	}
	return cw
}
