package logger

import (
	"io"
	"log/syslog"
	"os"
	"syscall"
	"time"

	"codeberg.org/mutker/smfd/internal/errors"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

const syslogTag = "smfd"

var (
	log    = zerolog.New(os.Stderr).With().Timestamp().Logger()
	closer io.Closer
)

// LogEvent is a pending log line.
type LogEvent struct {
	*zerolog.Event
}

// Options controls where log output goes and how verbose it is.
type Options struct {
	Debug     bool
	Syslog    bool
	IsService bool
}

// Init initializes the logger based on the given configuration
func Init(opts Options) error {
	if opts.Syslog {
		w, err := syslog.New(syslog.LOG_INFO|syslog.LOG_DAEMON, syslogTag)
		if err != nil {
			return err
		}
		closer = w
		// syslog stamps its own time
		log = zerolog.New(zerolog.SyslogLevelWriter(w))
	} else {
		output := zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
			NoColor:    !StderrIsTerminal(),
		}

		if opts.IsService {
			output.TimeFormat = ""
			output.FormatTimestamp = func(_ interface{}) string {
				return ""
			}
		}

		log = zerolog.New(output).With().Timestamp().Logger()
	}

	SetDebug(opts.Debug)

	return nil
}

// Close releases the syslog connection, if any.
func Close() error {
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil

	return err
}

// SetDebug switches between debug and info verbosity.
func SetDebug(debug bool) {
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// IsDebug reports whether debug messages are currently emitted.
func IsDebug() bool {
	return zerolog.GlobalLevel() <= zerolog.DebugLevel
}

// StderrIsTerminal reports whether standard error is attached to a terminal.
func StderrIsTerminal() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// IsService checks if the application is running as a service
func IsService() bool {
	if _, err := os.Stdin.Stat(); err != nil {
		return true
	}
	if os.Getenv("SERVICE_NAME") != "" || os.Getenv("INVOCATION_ID") != "" {
		return true
	}
	if os.Getppid() == 1 {
		return true
	}

	return syscall.Getpgrp() == syscall.Getpid()
}

// Debug logs a debug message
func Debug() *LogEvent {
	return &LogEvent{log.Debug()}
}

// Info logs an info message
func Info() *LogEvent {
	return &LogEvent{log.Info()}
}

// Warn logs a warning message
func Warn() *LogEvent {
	return &LogEvent{log.Warn()}
}

// Error logs an error message
func Error() *LogEvent {
	return &LogEvent{log.Error()}
}

// ErrorWithCode logs an error message with a specific error code
func ErrorWithCode(err errors.Error) *LogEvent {
	event := log.Error().
		Str("error_code", string(err.Code())).
		Str("error_message", err.Error()).
		AnErr("error", err.Unwrap())
	if data := err.Data(); data != nil {
		event = event.Interface("error_data", data)
	}

	return &LogEvent{event}
}

type std struct{}

// Get returns the package logger as a Logger value for components that
// take one by injection.
func Get() Logger {
	return std{}
}

func (std) Debug() *LogEvent                         { return Debug() }
func (std) Info() *LogEvent                          { return Info() }
func (std) Warn() *LogEvent                          { return Warn() }
func (std) Error() *LogEvent                         { return Error() }
func (std) ErrorWithCode(err errors.Error) *LogEvent { return ErrorWithCode(err) }
