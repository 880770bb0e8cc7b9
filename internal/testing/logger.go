package testing

import (
	"fmt"
	"io"
	"os"
	"strings"

	"ccptests/pkg/logging"
)

// stdoutLogger implements TestLogger for CLI mode, outputting to stdout/stderr
type stdoutLogger struct {
	out     io.Writer
	errOut  io.Writer
	verbose bool
	debug   bool
}

// NewStdoutLogger creates a logger that outputs to stdout/stderr
func NewStdoutLogger(verbose, debug bool) TestLogger {
	return NewWriterLogger(os.Stdout, os.Stderr, verbose, debug)
}

// NewWriterLogger creates a logger that writes to the given writers.
func NewWriterLogger(out, errOut io.Writer, verbose, debug bool) TestLogger {
	return &stdoutLogger{
		out:     out,
		errOut:  errOut,
		verbose: verbose,
		debug:   debug,
	}
}

func (l *stdoutLogger) Debug(format string, args ...any) {
	if l.debug {
		fmt.Fprintf(l.out, format, args...)
	}
}

func (l *stdoutLogger) Info(format string, args ...any) {
	if l.verbose || l.debug {
		fmt.Fprintf(l.out, format, args...)
	}
}

func (l *stdoutLogger) Error(format string, args ...any) {
	fmt.Fprintf(l.errOut, format, args...)
}

func (l *stdoutLogger) IsDebugEnabled() bool {
	return l.debug
}

func (l *stdoutLogger) IsVerboseEnabled() bool {
	return l.verbose
}

// structuredLogger sends test output to the process logger, so the run log file
// carries the same messages as the console.
type structuredLogger struct {
	verbose bool
	debug   bool
}

// NewStructuredLogger creates a logger backed by pkg/logging.
func NewStructuredLogger(verbose, debug bool) TestLogger {
	return &structuredLogger{verbose: verbose, debug: debug}
}

func (l *structuredLogger) Debug(format string, args ...any) {
	if l.debug {
		logging.Debug("TestFramework", "%s", clean(format, args))
	}
}

func (l *structuredLogger) Info(format string, args ...any) {
	if l.verbose || l.debug {
		logging.Info("TestFramework", "%s", clean(format, args))
	}
}

func (l *structuredLogger) Error(format string, args ...any) {
	logging.Error("TestFramework", nil, "%s", clean(format, args))
}

func (l *structuredLogger) IsDebugEnabled() bool {
	return l.debug
}

func (l *structuredLogger) IsVerboseEnabled() bool {
	return l.verbose
}

func clean(format string, args []any) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}

// silentLogger implements TestLogger and discards everything
type silentLogger struct{}

// NewSilentLogger creates a logger that suppresses all output
func NewSilentLogger() TestLogger {
	return silentLogger{}
}

func (silentLogger) Debug(string, ...any) {}
func (silentLogger) Info(string, ...any)  {}
func (silentLogger) Error(string, ...any) {}
func (silentLogger) IsDebugEnabled() bool { return false }
func (silentLogger) IsVerboseEnabled() bool {
	return false
}
