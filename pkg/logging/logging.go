package logging

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	ctrl "sigs.k8s.io/controller-runtime"
)

// LogLevel defines the severity of the log entry.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String makes LogLevel satisfy the fmt.Stringer interface.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo // Default to INFO for unknown
	}
}

// ParseLevel converts a level name (debug, info, warn, warning, error) to a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Format selects the slog handler used for output.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Options configures Init.
type Options struct {
	Level  LogLevel
	Format Format
	// Output receives console logs. Nil means os.Stderr.
	Output io.Writer
	// File, when set, also receives every log entry. The parent directory is created.
	File string
}

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
	logFile       *os.File
)

// Init configures the process logger. It returns a function that closes the log file,
// if any.
func Init(opts Options) (func() error, error) {
	output := opts.Output
	if output == nil {
		output = os.Stderr
	}

	var file *os.File
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", opts.File, err)
		}
		file = f
		output = io.MultiWriter(output, f)
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level.SlogLevel()}
	var handler slog.Handler
	if opts.Format == FormatJSON {
		handler = slog.NewJSONHandler(output, handlerOpts)
	} else {
		handler = slog.NewTextHandler(output, handlerOpts)
	}

	mu.Lock()
	previous := logFile
	defaultLogger = slog.New(handler)
	logFile = file
	mu.Unlock()

	if previous != nil {
		_ = previous.Close()
	}

	slog.SetDefault(defaultLogger)
	initControllerRuntimeLogger(handler)

	return func() error {
		mu.Lock()
		defer mu.Unlock()
		if logFile == nil {
			return nil
		}
		err := logFile.Close()
		logFile = nil
		return err
	}, nil
}

// InitForCLI initializes text logging to output at the given level.
func InitForCLI(filterLevel LogLevel, output io.Writer) {
	// Init cannot fail without a log file.
	_, _ = Init(Options{Level: filterLevel, Output: output})
}

var (
	controllerRuntimeOnce    sync.Once
	controllerRuntimeHandler atomic.Pointer[slog.Handler]
)

// initControllerRuntimeLogger routes controller-runtime and client-go logging through
// the same handler. controller-runtime accepts a logger only once per process, so it
// gets a forwarding handler and later calls swap the handler behind it.
func initControllerRuntimeLogger(handler slog.Handler) {
	if handler == nil {
		return
	}
	controllerRuntimeHandler.Store(&handler)
	controllerRuntimeOnce.Do(func() {
		ctrl.SetLogger(logr.FromSlogHandler(&forwardingHandler{}))
	})
}

// forwardingHandler sends records to the handler most recently passed to Init,
// replaying the attributes and groups added on the way.
type forwardingHandler struct {
	ops []func(slog.Handler) slog.Handler
}

func (f *forwardingHandler) target() slog.Handler {
	current := controllerRuntimeHandler.Load()
	if current == nil {
		return nil
	}
	h := *current
	for _, op := range f.ops {
		h = op(h)
	}
	return h
}

func (f *forwardingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	current := controllerRuntimeHandler.Load()
	return current != nil && (*current).Enabled(ctx, level)
}

func (f *forwardingHandler) Handle(ctx context.Context, r slog.Record) error {
	h := f.target()
	if h == nil {
		return nil
	}
	return h.Handle(ctx, r)
}

func (f *forwardingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.with(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f *forwardingHandler) WithGroup(name string) slog.Handler {
	return f.with(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f *forwardingHandler) with(op func(slog.Handler) slog.Handler) slog.Handler {
	ops := make([]func(slog.Handler) slog.Handler, len(f.ops), len(f.ops)+1)
	copy(ops, f.ops)
	return &forwardingHandler{ops: append(ops, op)}
}

func logInternal(level LogLevel, subsystem string, err error, messageFmt string, args ...interface{}) {
	mu.RLock()
	logger := defaultLogger
	mu.RUnlock()

	if logger == nil || !logger.Enabled(context.Background(), level.SlogLevel()) {
		return
	}

	msg := messageFmt
	if len(args) > 0 {
		msg = fmt.Sprintf(messageFmt, args...)
	}

	attrs := []slog.Attr{slog.String("subsystem", subsystem)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	logger.LogAttrs(context.Background(), level.SlogLevel(), msg, attrs...)
}

// Debug logs a debug message.
func Debug(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelDebug, subsystem, nil, messageFmt, args...)
}

// Info logs an informational message.
func Info(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelInfo, subsystem, nil, messageFmt, args...)
}

// Warn logs a warning message.
func Warn(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelWarn, subsystem, nil, messageFmt, args...)
}

// Error logs an error message.
func Error(subsystem string, err error, messageFmt string, args ...interface{}) {
	logInternal(LevelError, subsystem, err, messageFmt, args...)
}

// LineWriter returns a writer that logs every complete line written to it at the given
// level. Close flushes a trailing partial line.
func LineWriter(level LogLevel, subsystem, prefix string) io.WriteCloser {
	pr, pw := io.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			logInternal(level, subsystem, nil, "%s%s", prefix, scanner.Text())
		}
		_ = pr.CloseWithError(scanner.Err())
	}()
	return &lineWriter{pw: pw, done: done}
}

type lineWriter struct {
	pw   *io.PipeWriter
	done chan struct{}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *lineWriter) Close() error {
	err := w.pw.Close()
	<-w.done
	return err
}
