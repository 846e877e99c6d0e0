package observ

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogOptions configures the process logger.
type LogOptions struct {
	Level    string // debug | info | warn | error
	RingSize int
	FilePath string // empty disables the log file
	Stdout   io.Writer
}

var (
	logMu   sync.RWMutex
	logger  = zerolog.New(os.Stdout)
	ring    = NewRing(500)
	logFile *os.File
)

// Setup replaces the process logger. Lines go to stdout, the ring buffer and,
// when FilePath is set, an append-only log file.
func Setup(opts LogOptions) error {
	logMu.Lock()
	defer logMu.Unlock()

	if opts.RingSize <= 0 {
		opts.RingSize = 500
	}
	ring = NewRing(opts.RingSize)

	out := opts.Stdout
	if out == nil {
		out = os.Stdout
	}
	writers := []io.Writer{out, ring}

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0755); err != nil {
			return err
		}
		f, err := os.OpenFile(opts.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		logFile = f
		writers = append(writers, f)
	}

	logger = zerolog.New(io.MultiWriter(writers...)).Level(parseLevel(opts.Level))
	return nil
}

// Close flushes and closes the log file, if any.
func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Log emits one JSON line for event with the given fields.
func Log(event string, kv map[string]any) {
	emit(zerolog.InfoLevel, event, kv)
}

// Debug is Log at debug level; used for per-cycle chatter.
func Debug(event string, kv map[string]any) {
	emit(zerolog.DebugLevel, event, kv)
}

func Warn(event string, kv map[string]any) {
	emit(zerolog.WarnLevel, event, kv)
}

func Error(event string, kv map[string]any) {
	emit(zerolog.ErrorLevel, event, kv)
}

func emit(level zerolog.Level, event string, kv map[string]any) {
	logMu.RLock()
	l := logger
	logMu.RUnlock()

	e := l.WithLevel(level)
	if e == nil {
		return
	}
	e.Str("ts", time.Now().UTC().Format(time.RFC3339Nano)).Str("event", event)
	if len(kv) > 0 {
		e.Fields(kv)
	}
	e.Send()
}

// Component returns a sub-logger tagged with the component name.
func Component(name string) zerolog.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return logger.With().Str("component", name).Logger()
}

// Recent returns the buffered log lines, oldest first.
func Recent() []string {
	logMu.RLock()
	r := ring
	logMu.RUnlock()
	return r.Lines()
}
