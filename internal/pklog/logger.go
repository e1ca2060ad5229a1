// Package pklog is the pK's process-wide structured logger: slog on top of
// a small text handler that colorizes output to a terminal and writes
// plain text elsewhere, or slog's JSON handler when the format is "json",
// with the level and
// format both reconfigurable at runtime (pkconfig's SIGHUP reload flows
// through SetLevel/SetFormat).
package pklog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Level mirrors the four slog levels the pK actually uses.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
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

// Config is the logger's process-wide configuration, populated from
// pkconfig.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // auto, stdout, stderr, or a file path
}

var (
	currentLevel  atomic.Int32
	currentFormat atomic.Value // "text" or "json"

	mu       sync.RWMutex
	slogger  *slog.Logger
	output   io.Writer = os.Stderr
	useColor           = true
	withTime           = true
)

func init() {
	currentLevel.Store(int32(LevelInfo))
	currentFormat.Store("text")
	mu.Lock()
	output, useColor, withTime = autoOutput()
	mu.Unlock()
	reconfigure()
}

// autoOutput picks the default sink: under a service manager
// (INVOCATION_ID set) lines go to stdout in the condensed, timestamp-free
// format, since the journal stamps them; otherwise stderr, with timestamps.
func autoOutput() (io.Writer, bool, bool) {
	if os.Getenv("INVOCATION_ID") != "" {
		return os.Stdout, false, false
	}
	return os.Stderr, isTerminal(os.Stderr.Fd()), true
}

func toSlogLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func reconfigure() {
	mu.Lock()
	defer mu.Unlock()

	levelVar := new(slog.LevelVar)
	levelVar.Set(toSlogLevel(Level(currentLevel.Load())))
	opts := &slog.HandlerOptions{Level: levelVar}

	format, _ := currentFormat.Load().(string)
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = NewColorTextHandler(output, opts, useColor, withTime)
	}
	slogger = slog.New(handler)
}

// Init applies cfg, opening Output if it names a file. Output "auto" (the
// default) follows the INVOCATION_ID convention described on autoOutput.
func Init(cfg Config) error {
	if cfg.Output != "" {
		mu.Lock()
		var newOutput io.Writer
		var newUseColor bool
		newWithTime := true
		switch strings.ToLower(cfg.Output) {
		case "auto":
			newOutput, newUseColor, newWithTime = autoOutput()
		case "stdout":
			newOutput, newUseColor = os.Stdout, isTerminal(os.Stdout.Fd())
		case "stderr":
			newOutput, newUseColor = os.Stderr, isTerminal(os.Stderr.Fd())
		default:
			f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				mu.Unlock()
				return fmt.Errorf("pklog: open %q: %w", cfg.Output, err)
			}
			newOutput, newUseColor = f, false
		}
		output, useColor, withTime = newOutput, newUseColor, newWithTime
		mu.Unlock()
	}
	if cfg.Level != "" {
		SetLevel(cfg.Level)
	}
	if cfg.Format != "" {
		SetFormat(cfg.Format)
	}
	return nil
}

// InitWithWriter points the logger at w, bypassing file/terminal detection.
// Used by tests.
func InitWithWriter(w io.Writer, level, format string, enableColor bool) {
	mu.Lock()
	output, useColor, withTime = w, enableColor, true
	mu.Unlock()
	if level != "" {
		SetLevel(level)
	}
	if format != "" {
		SetFormat(format)
	}
}

// SetLevel changes the minimum emitted level. Unrecognized values are
// ignored, matching the forgiving reload semantics pkconfig relies on when
// applying a hot-reloaded config (a malformed reload must not
// crash the daemon).
func SetLevel(level string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		currentLevel.Store(int32(LevelDebug))
	case "INFO":
		currentLevel.Store(int32(LevelInfo))
	case "WARN":
		currentLevel.Store(int32(LevelWarn))
	case "ERROR":
		currentLevel.Store(int32(LevelError))
	default:
		return
	}
	reconfigure()
}

// SetFormat switches between "text" and "json" output. Unrecognized values
// are ignored.
func SetFormat(format string) {
	format = strings.ToLower(format)
	if format != "text" && format != "json" {
		return
	}
	currentFormat.Store(format)
	reconfigure()
}

func get() *slog.Logger {
	mu.RLock()
	l := slogger
	mu.RUnlock()
	return l
}

func Debug(msg string, args ...any) {
	if LevelDebug < Level(currentLevel.Load()) {
		return
	}
	get().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	if LevelInfo < Level(currentLevel.Load()) {
		return
	}
	get().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	if LevelWarn < Level(currentLevel.Load()) {
		return
	}
	get().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	get().Error(msg, args...)
}

// With returns a logger with args pre-bound, for attaching per-session or
// per-connection context (e.g. session id) to every subsequent log line.
func With(args ...any) *slog.Logger {
	return get().With(args...)
}
