// Package logging provides component loggers for the reclaim engine.
//
// Every logger writes to a rotating file, optionally mirrors to the console,
// and emits an Event for each call. Events carry one of the run severities
// (info, success, warning, error, deleted) and are delivered to subscribers
// and, when configured, to a ring buffer that the CLI drains into its report.
//
//	if err := logging.Init(logging.Config{Level: "info"}); err != nil {
//	    return err
//	}
//	defer logging.Close()
//
//	log := logging.Get("deleter")
//	log.Deleted("removed directory", "path", dir, "bytes", n)
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
)

// Level is a filtering threshold.
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
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

func (l Level) charm() log.Level {
	switch l {
	case LevelDebug:
		return log.DebugLevel
	case LevelWarn:
		return log.WarnLevel
	case LevelError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// ErrInvalidLevel is returned when an invalid log level string is provided.
var ErrInvalidLevel = errors.New("invalid log level")

// ParseLevel parses a string into a Level.
func ParseLevel(s string) (Level, error) {
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
		return LevelInfo, fmt.Errorf("%w: %s", ErrInvalidLevel, s)
	}
}

// Severity is the status attached to a log event.
type Severity string

const (
	SeverityDebug   Severity = "debug"
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeverityDeleted Severity = "deleted"
)

// level maps a severity onto the threshold it is filtered by. Success and
// deleted lines are informational.
func (s Severity) level() Level {
	switch s {
	case SeverityDebug:
		return LevelDebug
	case SeverityWarning:
		return LevelWarn
	case SeverityError:
		return LevelError
	default:
		return LevelInfo
	}
}

// Event is one structured log line.
type Event struct {
	Time      time.Time `json:"time"`
	Severity  Severity  `json:"severity"`
	Component string    `json:"component"`
	Message   string    `json:"message"`
	Fields    []any     `json:"fields,omitempty"`
}

// Config configures the logging system.
type Config struct {
	// Level is the default threshold (debug, info, warn, error).
	Level string

	// Path is the log file path. Empty uses DefaultLogPath().
	Path string

	Rotation RotationConfig

	// Components maps component names to threshold overrides.
	Components map[string]string

	// ConsoleLevel mirrors logs at this threshold and above to stderr.
	// Empty disables console output.
	ConsoleLevel string

	// Journal keeps the most recent events in memory for the run report.
	// Zero disables it.
	Journal int
}

// Logger writes component-tagged lines to the log file and, optionally,
// the console.
type Logger struct {
	file      *log.Logger
	console   *log.Logger
	component string
	threshold Level

	// sink, when set, receives events instead of the global subscribers.
	sink *EventBuffer
}

func (l *Logger) Debug(msg string, args ...any) { l.emit(SeverityDebug, msg, args) }
func (l *Logger) Info(msg string, args ...any)  { l.emit(SeverityInfo, msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { l.emit(SeverityWarning, msg, args) }
func (l *Logger) Error(msg string, args ...any) { l.emit(SeverityError, msg, args) }

// Success logs the completion of an operation.
func (l *Logger) Success(msg string, args ...any) { l.emit(SeveritySuccess, msg, args) }

// Deleted logs the removal of a target.
func (l *Logger) Deleted(msg string, args ...any) { l.emit(SeverityDeleted, msg, args) }

// Log logs at an explicit severity.
func (l *Logger) Log(sev Severity, msg string, args ...any) { l.emit(sev, msg, args) }

func (l *Logger) emit(sev Severity, msg string, args []any) {
	lineArgs := args
	if sev == SeveritySuccess || sev == SeverityDeleted {
		lineArgs = append([]any{"status", string(sev)}, args...)
	}

	writeLine(l.file, sev.level(), msg, lineArgs)
	if l.console != nil {
		writeLine(l.console, sev.level(), msg, lineArgs)
	}

	if sev.level() < l.threshold {
		return
	}
	ev := Event{
		Time:      time.Now(),
		Severity:  sev,
		Component: l.component,
		Message:   msg,
		Fields:    append([]any(nil), args...),
	}
	if l.sink != nil {
		l.sink.Add(ev)
		return
	}
	globalState.broadcast(ev)
}

func writeLine(logger *log.Logger, level Level, msg string, args []any) {
	switch level {
	case LevelDebug:
		logger.Debug(msg, args...)
	case LevelWarn:
		logger.Warn(msg, args...)
	case LevelError:
		logger.Error(msg, args...)
	default:
		logger.Info(msg, args...)
	}
}

// With returns a logger that adds the key/value pairs to every line.
func (l *Logger) With(args ...any) *Logger {
	out := *l
	out.file = l.file.With(args...)
	if l.console != nil {
		out.console = l.console.With(args...)
	}
	return &out
}

// Component returns the name the logger was created for.
func (l *Logger) Component() string { return l.component }

// NewCapture returns a standalone logger whose events go only to the
// returned buffer. Lines are written to w, which may be io.Discard.
func NewCapture(component string, w io.Writer) (*Logger, *EventBuffer) {
	buf := NewEventBuffer(1024)
	return &Logger{
		file: log.NewWithOptions(w, log.Options{
			Level:  log.DebugLevel,
			Prefix: component,
		}),
		component: component,
		threshold: LevelDebug,
		sink:      buf,
	}, buf
}

type state struct {
	mu          sync.RWMutex
	initialized bool
	writer      *RotatingWriter
	level       Level
	components  map[string]Level
	loggers     map[string]*Logger
	subscribers map[chan Event]struct{}

	consoleEnabled bool
	consoleLevel   Level
	journal        *EventBuffer
}

var globalState = &state{
	loggers:     make(map[string]*Logger),
	components:  make(map[string]Level),
	subscribers: make(map[chan Event]struct{}),
}

// Init configures the logging system. Loggers obtained before Init are
// silent until it runs, after which they are rebuilt in place.
func Init(cfg Config) error {
	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}

	components := make(map[string]Level, len(cfg.Components))
	for comp, lvl := range cfg.Components {
		parsed, err := ParseLevel(lvl)
		if err != nil {
			return fmt.Errorf("parsing level for component %s: %w", comp, err)
		}
		components[comp] = parsed
	}

	consoleEnabled := false
	consoleLevel := LevelInfo
	if cfg.ConsoleLevel != "" {
		consoleLevel, err = ParseLevel(cfg.ConsoleLevel)
		if err != nil {
			return fmt.Errorf("parsing console level: %w", err)
		}
		consoleEnabled = true
	}

	path := cfg.Path
	if path == "" {
		path = DefaultLogPath()
	}
	writer, err := NewRotatingWriter(path, cfg.Rotation)
	if err != nil {
		return fmt.Errorf("creating log writer: %w", err)
	}

	if globalState.writer != nil {
		_ = globalState.writer.Close()
	}

	globalState.writer = writer
	globalState.level = level
	globalState.components = components
	globalState.consoleEnabled = consoleEnabled
	globalState.consoleLevel = consoleLevel
	globalState.journal = nil
	if cfg.Journal > 0 {
		globalState.journal = NewEventBuffer(cfg.Journal)
	}
	globalState.initialized = true

	for component, existing := range globalState.loggers {
		*existing = *createLogger(component)
	}
	return nil
}

// Get returns the shared logger for component.
func Get(component string) *Logger {
	globalState.mu.RLock()
	if logger, ok := globalState.loggers[component]; ok {
		globalState.mu.RUnlock()
		return logger
	}
	globalState.mu.RUnlock()

	globalState.mu.Lock()
	defer globalState.mu.Unlock()
	if logger, ok := globalState.loggers[component]; ok {
		return logger
	}
	logger := createLogger(component)
	globalState.loggers[component] = logger
	return logger
}

// createLogger must be called with globalState.mu held.
func createLogger(component string) *Logger {
	level := globalState.level
	if override, ok := globalState.components[component]; ok {
		level = override
	}

	if !globalState.initialized {
		return &Logger{
			file:      log.NewWithOptions(io.Discard, log.Options{Level: level.charm(), Prefix: component}),
			component: component,
			threshold: level,
		}
	}

	logger := &Logger{
		file: log.NewWithOptions(globalState.writer, log.Options{
			Level:           level.charm(),
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Prefix:          component,
		}),
		component: component,
		threshold: level,
	}
	if globalState.consoleEnabled {
		logger.console = log.NewWithOptions(os.Stderr, log.Options{
			Level:           globalState.consoleLevel.charm(),
			ReportTimestamp: true,
			TimeFormat:      "15:04:05",
			Prefix:          component,
		})
	}
	return logger
}

// Close closes subscriber channels and the log file. Existing loggers
// become silent again.
func Close() error {
	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	if !globalState.initialized {
		return nil
	}

	for ch := range globalState.subscribers {
		close(ch)
		delete(globalState.subscribers, ch)
	}

	var err error
	if globalState.writer != nil {
		err = globalState.writer.Close()
		globalState.writer = nil
	}

	globalState.initialized = false
	globalState.components = make(map[string]Level)
	for component, existing := range globalState.loggers {
		*existing = *createLogger(component)
	}
	if err != nil {
		return fmt.Errorf("closing log writer: %w", err)
	}
	return nil
}

// Subscribe returns a buffered channel receiving every event. Events are
// dropped rather than blocking when the channel is full.
func Subscribe() <-chan Event {
	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	ch := make(chan Event, 256)
	globalState.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe stops delivery to ch. The channel is not closed.
func Unsubscribe(ch <-chan Event) {
	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	for sub := range globalState.subscribers {
		if sub == ch {
			delete(globalState.subscribers, sub)
			return
		}
	}
}

func (s *state) broadcast(ev Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.journal != nil {
		s.journal.Add(ev)
	}
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Journal returns the in-memory event journal, or nil when disabled.
func Journal() *EventBuffer {
	globalState.mu.RLock()
	defer globalState.mu.RUnlock()
	return globalState.journal
}

// DefaultLogPath returns $XDG_STATE_HOME/reclaim/reclaim.log.
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, "reclaim", "reclaim.log")
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Level:    "info",
		Path:     DefaultLogPath(),
		Rotation: DefaultRotationConfig(),
	}
}
