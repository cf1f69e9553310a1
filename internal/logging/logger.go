// Package logging provides category-based file logging for incidentd.
//
// Each category writes to its own file under .incidentd/logs/ so that a
// noisy subsystem (agent turns, correlation rounds) can be inspected in
// isolation. Loggers are created lazily and shared; CloseAll flushes and
// closes every open file at shutdown.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ===== CATEGORIES =====

// Category identifies a logging subsystem.
type Category string

const (
	CategoryBoot       Category = "boot"
	CategorySession    Category = "session"
	CategoryAgents     Category = "agents"
	CategoryRouter     Category = "router"
	CategoryBlackboard Category = "blackboard"
	CategoryCorrelate  Category = "correlate"
	CategoryAlerts     Category = "alerts"
	CategoryProviders  Category = "providers"
	CategoryStore      Category = "store"
)

// Level controls log verbosity per category.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelOff
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
		return "OFF"
	}
}

// ParseLevel converts a config string to a Level. Unknown strings map to
// LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "off", "none":
		return LevelOff
	default:
		return LevelInfo
	}
}

// ===== REGISTRY =====

var (
	mu       sync.Mutex
	loggers  = map[Category]*Logger{}
	baseDir  string
	levels   = map[Category]Level{}
	defLevel = LevelInfo
)

// Config controls logger initialization.
type Config struct {
	// Dir is the directory log files are written to.
	Dir string
	// Level is the default level applied to categories without an override.
	Level string
	// Categories maps category name to a level override.
	Categories map[string]string
}

// Initialize sets the log directory and per-category levels. Safe to call
// more than once; later calls re-point new loggers but leave open files
// alone.
func Initialize(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	dir := cfg.Dir
	if dir == "" {
		dir = filepath.Join(".incidentd", "logs")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}
	baseDir = dir
	defLevel = ParseLevel(cfg.Level)
	for name, lvl := range cfg.Categories {
		levels[Category(name)] = ParseLevel(lvl)
	}
	return nil
}

// Get returns the shared logger for a category, creating it on first use.
func Get(cat Category) *Logger {
	mu.Lock()
	defer mu.Unlock()

	if l, ok := loggers[cat]; ok {
		return l
	}
	level, ok := levels[cat]
	if !ok {
		level = defLevel
	}
	l := &Logger{category: cat, level: level}
	if baseDir != "" {
		path := filepath.Join(baseDir, string(cat)+".log")
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			l.file = f
		}
	}
	loggers[cat] = l
	return l
}

// CloseAll flushes and closes every open log file.
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()
	for _, l := range loggers {
		l.close()
	}
	loggers = map[Category]*Logger{}
}

// ===== LOGGER =====

// Logger writes timestamped lines for one category. When no file is open
// (Initialize not called, or the file could not be created) output goes to
// stderr for warnings and errors only.
type Logger struct {
	fmu      sync.Mutex
	category Category
	level    Level
	file     *os.File
}

func (l *Logger) write(level Level, format string, args ...interface{}) {
	if level < l.level {
		return
	}
	line := fmt.Sprintf("%s [%s] [%s] %s\n",
		time.Now().Format("2006-01-02 15:04:05.000"),
		level, l.category, fmt.Sprintf(format, args...))

	l.fmu.Lock()
	defer l.fmu.Unlock()
	if l.file != nil {
		l.file.WriteString(line)
		return
	}
	if level >= LevelWarn {
		os.Stderr.WriteString(line)
	}
}

func (l *Logger) close() {
	l.fmu.Lock()
	defer l.fmu.Unlock()
	if l.file != nil {
		l.file.Sync()
		l.file.Close()
		l.file = nil
	}
}

func (l *Logger) Debug(format string, args ...interface{}) { l.write(LevelDebug, format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.write(LevelInfo, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.write(LevelWarn, format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.write(LevelError, format, args...) }

// ===== CONVENIENCE FUNCTIONS =====

func Boot(format string, args ...interface{})    { Get(CategoryBoot).Info(format, args...) }
func Session(format string, args ...interface{}) { Get(CategorySession).Info(format, args...) }
func SessionDebug(format string, args ...interface{}) {
	Get(CategorySession).Debug(format, args...)
}
func SessionWarn(format string, args ...interface{})  { Get(CategorySession).Warn(format, args...) }
func SessionError(format string, args ...interface{}) { Get(CategorySession).Error(format, args...) }

func Agents(format string, args ...interface{})      { Get(CategoryAgents).Info(format, args...) }
func AgentsDebug(format string, args ...interface{}) { Get(CategoryAgents).Debug(format, args...) }
func AgentsWarn(format string, args ...interface{})  { Get(CategoryAgents).Warn(format, args...) }
func AgentsError(format string, args ...interface{}) { Get(CategoryAgents).Error(format, args...) }

func Router(format string, args ...interface{})      { Get(CategoryRouter).Info(format, args...) }
func RouterDebug(format string, args ...interface{}) { Get(CategoryRouter).Debug(format, args...) }

func Blackboard(format string, args ...interface{}) { Get(CategoryBlackboard).Info(format, args...) }
func BlackboardDebug(format string, args ...interface{}) {
	Get(CategoryBlackboard).Debug(format, args...)
}

func Correlate(format string, args ...interface{}) { Get(CategoryCorrelate).Info(format, args...) }
func CorrelateDebug(format string, args ...interface{}) {
	Get(CategoryCorrelate).Debug(format, args...)
}

func Alerts(format string, args ...interface{})      { Get(CategoryAlerts).Info(format, args...) }
func AlertsDebug(format string, args ...interface{}) { Get(CategoryAlerts).Debug(format, args...) }
func AlertsError(format string, args ...interface{}) { Get(CategoryAlerts).Error(format, args...) }

func Providers(format string, args ...interface{}) { Get(CategoryProviders).Info(format, args...) }
func ProvidersDebug(format string, args ...interface{}) {
	Get(CategoryProviders).Debug(format, args...)
}
func ProvidersError(format string, args ...interface{}) {
	Get(CategoryProviders).Error(format, args...)
}

func Store(format string, args ...interface{})      { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }
func StoreError(format string, args ...interface{}) { Get(CategoryStore).Error(format, args...) }

// ===== TIMING =====

// Timer measures the duration of an operation and logs it on Stop.
type Timer struct {
	category Category
	label    string
	start    time.Time
}

// StartTimer begins timing an operation for the given category.
func StartTimer(cat Category, label string) *Timer {
	return &Timer{category: cat, label: label, start: time.Now()}
}

// Stop logs the elapsed time at debug level.
func (t *Timer) Stop() {
	Get(t.category).Debug("%s took %v", t.label, time.Since(t.start))
}
