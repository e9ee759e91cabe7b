package logger

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// traceLevelValue sits below slog.LevelDebug
	traceLevelValue = slog.Level(-8)

	moduleKey  = "module"
	traceIDKey = "trace_id"

	logDirPerm = 0o750
)

// CentralLogger hands out module loggers. Records go to the console and the
// main file unless the module has a file of its own.
type CentralLogger struct {
	mu       sync.RWMutex
	config   *LoggingConfig
	timezone *time.Location
	base     slog.Handler
	main     *BufferedFileWriter
	writers  map[string]*BufferedFileWriter
	levels   map[string]slog.Level
}

// NewCentralLogger opens the files named in cfg. Missing sections of cfg
// are filled with defaults.
func NewCentralLogger(cfg *LoggingConfig) (*CentralLogger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging config cannot be nil")
	}
	applyConfigDefaults(cfg)

	tz, err := loadTimezone(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	cl := &CentralLogger{
		config:   cfg,
		timezone: tz,
		writers:  make(map[string]*BufferedFileWriter),
		levels:   make(map[string]slog.Level, len(cfg.ModuleLevels)),
	}
	for module, level := range cfg.ModuleLevels {
		cl.levels[module] = parseLogLevel(level)
	}

	if err := cl.openBase(); err != nil {
		return nil, err
	}
	if err := cl.openModuleFiles(); err != nil {
		_ = cl.closeWriters()
		return nil, err
	}
	return cl, nil
}

func loadTimezone(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	tz, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", name, err)
	}
	return tz, nil
}

func (cl *CentralLogger) openBase() error {
	var handlers []slog.Handler
	if c := cl.config.Console; c != nil && c.Enabled {
		handlers = append(handlers, newTextHandler(os.Stdout, parseLogLevel(c.Level), cl.timezone))
	}
	if f := cl.config.FileOutput; f != nil && f.Enabled {
		w, err := openLogFile(f.Path)
		if err != nil {
			return fmt.Errorf("failed to open main log: %w", err)
		}
		cl.main = w
		handlers = append(handlers, newJSONHandler(w, parseLogLevel(f.Level), cl.timezone))
	}

	if len(handlers) == 0 {
		handlers = append(handlers, newTextHandler(os.Stdout, parseLogLevel(cl.config.DefaultLevel), cl.timezone))
	}
	cl.base = combine(handlers)
	return nil
}

func (cl *CentralLogger) openModuleFiles() error {
	for module, out := range cl.config.ModuleOutputs {
		if !out.Enabled {
			continue
		}
		w, err := openLogFile(out.FilePath)
		if err != nil {
			return fmt.Errorf("failed to open log for module %s: %w", module, err)
		}
		cl.writers[module] = w
	}
	return nil
}

func openLogFile(path string) (*BufferedFileWriter, error) {
	if dir := filepath.Dir(path); path != "" && dir != "." {
		if err := os.MkdirAll(dir, logDirPerm); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return NewBufferedFileWriter(path)
}

func combine(handlers []slog.Handler) slog.Handler {
	if len(handlers) == 1 {
		return handlers[0]
	}
	return newMultiWriterHandler(handlers...)
}

// Module returns a logger tagged with name. A module with its own file
// writes there, and to the console as well when console_also is set.
func (cl *CentralLogger) Module(name string) Logger {
	if cl == nil {
		return nil
	}
	cl.mu.RLock()
	defer cl.mu.RUnlock()

	level := parseLogLevel(cl.config.DefaultLevel)
	if l, ok := cl.levels[name]; ok {
		level = l
	}
	out, hasOut := cl.config.ModuleOutputs[name]
	if hasOut && out.Level != "" {
		level = parseLogLevel(out.Level)
	}

	handler := cl.base
	if w, ok := cl.writers[name]; ok {
		handlers := []slog.Handler{newJSONHandler(w, level, cl.timezone)}
		if out.ConsoleAlso && cl.config.Console != nil && cl.config.Console.Enabled {
			handlers = append(handlers, newTextHandler(os.Stdout, level, cl.timezone))
		}
		handler = combine(handlers)
	}

	return &moduleLogger{
		module:   name,
		logger:   slog.New(handler),
		level:    level,
		timezone: cl.timezone,
	}
}

// Close flushes and closes every log file
func (cl *CentralLogger) Close() error {
	if cl == nil {
		return nil
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.closeWriters()
}

func (cl *CentralLogger) closeWriters() error {
	err := cl.eachWriter(func(w *BufferedFileWriter) error { return w.Close() })
	cl.main = nil
	cl.writers = nil
	return err
}

// Flush writes buffered records to the OS without syncing them to disk
func (cl *CentralLogger) Flush() error {
	if cl == nil {
		return nil
	}
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return cl.eachWriter(func(w *BufferedFileWriter) error { return w.Flush() })
}

func (cl *CentralLogger) eachWriter(fn func(*BufferedFileWriter) error) error {
	var errs []error
	if cl.main != nil {
		if err := fn(cl.main); err != nil {
			errs = append(errs, fmt.Errorf("main log %s: %w", cl.main.FilePath(), err))
		}
	}
	for module, w := range cl.writers {
		if err := fn(w); err != nil {
			errs = append(errs, fmt.Errorf("module %s log: %w", module, err))
		}
	}
	return errors.Join(errs...)
}
