package logger

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	_ "time/tzdata"
)

var (
	globalMu sync.Mutex
	global   *CentralLogger
)

// SetGlobal installs cl as the process logger. Call once after the
// configuration is loaded.
func SetGlobal(cl *CentralLogger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = cl
}

// Global returns the process logger. Before SetGlobal it is an info level
// console logger.
func Global() *CentralLogger {
	globalMu.Lock()
	defer globalMu.Unlock()

	if global == nil {
		global = &CentralLogger{
			defaultLevel: slog.LevelInfo,
			handler:      newTextHandler(os.Stderr, slog.LevelInfo),
		}
	}
	return global
}

// CentralLogger owns the output handlers and hands out module loggers.
type CentralLogger struct {
	mu           sync.RWMutex
	handler      slog.Handler
	file         *fileWriter
	defaultLevel slog.Level
	moduleLevels map[string]slog.Level
}

// NewCentralLogger builds the console and file outputs described by cfg.
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
		defaultLevel: parseLogLevel(cfg.DefaultLevel),
		moduleLevels: make(map[string]slog.Level, len(cfg.ModuleLevels)),
	}
	for module, level := range cfg.ModuleLevels {
		cl.moduleLevels[module] = parseLogLevel(level)
	}

	var outputs []slog.Handler
	if cfg.Console != nil && cfg.Console.Enabled {
		outputs = append(outputs, newTextHandler(os.Stderr, parseLogLevel(cfg.Console.Level)))
	}
	if cfg.FileOutput != nil && cfg.FileOutput.Enabled {
		fw, err := openFileWriter(cfg.FileOutput.Path)
		if err != nil {
			return nil, err
		}
		cl.file = fw
		outputs = append(outputs, newJSONHandler(fw, parseLogLevel(cfg.FileOutput.Level), tz))
	}

	switch len(outputs) {
	case 0:
		cl.handler = newTextHandler(os.Stderr, cl.defaultLevel)
	case 1:
		cl.handler = outputs[0]
	default:
		cl.handler = newMultiHandler(outputs...)
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

// Module returns a logger for the named module. Its level is the module's
// configured level or the default level.
func (cl *CentralLogger) Module(name string) Logger {
	if cl == nil {
		return nil
	}

	cl.mu.RLock()
	defer cl.mu.RUnlock()

	level, ok := cl.moduleLevels[name]
	if !ok {
		level = cl.defaultLevel
	}
	return &moduleLogger{
		module: name,
		out:    slog.New(cl.handler),
		level:  level,
	}
}

// Flush writes buffered file output to the OS.
func (cl *CentralLogger) Flush() error {
	if cl == nil {
		return nil
	}

	cl.mu.RLock()
	defer cl.mu.RUnlock()

	if cl.file == nil {
		return nil
	}
	return cl.file.Flush()
}

// Close flushes and closes the log file. Console output keeps working.
func (cl *CentralLogger) Close() error {
	if cl == nil {
		return nil
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.file == nil {
		return nil
	}
	err := cl.file.Close()
	cl.file = nil
	return err
}
