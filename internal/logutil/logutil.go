package logutil

import (
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/term"
)

var (
	logger  = newLogger()
	verbose bool
	mu      sync.RWMutex
)

func newLogger() *log.Logger {
	l := log.NewWithOptions(os.Stderr, log.Options{Prefix: "igpost", ReportTimestamp: true, Level: log.InfoLevel})
	// scheduled runs (cron, CI) log to a pipe
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		l.SetFormatter(log.LogfmtFormatter)
	}
	return l
}

// SetVerbose adjusts the global logging level.
func SetVerbose(enable bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = enable
	if enable {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.InfoLevel)
	}
}

// Verbose reports whether verbose logging is enabled.
func Verbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetRunID tags every following log line with the given run identifier.
func SetRunID(id string) {
	mu.Lock()
	defer mu.Unlock()
	logger = logger.With("run", id)
}

func current() *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Debugf logs a debug message when verbose logging is enabled.
func Debugf(format string, args ...any) {
	current().Debugf(format, args...)
}

// Infof logs an informational message.
func Infof(format string, args ...any) {
	current().Infof(format, args...)
}

// Warnf logs a recoverable problem.
func Warnf(format string, args ...any) {
	current().Warnf(format, args...)
}

// Errorf logs an error message.
func Errorf(format string, args ...any) {
	current().Errorf(format, args...)
}
