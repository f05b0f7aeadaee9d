package logutil

import (
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	logger  = log.NewWithOptions(os.Stderr, log.Options{Prefix: "xpublish", ReportTimestamp: true, Level: log.InfoLevel})
	verbose bool
	quiet   bool
	mu      sync.RWMutex
)

// SetVerbose adjusts the global logging level.
func SetVerbose(enable bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = enable
	applyLevel()
}

// SetQuiet suppresses informational output, keeping warnings and errors.
// Used when stdout carries machine readable output.
func SetQuiet(enable bool) {
	mu.Lock()
	defer mu.Unlock()
	quiet = enable
	applyLevel()
}

func applyLevel() {
	switch {
	case verbose:
		logger.SetLevel(log.DebugLevel)
	case quiet:
		logger.SetLevel(log.WarnLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}
}

// SetOutput redirects log output.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// Verbose reports whether verbose logging is enabled.
func Verbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// Debugf logs a debug message when verbose logging is enabled.
func Debugf(format string, args ...any) {
	logger.Debugf(format, args...)
}

// Infof logs an informational message.
func Infof(format string, args ...any) {
	logger.Infof(format, args...)
}

// Warnf logs a warning.
func Warnf(format string, args ...any) {
	logger.Warnf(format, args...)
}

// Errorf logs an error message.
func Errorf(format string, args ...any) {
	logger.Errorf(format, args...)
}
