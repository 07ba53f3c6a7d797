// Package logging provides the process-wide debug logger shared by every
// analysis phase. It has exactly one writer (stderr) and one mutable
// setting (verbosity), matching §5's "no global mutable state survives a
// single analyze call" by resetting cleanly between runs via SetVerbose.
package logging

import (
	"io"
	"log"
	"os"
)

var (
	logger  = log.New(os.Stderr, "", log.Ltime|log.Lmicroseconds)
	verbose = os.Getenv("REACHSCAN_VERBOSE") == "1"
)

// SetVerbose toggles debug/info output at runtime (e.g. from a --verbose flag).
func SetVerbose(enabled bool) {
	verbose = enabled
}

// SetOutput redirects the logger, mainly for tests.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

func Debugf(format string, args ...any) {
	if verbose {
		logger.Printf("[DEBUG] "+format, args...)
	}
}

func Infof(format string, args ...any) {
	if verbose {
		logger.Printf("[INFO] "+format, args...)
	}
}

func Warnf(format string, args ...any) {
	logger.Printf("[WARN] "+format, args...)
}

func Errorf(format string, args ...any) {
	logger.Printf("[ERROR] "+format, args...)
}
