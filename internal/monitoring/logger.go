// Package monitoring holds the tracker's swappable diagnostic logger.
package monitoring

import (
	"log"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger used by the feeds and the
// tracking service. It defaults to log.Printf; tests may mute or capture it.
var Logf func(format string, v ...interface{}) = log.Printf

var debug atomic.Bool

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetDebug enables or disables Debugf output.
func SetDebug(enabled bool) {
	debug.Store(enabled)
}

// DebugEnabled reports whether Debugf output is enabled.
func DebugEnabled() bool {
	return debug.Load()
}

// Debugf logs per-event detail (one line per pixel offset or platform reading)
// only when debug output is enabled.
func Debugf(format string, v ...interface{}) {
	if debug.Load() {
		Logf("[debug] "+format, v...)
	}
}
