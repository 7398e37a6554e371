// Package monitoring holds the process-wide diagnostic logger. Library
// packages log through Logf; binaries point it at zap with UseZap.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf.
// Tests usually mute it with SetLogger(nil).
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
