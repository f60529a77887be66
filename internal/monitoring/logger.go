// Package monitoring holds the diagnostic logger shared by the emulator
// packages.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// MountLogf returns a logger that tags every line with the mount name, so
// interleaved output from parallel mounts stays attributable.
func MountLogf(mount string) func(format string, v ...interface{}) {
	prefix := "[" + mount + "] "
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}
