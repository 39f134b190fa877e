// Package monitoring holds the process-wide diagnostic logger shared by the
// acquisition, dataset and model packages.
package monitoring

import (
	"log"
	"sync/atomic"
)

type logFunc = func(format string, v ...interface{})

var current atomic.Pointer[logFunc]

func init() {
	f := logFunc(log.Printf)
	current.Store(&f)
}

// Logf writes a diagnostic line through the active logger. It defaults to
// log.Printf and may be redirected with SetLogger.
func Logf(format string, v ...interface{}) {
	(*current.Load())(format, v...)
}

// SetLogger replaces the package logger. Passing nil mutes all output.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	current.Store(&f)
}

// Component returns a logger that tags every line with "[name] ".
func Component(name string) func(format string, v ...interface{}) {
	prefix := "[" + name + "] "
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}
