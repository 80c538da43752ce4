// Package trace is a trace-event interface independent of the decode
// logic it instruments: call sites log unconditionally, and whether
// anything is produced is purely a matter of the configured logrus
// level. Disabling it must never change control flow, so nothing in
// this package returns a value or error that a caller could branch on.
package trace

import "github.com/sirupsen/logrus"

var log = logrus.New()

func init() {
	log.SetLevel(logrus.WarnLevel)
}

// SetLevel adjusts verbosity; cmd/vhdiinfo wires its -v/-vv flags here.
func SetLevel(level logrus.Level) {
	log.SetLevel(level)
}

// Event logs a structured trace point at Debug level. fields may be nil.
func Event(component, msg string, fields logrus.Fields) {
	entry := log.WithField("component", component)
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	entry.Debug(msg)
}
