// Package notify delivers user-facing notifications.
package notify

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Severity of a notification.
type Severity string

const (
	Info    Severity = "info"
	Success Severity = "success"
	Warning Severity = "warning"
	Danger  Severity = "danger"
)

// Sink receives notifications. Implementations must not block.
type Sink interface {
	Notify(message string, severity Severity)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(message string, severity Severity)

// Notify implements Sink.
func (f SinkFunc) Notify(message string, severity Severity) { f(message, severity) }

// LogSink writes notifications to a logger at a level matching the severity.
type LogSink struct {
	Log *logrus.Entry
}

// Notify implements Sink.
func (s LogSink) Notify(message string, severity Severity) {
	entry := s.Log.WithField("severity", string(severity))
	switch severity {
	case Danger:
		entry.Error(message)
	case Warning:
		entry.Warn(message)
	default:
		entry.Info(message)
	}
}

// Multi fans a notification out to every sink. Nil sinks are skipped.
func Multi(sinks ...Sink) Sink {
	var out multi
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type multi []Sink

func (m multi) Notify(message string, severity Severity) {
	for _, s := range m {
		s.Notify(message, severity)
	}
}

// Notification is a recorded notification.
type Notification struct {
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Memory keeps every notification it receives.
type Memory struct {
	mu    sync.Mutex
	items []Notification
}

// Notify implements Sink.
func (m *Memory) Notify(message string, severity Severity) {
	m.mu.Lock()
	m.items = append(m.items, Notification{Message: message, Severity: severity})
	m.mu.Unlock()
}

// All returns a copy of the recorded notifications.
func (m *Memory) All() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Notification(nil), m.items...)
}
