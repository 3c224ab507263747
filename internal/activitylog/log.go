// Package activitylog keeps the bounded, most-recent-first activity list shown next to
// the exam and mirrors every entry into the structured logger.
package activitylog

import (
	"sync"
	"time"

	"exam-proctor-agent/internal/pkg/logger"

	"github.com/google/uuid"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// DefaultCapacity matches the exam page's visible log length.
const DefaultCapacity = 50

type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
}

// Clock returns the current HH:MM:SS, as printed in the console mirror.
func (e Entry) Clock() string {
	return e.Timestamp.Format("15:04:05")
}

type Listener func(Entry)

type Log struct {
	mu        sync.RWMutex
	entries   []Entry
	capacity  int
	mirror    logger.ILogger
	listeners []Listener
	now       func() time.Time
}

func New(capacity int, mirror logger.ILogger) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if mirror == nil {
		mirror = logger.NewNopLogger()
	}
	return &Log{
		entries:  make([]Entry, 0, capacity),
		capacity: capacity,
		mirror:   mirror,
		now:      time.Now,
	}
}

// Subscribe registers a listener invoked synchronously after every append.
func (l *Log) Subscribe(fn Listener) {
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

func (l *Log) Append(message string, severity Severity) Entry {
	switch severity {
	case SeverityInfo, SeveritySuccess, SeverityWarning, SeverityError:
	default:
		severity = SeverityInfo
	}

	entry := Entry{
		ID:        uuid.NewString(),
		Timestamp: l.now(),
		Message:   message,
		Severity:  severity,
	}

	l.mu.Lock()
	l.entries = append(l.entries, Entry{})
	copy(l.entries[1:], l.entries)
	l.entries[0] = entry
	if len(l.entries) > l.capacity {
		l.entries = l.entries[:l.capacity]
	}
	listeners := append([]Listener(nil), l.listeners...)
	l.mu.Unlock()

	l.mirrorEntry(entry)
	for _, fn := range listeners {
		fn(entry)
	}
	return entry
}

func (l *Log) mirrorEntry(e Entry) {
	details := map[string]interface{}{"time": e.Clock(), "severity": string(e.Severity)}
	switch e.Severity {
	case SeverityError:
		l.mirror.Error("ActivityLog", e.Message, details)
	case SeverityWarning:
		l.mirror.Warn("ActivityLog", e.Message, details)
	default:
		l.mirror.Info("ActivityLog", e.Message, details)
	}
}

func (l *Log) Info(message string) Entry    { return l.Append(message, SeverityInfo) }
func (l *Log) Success(message string) Entry { return l.Append(message, SeveritySuccess) }
func (l *Log) Warn(message string) Entry    { return l.Append(message, SeverityWarning) }
func (l *Log) Error(message string) Entry   { return l.Append(message, SeverityError) }

// Entries returns a copy, newest first.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
