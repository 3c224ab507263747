package events

import "time"

// Event defines the contract for all proctoring events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "EXAM_LOCKED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

const (
	TypeAttemptStarted   = "ATTEMPT_STARTED"
	TypeProctorViolation = "PROCTOR_VIOLATION"
	TypeExamLocked       = "EXAM_LOCKED"
	TypeExamSubmitted    = "EXAM_SUBMITTED"
)

// BaseEvent is the only implementation; constructors below fill the payload keys.
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

func NewAttemptStarted(attemptID, sessionID, studentID, testID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type: TypeAttemptStarted,
		Data: map[string]interface{}{
			"attempt_id": attemptID,
			"session_id": sessionID,
			"student_id": studentID,
			"test_id":    testID,
		},
		OccurredAt: at,
	}
}

// NewViolation is a logged but non-terminal violation (warning or advisory).
func NewViolation(attemptID, sessionID, severity, message string, at time.Time) BaseEvent {
	return BaseEvent{
		Type: TypeProctorViolation,
		Data: map[string]interface{}{
			"attempt_id": attemptID,
			"session_id": sessionID,
			"severity":   severity,
			"message":    message,
		},
		OccurredAt: at,
	}
}

func NewExamLocked(attemptID, sessionID, reason string, tabSwitches int, multiFace bool, at time.Time) BaseEvent {
	return BaseEvent{
		Type: TypeExamLocked,
		Data: map[string]interface{}{
			"attempt_id":          attemptID,
			"session_id":          sessionID,
			"reason":              reason,
			"tab_switch_count":    tabSwitches,
			"multi_face_detected": multiFace,
		},
		OccurredAt: at,
	}
}

func NewExamSubmitted(attemptID, sessionID string, answered, total int, auto bool, at time.Time) BaseEvent {
	return BaseEvent{
		Type: TypeExamSubmitted,
		Data: map[string]interface{}{
			"attempt_id": attemptID,
			"session_id": sessionID,
			"answered":   answered,
			"total":      total,
			"auto":       auto,
		},
		OccurredAt: at,
	}
}

// String reads a string payload key, "" when absent.
func String(e Event, key string) string {
	s, _ := e.Payload()[key].(string)
	return s
}
