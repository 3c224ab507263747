package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConstructorsFillPayload(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	locked := NewExamLocked("a1", "S1", "Multiple faces detected in camera", 0, true, at)
	assert.Equal(t, TypeExamLocked, locked.EventType())
	assert.Equal(t, at, locked.Timestamp())
	assert.Equal(t, "S1", String(locked, "session_id"))
	assert.Equal(t, true, locked.Payload()["multi_face_detected"])

	v := NewViolation("a1", "S1", "warning", "Tab switched", at)
	assert.Equal(t, TypeProctorViolation, v.EventType())
	assert.Equal(t, "warning", String(v, "severity"))
	assert.Empty(t, String(v, "missing"))

	s := NewExamSubmitted("a1", "S1", 2, 3, true, at)
	assert.Equal(t, 3, s.Payload()["total"])
}
