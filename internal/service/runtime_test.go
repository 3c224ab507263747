package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"exam-proctor-agent/internal/activitylog"
	"exam-proctor-agent/internal/capture"
	"exam-proctor-agent/internal/dto"
	"exam-proctor-agent/internal/exam"
	"exam-proctor-agent/internal/facemesh"
	"exam-proctor-agent/internal/proctor"
	"exam-proctor-agent/internal/websocket"
	"exam-proctor-agent/pkg/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signal(kind string, data any) dto.Envelope {
	env := dto.Envelope{Type: kind}
	if data != nil {
		env.Data, _ = json.Marshal(data)
	}
	return env
}

func startedRuntime(t *testing.T, h *harness) *Runtime {
	t.Helper()
	r := NewRuntime(h.deps, "a1", "stu-1", "T1")
	t.Cleanup(r.Close)
	require.NoError(t, r.Start(context.Background(), ""))
	require.Equal(t, exam.PhaseInProgress, r.Exam().Phase())
	return r
}

func TestStartCapturesSelfieFromStream(t *testing.T) {
	h := newHarness()
	r := startedRuntime(t, h)

	assert.Equal(t, "data:image/png;base64,AA==", h.api.selfie)
	assert.Equal(t, "S1", r.Exam().SessionID())
	assert.True(t, r.Adapter().Stats().Running)
	assert.Equal(t, "00:10:00", r.TimeLeft())

	kinds := h.bridge.kinds()
	assert.Subset(t, kinds, []string{capture.KindCameraOpen, capture.KindSurfaceAttach, capture.KindCameraSnapshot, dto.MessagePhase})
	assert.Eventually(t, func() bool { return h.events.has(events.TypeAttemptStarted) }, time.Second, 5*time.Millisecond)

	// A second start is rejected before touching the camera.
	assert.ErrorIs(t, r.Start(context.Background(), ""), exam.ErrWrongPhase)
}

func TestStartUsesProvidedSelfie(t *testing.T) {
	h := newHarness()
	r := NewRuntime(h.deps, "a1", "stu-1", "T1")
	defer r.Close()

	require.NoError(t, r.Start(context.Background(), "data:image/jpeg;base64,ZZ"))
	assert.Equal(t, "data:image/jpeg;base64,ZZ", h.api.selfie)
	assert.NotContains(t, h.bridge.kinds(), capture.KindCameraSnapshot)
}

func TestStartCameraFailureAborts(t *testing.T) {
	tests := []struct {
		name    string
		domName string
		want    string
	}{
		{"denied", "NotAllowedError", "Camera access denied. Allow camera access in the browser and try again."},
		{"no device", "NotFoundError", "No camera found. Connect a camera and try again."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.bridge.replies[capture.KindCameraOpen] = func() (json.RawMessage, error) {
				return nil, &websocket.ReplyError{Name: tt.domName}
			}
			r := NewRuntime(h.deps, "a1", "stu-1", "T1")
			defer r.Close()

			err := r.Start(context.Background(), "")
			require.Error(t, err)
			assert.Equal(t, exam.PhaseAborted, r.Exam().Phase())

			var messages []string
			for _, e := range r.Log().Entries() {
				if e.Severity == activitylog.SeverityError {
					messages = append(messages, e.Message)
				}
			}
			assert.Contains(t, messages, tt.want)
		})
	}
}

func TestLockDuringCameraPromptKeepsCameraOff(t *testing.T) {
	h := newHarness()
	r := NewRuntime(h.deps, "a1", "stu-1", "T1")
	defer r.Close()

	// The student switches tabs twice while the permission prompt is open.
	h.bridge.replies[capture.KindCameraOpen] = func() (json.RawMessage, error) {
		_, _ = r.Signal(signal(dto.SignalHidden, nil))
		_, _ = r.Signal(signal(dto.SignalHidden, nil))
		return json.RawMessage(`{"stream_id":"s1"}`), nil
	}

	err := r.Start(context.Background(), "")
	assert.ErrorIs(t, err, capture.ErrReleased)
	assert.Equal(t, exam.PhaseLocked, r.Exam().Phase())
	assert.True(t, r.Engine().Locked())
	assert.False(t, r.camera.Active())
	assert.False(t, r.Adapter().Stats().Running)

	kinds := h.bridge.kinds()
	assert.Contains(t, kinds, capture.KindCameraStop)
	assert.NotContains(t, kinds, capture.KindSurfaceAttach)
	assert.NotContains(t, kinds, capture.KindCameraSnapshot)

	h.api.mu.Lock()
	assert.Empty(t, h.api.selfie)
	h.api.mu.Unlock()
}

func TestFailedBeginReleasesCamera(t *testing.T) {
	h := newHarness()
	h.api.startErr = errors.New("platform down")
	r := NewRuntime(h.deps, "a1", "stu-1", "T1")
	defer r.Close()

	require.Error(t, r.Start(context.Background(), "data:image/jpeg;base64,ZZ"))
	assert.False(t, r.camera.Active())
	assert.False(t, r.Adapter().Stats().Running)
	assert.Contains(t, h.bridge.kinds(), capture.KindCameraStop)
}

func TestStartResetsEarlierStrikes(t *testing.T) {
	h := newHarness()
	r := NewRuntime(h.deps, "a1", "stu-1", "T1")
	defer r.Close()

	_, err := r.Signal(signal(dto.SignalHidden, nil))
	require.NoError(t, err)
	require.Equal(t, 1, r.Engine().Snapshot().TabSwitchCount)

	require.NoError(t, r.Start(context.Background(), ""))
	assert.Equal(t, 0, r.Engine().Snapshot().TabSwitchCount)
}

func TestRecalibrateClearsFaceState(t *testing.T) {
	h := newHarness()
	r := startedRuntime(t, h)

	frame := map[string]any{"width": 64, "height": 48, "faces": [][]proctor.Point{{{X: 0.5, Y: 0.5}}}}
	for i := 0; i < 3; i++ {
		_, err := r.Signal(signal(dto.SignalFrame, frame))
		require.NoError(t, err)
	}
	require.Equal(t, uint64(3), r.Adapter().Stats().Frames)

	_, err := r.Signal(signal(dto.SignalRecalibrate, nil))
	require.NoError(t, err)
	assert.Zero(t, r.Adapter().Stats().Frames)
	assert.True(t, r.Adapter().Stats().Running)
	assert.Nil(t, r.Engine().Snapshot().CalibratedCenter)
}

func TestOversizedFrameIsRejected(t *testing.T) {
	h := newHarness()
	r := startedRuntime(t, h)

	_, err := r.Signal(signal(dto.SignalFrame, map[string]any{"width": 200000, "height": 200000}))
	assert.ErrorIs(t, err, facemesh.ErrInvalidFrame)
	assert.Equal(t, uint64(1), r.Adapter().Stats().Skipped)
}

func TestTabSwitchesWarnThenLock(t *testing.T) {
	h := newHarness()
	r := startedRuntime(t, h)

	prevent, err := r.Signal(signal(dto.SignalHidden, nil))
	require.NoError(t, err)
	assert.False(t, prevent)
	warning, ok := h.bridge.last(dto.MessageWarning)
	require.True(t, ok)
	assert.Equal(t, "Tab Switching Detected", warning.(dto.WarningMessage).Title)

	_, err = r.Signal(signal(dto.SignalHidden, nil))
	require.NoError(t, err)

	assert.Equal(t, exam.PhaseLocked, r.Exam().Phase())
	lock, ok := h.bridge.last(dto.MessageLock)
	require.True(t, ok)
	assert.Equal(t, proctor.ReasonMultipleTabSwitches, lock.(dto.LockMessage).Reason)
	assert.Contains(t, h.bridge.kinds(), capture.KindCameraStop)
	assert.False(t, r.Adapter().Stats().Running)

	h.telemetry.mu.Lock()
	require.Len(t, h.telemetry.reports, 1)
	report := h.telemetry.reports[0]
	h.telemetry.mu.Unlock()
	assert.Equal(t, "S1", report.SessionID)
	assert.Equal(t, 2, report.TabSwitchCount)

	assert.Eventually(t, func() bool { return h.events.has(events.TypeExamLocked) }, time.Second, 5*time.Millisecond)

	// Later signals are no-ops.
	_, err = r.Signal(signal(dto.SignalHidden, nil))
	require.NoError(t, err)
	assert.Equal(t, 2, r.Engine().Snapshot().TabSwitchCount)
}

func TestMultipleFacesLockThroughFrames(t *testing.T) {
	h := newHarness()
	r := startedRuntime(t, h)

	face := []proctor.Point{{X: 0.5, Y: 0.5}, {X: 0.5, Y: 0.55}}
	frame := map[string]any{"width": 64, "height": 48, "faces": [][]proctor.Point{face, face}}
	for i := 0; i < 5; i++ {
		_, err := r.Signal(signal(dto.SignalFrame, frame))
		require.NoError(t, err)
	}

	assert.Equal(t, exam.PhaseLocked, r.Exam().Phase())
	h.telemetry.mu.Lock()
	require.Len(t, h.telemetry.reports, 1)
	assert.True(t, h.telemetry.reports[0].MultiFaceDetected)
	h.telemetry.mu.Unlock()

	// The adapter stopped with the camera, so further frames are dropped.
	_, err := r.Signal(signal(dto.SignalFrame, frame))
	assert.ErrorIs(t, err, facemesh.ErrNotRunning)
}

func TestPreventSignals(t *testing.T) {
	h := newHarness()
	r := startedRuntime(t, h)

	prevent, err := r.Signal(signal(dto.SignalContextMenu, nil))
	require.NoError(t, err)
	assert.True(t, prevent)

	prevent, err = r.Signal(signal(dto.SignalDevtools, dto.DevtoolsSignal{Combo: "Ctrl+Shift+I"}))
	require.NoError(t, err)
	assert.True(t, prevent)
	assert.Equal(t, 0, r.Engine().Snapshot().TabSwitchCount)

	_, err = r.Signal(signal("mouse.move", nil))
	assert.ErrorIs(t, err, ErrUnknownSignal)
}

func TestActivityEntriesAreShippedOnceSessionStarted(t *testing.T) {
	h := newHarness()
	r := startedRuntime(t, h)

	r.Log().Warn("Window lost focus")
	shipped := h.telemetry.logsOfType(string(activitylog.SeverityWarning))
	require.NotEmpty(t, shipped)
	assert.Equal(t, "S1", shipped[len(shipped)-1].SessionId)
	assert.Equal(t, "Window lost focus", shipped[len(shipped)-1].LogMessage)

	// "Requesting camera access..." was logged before the session existed.
	for _, l := range h.telemetry.logsOfType(string(activitylog.SeverityInfo)) {
		assert.NotEqual(t, "Requesting camera access...", l.LogMessage)
	}
}

func TestAppealOnlyOnceAndOnlyWhenLocked(t *testing.T) {
	h := newHarness()
	r := startedRuntime(t, h)

	assert.ErrorIs(t, r.Appeal("network glitch"), ErrNotLocked)

	r.Engine().Lock(proctor.ReasonMultipleTabSwitches)
	require.NoError(t, r.Appeal("my sibling walked in"))
	assert.ErrorIs(t, r.Appeal("again"), ErrAppealSent)

	appeals := h.telemetry.logsOfType(LogTypeAppeal)
	require.Len(t, appeals, 1)
	assert.Equal(t, dto.LogEventRequest{SessionId: "S1", LogType: LogTypeAppeal, LogMessage: "my sibling walked in"}, appeals[0])
}

func TestHelpNeedsSession(t *testing.T) {
	h := newHarness()
	r := NewRuntime(h.deps, "a1", "stu-1", "T1")
	defer r.Close()
	assert.ErrorIs(t, r.Help("stuck"), ErrNoSession)

	require.NoError(t, r.Start(context.Background(), ""))
	require.NoError(t, r.Help(""))
	helps := h.telemetry.logsOfType(LogTypeHelp)
	require.Len(t, helps, 1)
	assert.Equal(t, "Student requested help", helps[0].LogMessage)
}

func TestSummaryAfterSubmit(t *testing.T) {
	h := newHarness()
	r := startedRuntime(t, h)

	_, err := r.Summary(context.Background())
	assert.ErrorIs(t, err, exam.ErrWrongPhase)

	require.NoError(t, r.Exam().RequestEnd(nil))
	require.NoError(t, r.Exam().Confirm(context.Background()))
	assert.Equal(t, exam.PhaseSubmitted, r.Exam().Phase())

	summary, err := r.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Networks", summary.ExamName)
	assert.Eventually(t, func() bool { return h.events.has(events.TypeExamSubmitted) }, time.Second, 5*time.Millisecond)
}

func TestCloseIsIdempotent(t *testing.T) {
	h := newHarness()
	r := startedRuntime(t, h)
	r.Close()
	r.Close()

	stops := 0
	for _, k := range h.bridge.kinds() {
		if k == capture.KindCameraStop {
			stops++
		}
	}
	assert.Equal(t, 1, stops)
}
