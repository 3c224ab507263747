// Package proctor converts raw proctoring signals (tab visibility, face counts, head
// direction, context-menu and devtools attempts) into a graduated response:
// log, then warn, then lock.
//
// Every handler checks the terminal lock flag first, under the engine mutex, so events
// delivered after a lock are no-ops regardless of timing.
package proctor

import (
	"fmt"
	"sync"
	"time"

	"exam-proctor-agent/internal/activitylog"
)

type Phase string

const (
	PhaseActive Phase = "active"
	PhaseWarned Phase = "warned"
	PhaseLocked Phase = "locked"
)

const (
	ReasonMultipleTabSwitches = "Multiple tab switches detected"
	ReasonMultipleFaces       = "Multiple faces detected in camera"
)

// ViolationReport is what the remote API receives when an exam locks.
type ViolationReport struct {
	SessionID         string
	Type              string
	Reason            string
	Timestamp         time.Time
	TabSwitchCount    int
	MultiFaceDetected bool
}

// Presenter renders engine decisions to the student.
type Presenter interface {
	ShowWarning(title, message string)
	ShowLock(reason string)
	ShowAdvisory(message string)
}

type Stopper interface{ Stop() }

type Releaser interface{ Release() }

// Reporter must not block; delivery is best effort.
type Reporter interface {
	Report(report ViolationReport)
}

// LockListener is told once when the engine locks (the session controller).
type LockListener interface {
	Locked(reason string)
}

// Effects are the collaborators touched by a lock or a warning. Nil members are skipped.
type Effects struct {
	Timer     Stopper
	Camera    Releaser
	Presenter Presenter
	Reporter  Reporter
	Session   LockListener
}

// State is the session-scoped violation state.
type State struct {
	Phase                      Phase      `json:"phase"`
	TabSwitchCount             int        `json:"tab_switch_count"`
	MaxTabSwitches             int        `json:"max_tab_switches"`
	ExamLocked                 bool       `json:"exam_locked"`
	LockReason                 string     `json:"lock_reason,omitempty"`
	MultiFaceDetected          bool       `json:"multi_face_detected"`
	MultiFaceConsecutiveFrames int        `json:"multi_face_consecutive_frames"`
	MultiFaceWarningIssued     bool       `json:"multi_face_warning_issued"`
	HeadMovementStart          *time.Time `json:"head_movement_start,omitempty"`
	CalibratedCenter           *Point     `json:"calibrated_center,omitempty"`
	LastDirection              Direction  `json:"last_direction,omitempty"`
}

type Engine struct {
	mu        sync.Mutex
	policy    Policy
	log       *activitylog.Log
	effects   Effects
	sessionID string
	now       func() time.Time

	state        State
	head         *HeadTracker
	noFaceActive bool
	gazeReported bool
}

type Option func(*Engine)

// WithClock replaces time.Now, used by tests that need to step through the gaze window.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(policy Policy, log *activitylog.Log, effects Effects, opts ...Option) *Engine {
	if log == nil {
		log = activitylog.New(activitylog.DefaultCapacity, nil)
	}
	e := &Engine{
		policy:  policy,
		log:     log,
		effects: effects,
		now:     time.Now,
		head:    NewHeadTracker(policy),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.state = State{Phase: PhaseActive, MaxTabSwitches: policy.MaxTabSwitches}
	return e
}

// SetEffects swaps collaborators; the runtime wires them after the session starts.
func (e *Engine) SetEffects(effects Effects) {
	e.mu.Lock()
	e.effects = effects
	e.mu.Unlock()
}

func (e *Engine) SetSessionID(id string) {
	e.mu.Lock()
	e.sessionID = id
	e.mu.Unlock()
}

// Reset reinitializes every counter for a new attempt.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = State{Phase: PhaseActive, MaxTabSwitches: e.policy.MaxTabSwitches}
	e.resetFaceLocked()
}

// ResetFaceState clears calibration and face counters without touching tab strikes or the lock.
func (e *Engine) ResetFaceState() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetFaceLocked()
}

func (e *Engine) resetFaceLocked() {
	e.head.Reset()
	e.state.MultiFaceConsecutiveFrames = 0
	e.state.MultiFaceWarningIssued = false
	e.state.HeadMovementStart = nil
	e.state.CalibratedCenter = nil
	e.state.LastDirection = ""
	e.noFaceActive = false
	e.gazeReported = false
}

func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.state
	if s.HeadMovementStart != nil {
		t := *s.HeadMovementStart
		s.HeadMovementStart = &t
	}
	s.CalibratedCenter = e.head.Center()
	return s
}

func (e *Engine) Locked() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.ExamLocked
}

// RecordTabHidden counts a tab switch: the first one warns, one beyond the allowance locks.
func (e *Engine) RecordTabHidden() {
	e.mu.Lock()
	if e.state.ExamLocked {
		e.mu.Unlock()
		return
	}
	e.state.TabSwitchCount++
	count := e.state.TabSwitchCount
	lock := count > e.policy.MaxTabSwitches
	if !lock && e.state.Phase == PhaseActive {
		e.state.Phase = PhaseWarned
	}
	presenter := e.effects.Presenter
	e.mu.Unlock()

	switch {
	case lock:
		e.log.Error("Multiple tab switches detected! Exam locked due to security violation.")
		e.Lock(ReasonMultipleTabSwitches)
	case count == 1:
		e.log.Warn("Tab switching detected! This is your first warning. Next violation will lock the exam.")
		if presenter != nil {
			presenter.ShowWarning("Tab Switching Detected",
				"You have switched tabs during the exam. This is your first warning. Any further tab switching will result in exam termination.")
		}
	default:
		left := e.policy.MaxTabSwitches - count
		e.log.Warn(fmt.Sprintf("Tab switching detected again. %d switch(es) left before the exam locks.", left))
	}
}

// RecordVisible notes the page becoming visible again.
func (e *Engine) RecordVisible() {
	if e.Locked() {
		return
	}
	e.log.Info("Tab is visible again")
}

// RecordBlur notes a window blur; it only counts as a strike when the policy says so.
func (e *Engine) RecordBlur() {
	if e.Locked() {
		return
	}
	e.log.Warn("Window lost focus")
	if e.policy.BlurCountsAsTabSwitch {
		e.RecordTabHidden()
	}
}

func (e *Engine) RecordFocus() {
	if e.Locked() {
		return
	}
	e.log.Info("Window gained focus")
}

// RecordContextMenu logs a right-click. The return value tells the host to prevent
// the browser default; it is true even after the lock.
func (e *Engine) RecordContextMenu() bool {
	e.log.Warn("Right-click prevented")
	return true
}

// RecordDevtools logs a developer-tools key combination such as "Ctrl+Shift+I".
func (e *Engine) RecordDevtools(combo string) bool {
	e.log.Warn(fmt.Sprintf("Developer tools shortcut blocked (%s)", combo))
	return true
}

// RecordFrame applies one face-landmark result: faceCount faces were seen and primary
// holds the first face's landmarks (nil when none). It returns the derived head direction,
// or "" when no direction was derived.
func (e *Engine) RecordFrame(faceCount int, primary Landmarks) Direction {
	e.mu.Lock()
	if e.state.ExamLocked {
		e.mu.Unlock()
		return ""
	}

	var (
		warnFaces bool
		lockFaces bool
		noFace    bool
		notes     []note
		dir       Direction
		gazeHit   bool
	)

	switch {
	case faceCount > 1:
		e.noFaceActive = false
		e.state.MultiFaceConsecutiveFrames++
		n := e.state.MultiFaceConsecutiveFrames
		if !e.state.MultiFaceWarningIssued && n >= e.policy.MultiFaceWarnFrames {
			e.state.MultiFaceWarningIssued = true
			e.state.MultiFaceDetected = true
			if e.state.Phase == PhaseActive {
				e.state.Phase = PhaseWarned
			}
			warnFaces = true
		}
		if n >= e.policy.MultiFaceLockFrames {
			e.state.MultiFaceDetected = true
			lockFaces = true
		}
	case faceCount == 0:
		e.state.MultiFaceConsecutiveFrames = 0
		e.state.HeadMovementStart = nil
		if !e.noFaceActive {
			e.noFaceActive = true
			noFace = true
		}
	default:
		e.noFaceActive = false
		e.state.MultiFaceConsecutiveFrames = 0
	}

	if !lockFaces && faceCount > 0 && e.head.Usable(primary) {
		dir, notes, gazeHit = e.trackHeadLocked(primary)
	}

	presenter := e.effects.Presenter
	gazeLock := gazeHit && e.policy.GazeAction == GazeLock
	e.mu.Unlock()

	if warnFaces {
		e.log.Warn(fmt.Sprintf("Multiple faces detected (%d)! Warning issued.", faceCount))
		if presenter != nil {
			presenter.ShowWarning("Multiple Faces Detected",
				"More than one face is visible in the camera. The exam will be locked if this continues.")
		}
	}
	if lockFaces {
		e.log.Error("Multiple faces detected in camera! Exam locked due to security violation.")
		e.Lock(ReasonMultipleFaces)
		return ""
	}
	if noFace {
		e.log.Warn("No face detected in camera view.")
		if presenter != nil {
			presenter.ShowAdvisory("No face detected in camera view.")
		}
	}
	for _, n := range notes {
		e.log.Append(n.message, n.severity)
	}
	if gazeHit {
		msg := fmt.Sprintf("Sustained suspicious head movement (%s).", dir)
		if presenter != nil {
			presenter.ShowAdvisory(msg)
		}
		if gazeLock {
			e.Lock(msg)
		}
	}
	return dir
}

type note struct {
	message  string
	severity activitylog.Severity
}

// trackHeadLocked runs head tracking and the sustained-gaze timer. Caller holds e.mu.
func (e *Engine) trackHeadLocked(primary Landmarks) (Direction, []note, bool) {
	var notes []note
	obs := e.head.Observe(primary)
	if obs.Calibrated {
		notes = append(notes, note{"Head movement calibration complete", activitylog.SeverityInfo})
	}
	if obs.Direction == DirectionCalibrating {
		return obs.Direction, notes, false
	}
	e.state.LastDirection = obs.Direction
	if obs.Changed {
		notes = append(notes, note{fmt.Sprintf("Head movement: %s", obs.Direction), activitylog.SeverityInfo})
	}

	if !obs.Direction.Suspicious() {
		e.state.HeadMovementStart = nil
		if obs.Direction == DirectionNeutral {
			e.gazeReported = false
		}
		return obs.Direction, notes, false
	}
	if e.gazeReported {
		return obs.Direction, notes, false
	}

	now := e.now()
	if e.state.HeadMovementStart == nil {
		e.state.HeadMovementStart = &now
		notes = append(notes, note{fmt.Sprintf("Suspicious movement detected: %s.", obs.Direction), activitylog.SeverityWarning})
		return obs.Direction, notes, false
	}
	if now.Sub(*e.state.HeadMovementStart) < e.policy.SustainedGaze {
		return obs.Direction, notes, false
	}

	e.state.HeadMovementStart = nil
	e.gazeReported = true
	notes = append(notes, note{fmt.Sprintf("Violation: sustained suspicious head movement (%s).", obs.Direction), activitylog.SeverityWarning})
	return obs.Direction, notes, true
}

// Lock halts the exam. Only the first call has effects; it returns whether this call locked.
// The lock modal is presented before the violation report is handed off, and the report
// never blocks the caller.
func (e *Engine) Lock(reason string) bool {
	e.mu.Lock()
	if e.state.ExamLocked {
		e.mu.Unlock()
		return false
	}
	e.state.ExamLocked = true
	e.state.Phase = PhaseLocked
	e.state.LockReason = reason
	e.state.HeadMovementStart = nil
	report := ViolationReport{
		SessionID:         e.sessionID,
		Type:              "exam_locked",
		Reason:            reason,
		Timestamp:         e.now().UTC(),
		TabSwitchCount:    e.state.TabSwitchCount,
		MultiFaceDetected: e.state.MultiFaceDetected,
	}
	fx := e.effects
	e.mu.Unlock()

	if fx.Timer != nil {
		fx.Timer.Stop()
	}
	if fx.Camera != nil {
		fx.Camera.Release()
	}
	if fx.Presenter != nil {
		fx.Presenter.ShowLock(reason)
	}
	e.log.Error(fmt.Sprintf("Test Locked: %s", reason))
	if fx.Session != nil {
		fx.Session.Locked(reason)
	}
	if fx.Reporter != nil {
		fx.Reporter.Report(report)
	}
	return true
}
