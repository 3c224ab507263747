// Package exam drives one attempt from selfie verification to submission.
package exam

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"exam-proctor-agent/internal/activitylog"
	"exam-proctor-agent/internal/dto"
	"exam-proctor-agent/internal/proctor"
)

type Phase string

const (
	PhaseSelfieVerification Phase = "selfie_verification"
	PhaseSessionStarting    Phase = "session_starting"
	PhaseInProgress         Phase = "in_progress"
	PhaseSubmitting         Phase = "submitting"
	PhaseSubmitted          Phase = "submitted"
	PhaseLocked             Phase = "locked"
	PhaseAborted            Phase = "aborted"
)

// Terminal reports whether no further transition is possible.
func (p Phase) Terminal() bool {
	return p == PhaseSubmitted || p == PhaseLocked || p == PhaseAborted
}

var (
	ErrWrongPhase       = errors.New("operation not allowed in current phase")
	ErrNoSelfie         = errors.New("selfie capture failed")
	ErrOutOfRange       = errors.New("question index out of range")
	ErrSubmitInFlight   = errors.New("submission already in progress")
	ErrAlreadySubmitted = errors.New("exam already submitted")
)

// API is the subset of the platform the controller needs.
type API interface {
	StartExam(ctx context.Context, studentID, testID string) (string, error)
	UploadSelfie(ctx context.Context, sessionID, dataURL string) error
	ExamDetails(ctx context.Context, testID string) (*dto.ExamDetails, error)
	SubmitExam(ctx context.Context, sessionID string, answers []dto.SubmittedAnswer) error
}

type Timer interface {
	Start(seconds int)
	Stop()
}

// Hooks are optional; callbacks run outside the controller lock.
type Hooks struct {
	Timer   Timer
	Camera  proctor.Releaser
	OnPhase func(phase Phase, err error)
	// OnStarted fires once the platform issued a session id and the questions loaded.
	OnStarted func(sessionID string, details *dto.ExamDetails)
}

type Status struct {
	Phase     Phase  `json:"phase"`
	StudentId string `json:"student_id"`
	TestId    string `json:"test_id"`
	SessionId string `json:"session_id,omitempty"`
	ExamName  string `json:"exam_name,omitempty"`
	Current   int    `json:"current"`
	Total     int    `json:"total"`
	Answered  int    `json:"answered"`
	Error     string `json:"error,omitempty"`
}

type Controller struct {
	mu    sync.Mutex
	api   API
	log   *activitylog.Log
	hooks Hooks

	studentID string
	testID    string
	sessionID string
	details   *dto.ExamDetails

	phase    Phase
	current  int
	answers  []*string
	inFlight bool
	lastErr  error
}

func NewController(api API, log *activitylog.Log, studentID, testID string, hooks Hooks) *Controller {
	if log == nil {
		log = activitylog.New(activitylog.DefaultCapacity, nil)
	}
	return &Controller{
		api:       api,
		log:       log,
		hooks:     hooks,
		studentID: studentID,
		testID:    testID,
		phase:     PhaseSelfieVerification,
	}
}

// SetHooks replaces the hooks; used when collaborators are built after the controller.
func (c *Controller) SetHooks(h Hooks) {
	c.mu.Lock()
	c.hooks = h
	c.mu.Unlock()
}

func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		Phase:     c.phase,
		StudentId: c.studentID,
		TestId:    c.testID,
		SessionId: c.sessionID,
		Current:   c.current,
		Total:     len(c.answers),
	}
	if c.details != nil {
		st.ExamName = c.details.Name
	}
	for _, a := range c.answers {
		if a != nil {
			st.Answered++
		}
	}
	if c.lastErr != nil {
		st.Error = c.lastErr.Error()
	}
	return st
}

// Begin runs selfie verification: start the session, upload the still frame, load
// the questions. Any failure aborts the attempt; nothing is retried.
func (c *Controller) Begin(ctx context.Context, selfie string) error {
	c.mu.Lock()
	if c.phase != PhaseSelfieVerification {
		c.mu.Unlock()
		return ErrWrongPhase
	}
	c.phase = PhaseSessionStarting
	studentID, testID, hooks := c.studentID, c.testID, c.hooks
	c.mu.Unlock()
	c.notify(hooks, PhaseSessionStarting, nil)

	if strings.TrimSpace(selfie) == "" {
		return c.abort(ErrNoSelfie)
	}

	sessionID, err := c.api.StartExam(ctx, studentID, testID)
	if err != nil {
		return c.abort(fmt.Errorf("start session: %w", err))
	}
	c.log.Info(fmt.Sprintf("Session started: %s", sessionID))

	if err := c.api.UploadSelfie(ctx, sessionID, selfie); err != nil {
		return c.abort(fmt.Errorf("upload selfie: %w", err))
	}
	c.log.Success("Selfie verified")

	details, err := c.api.ExamDetails(ctx, testID)
	if err != nil {
		return c.abort(fmt.Errorf("load exam details: %w", err))
	}

	c.mu.Lock()
	if c.phase != PhaseSessionStarting {
		// locked while starting
		c.mu.Unlock()
		return ErrWrongPhase
	}
	c.sessionID = sessionID
	c.details = details
	c.answers = make([]*string, len(details.Questions))
	c.current = 0
	c.phase = PhaseInProgress
	hooks = c.hooks
	c.mu.Unlock()

	c.log.Info(fmt.Sprintf("Exam started: %s (%d questions)", details.Name, len(details.Questions)))
	if hooks.Timer != nil {
		hooks.Timer.Start(details.DurationSeconds)
		c.log.Info("Exam timer started")
	}
	if hooks.OnStarted != nil {
		hooks.OnStarted(sessionID, details)
	}
	c.notify(hooks, PhaseInProgress, nil)
	return nil
}

// Abort ends an attempt that could not start, e.g. when the camera was refused.
func (c *Controller) Abort(err error) error { return c.abort(err) }

func (c *Controller) abort(err error) error {
	c.mu.Lock()
	if c.phase.Terminal() {
		c.mu.Unlock()
		return err
	}
	c.phase = PhaseAborted
	c.lastErr = err
	hooks := c.hooks
	c.mu.Unlock()

	c.log.Error(fmt.Sprintf("Could not start exam: %v", err))
	if hooks.Camera != nil {
		hooks.Camera.Release()
	}
	c.notify(hooks, PhaseAborted, err)
	return err
}

// Current renders the question being viewed.
func (c *Controller) Current() (dto.QuestionView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.details == nil {
		return dto.QuestionView{}, ErrWrongPhase
	}
	q := c.details.Questions[c.current]
	return dto.QuestionView{
		Index:   c.current,
		Total:   len(c.details.Questions),
		Text:    q.Text,
		Type:    q.Type,
		Options: q.Options,
		Answer:  c.answers[c.current],
		IsLast:  c.current == len(c.details.Questions)-1,
		Phase:   string(c.phase),
	}, nil
}

// Answer stores draft for the current question. A nil draft keeps the stored answer;
// a blank draft clears it.
func (c *Controller) Answer(draft *string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseInProgress {
		return ErrWrongPhase
	}
	c.saveLocked(draft)
	return nil
}

func (c *Controller) saveLocked(draft *string) {
	if draft == nil {
		return
	}
	if strings.TrimSpace(*draft) == "" {
		c.answers[c.current] = nil
		return
	}
	v := *draft
	c.answers[c.current] = &v
}

// Next persists draft and moves forward; on the last question it requests the end.
func (c *Controller) Next(draft *string) error {
	c.mu.Lock()
	if c.phase != PhaseInProgress {
		c.mu.Unlock()
		return ErrWrongPhase
	}
	c.saveLocked(draft)
	if c.current == len(c.answers)-1 {
		c.mu.Unlock()
		return c.RequestEnd(nil)
	}
	c.current++
	c.mu.Unlock()
	return nil
}

func (c *Controller) Prev(draft *string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseInProgress {
		return ErrWrongPhase
	}
	c.saveLocked(draft)
	if c.current > 0 {
		c.current--
	}
	return nil
}

func (c *Controller) Goto(index int, draft *string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseInProgress {
		return ErrWrongPhase
	}
	if index < 0 || index >= len(c.answers) {
		return ErrOutOfRange
	}
	c.saveLocked(draft)
	c.current = index
	return nil
}

// RequestEnd opens the confirmation modal.
func (c *Controller) RequestEnd(draft *string) error {
	c.mu.Lock()
	if c.phase != PhaseInProgress {
		c.mu.Unlock()
		return ErrWrongPhase
	}
	c.saveLocked(draft)
	c.phase = PhaseSubmitting
	c.lastErr = nil
	hooks := c.hooks
	c.mu.Unlock()

	c.log.Info("Student clicked End Exam, showing confirmation")
	c.notify(hooks, PhaseSubmitting, nil)
	return nil
}

// Cancel closes the confirmation modal. Timer and camera keep running.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	if c.phase != PhaseSubmitting || c.inFlight {
		c.mu.Unlock()
		return ErrWrongPhase
	}
	c.phase = PhaseInProgress
	hooks := c.hooks
	c.mu.Unlock()

	c.log.Info("Exam submission cancelled")
	c.notify(hooks, PhaseInProgress, nil)
	return nil
}

// Confirm submits the answers once. On failure the attempt returns to InProgress and
// the error is surfaced; the student retries by confirming again.
func (c *Controller) Confirm(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.phase == PhaseSubmitted:
		c.mu.Unlock()
		return ErrAlreadySubmitted
	case c.inFlight:
		c.mu.Unlock()
		return ErrSubmitInFlight
	case c.phase != PhaseSubmitting:
		c.mu.Unlock()
		return ErrWrongPhase
	}
	c.inFlight = true
	c.mu.Unlock()

	c.log.Info("Exam submission confirmed")
	return c.submit(ctx)
}

// Expire is the timer reaching zero: submit without the confirmation modal.
func (c *Controller) Expire(ctx context.Context) error {
	c.mu.Lock()
	if c.inFlight || (c.phase != PhaseInProgress && c.phase != PhaseSubmitting) {
		c.mu.Unlock()
		return nil
	}
	c.inFlight = true
	c.phase = PhaseSubmitting
	hooks := c.hooks
	c.mu.Unlock()

	c.log.Warn("Time's up! Submitting exam automatically")
	c.notify(hooks, PhaseSubmitting, nil)
	return c.submit(ctx)
}

// submit is entered with inFlight set.
func (c *Controller) submit(ctx context.Context) error {
	c.mu.Lock()
	sessionID := c.sessionID
	payload := c.submissionLocked()
	c.mu.Unlock()

	c.log.Info("Submitting exam data")
	err := c.api.SubmitExam(ctx, sessionID, payload)

	c.mu.Lock()
	c.inFlight = false
	hooks := c.hooks
	if c.phase == PhaseLocked {
		c.mu.Unlock()
		if err == nil {
			c.log.Warn("Answers were submitted after the exam locked")
		}
		return err
	}
	if err != nil {
		c.phase = PhaseInProgress
		c.lastErr = err
		c.mu.Unlock()
		c.log.Error(fmt.Sprintf("Submission failed: %v", err))
		c.notify(hooks, PhaseInProgress, err)
		return err
	}
	c.phase = PhaseSubmitted
	c.lastErr = nil
	c.mu.Unlock()

	if hooks.Timer != nil {
		hooks.Timer.Stop()
	}
	if hooks.Camera != nil {
		hooks.Camera.Release()
	}
	c.log.Success("Exam submitted successfully")
	c.notify(hooks, PhaseSubmitted, nil)
	return nil
}

// Locked moves the attempt to its terminal locked phase; the policy engine already
// stopped the timer and camera.
func (c *Controller) Locked(reason string) {
	c.mu.Lock()
	if c.phase.Terminal() {
		c.mu.Unlock()
		return
	}
	c.phase = PhaseLocked
	c.lastErr = errors.New(reason)
	hooks := c.hooks
	c.mu.Unlock()

	c.notify(hooks, PhaseLocked, nil)
}

// Submission is the payload for the platform: one entry per question in order, keyed
// by question text, null when unanswered.
func (c *Controller) Submission() []dto.SubmittedAnswer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submissionLocked()
}

func (c *Controller) submissionLocked() []dto.SubmittedAnswer {
	if c.details == nil {
		return nil
	}
	out := make([]dto.SubmittedAnswer, len(c.details.Questions))
	for i, q := range c.details.Questions {
		out[i] = dto.SubmittedAnswer{QuestionText: q.Text}
		if a := c.answers[i]; a != nil {
			v := *a
			out[i].Answer = &v
		}
	}
	return out
}

func (c *Controller) notify(h Hooks, p Phase, err error) {
	if h.OnPhase != nil {
		h.OnPhase(p, err)
	}
}
