package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"exam-proctor-agent/internal/activitylog"
	"exam-proctor-agent/internal/capture"
	"exam-proctor-agent/internal/config"
	"exam-proctor-agent/internal/dto"
	"exam-proctor-agent/internal/exam"
	"exam-proctor-agent/internal/facemesh"
	"exam-proctor-agent/internal/pkg/logger"
	"exam-proctor-agent/internal/proctor"
	"exam-proctor-agent/internal/timer"
	"exam-proctor-agent/pkg/events"
)

var (
	ErrUnknownSignal = errors.New("unknown signal type")
	ErrNotLocked     = errors.New("appeals are only accepted for a locked exam")
	ErrAppealSent    = errors.New("an appeal was already sent for this exam")
	ErrNoSession     = errors.New("exam session has not started")
)

// WebcamElement is the page's video element the stream is attached to.
const WebcamElement = "webcam"

// PageBridge reaches the exam page of one attempt; *websocket.Hub satisfies it.
type PageBridge interface {
	capture.Bridge
}

// RuntimeAPI is the platform surface a running attempt needs.
type RuntimeAPI interface {
	exam.API
	SubmissionSummary(ctx context.Context, sessionID string) (*dto.SubmissionSummary, error)
}

// Telemetry queues best-effort deliveries; *TelemetryQueue satisfies it.
type Telemetry interface {
	proctor.Reporter
	ShipLog(sessionID, logType, message string)
}

// EventPublisher emits domain events; *nats.Publisher satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type RuntimeDeps struct {
	Config    *config.Config
	API       RuntimeAPI
	Bridge    PageBridge
	Telemetry Telemetry
	Events    EventPublisher
	Logger    logger.ILogger
}

// Runtime is one exam attempt: policy engine, landmark adapter, camera, timer and
// session controller wired together and bound to the attempt's page.
type Runtime struct {
	AttemptID string
	StudentID string
	TestID    string
	CreatedAt time.Time

	cfg       *config.Config
	api       RuntimeAPI
	bridge    PageBridge
	telemetry Telemetry
	events    EventPublisher
	logger    logger.ILogger

	log     *activitylog.Log
	engine  *proctor.Engine
	overlay *facemesh.RasterOverlay
	adapter *facemesh.Adapter
	device  *capture.BridgeDevice
	surface capture.Surface
	camera  *capture.Manager
	timer   *timer.Countdown
	exam    *exam.Controller

	mu       sync.Mutex
	appealed bool
	expired  atomic.Bool
	closed   atomic.Bool
}

func NewRuntime(deps RuntimeDeps, attemptID, studentID, testID string) *Runtime {
	cfg := deps.Config
	r := &Runtime{
		AttemptID: attemptID,
		StudentID: studentID,
		TestID:    testID,
		CreatedAt: time.Now(),
		cfg:       cfg,
		api:       deps.API,
		bridge:    deps.Bridge,
		telemetry: deps.Telemetry,
		events:    deps.Events,
		logger:    deps.Logger,
	}

	r.log = activitylog.New(activitylog.DefaultCapacity, deps.Logger)
	r.engine = proctor.NewEngine(proctor.PolicyFromConfig(cfg.Proctor), r.log, proctor.Effects{})
	r.overlay = facemesh.NewRasterOverlay()
	r.adapter = facemesh.NewAdapter(r.overlay, r.engine)

	r.device = capture.NewBridgeDevice(deps.Bridge, attemptID)
	r.surface = capture.NewRemoteSurface(deps.Bridge, attemptID, WebcamElement)
	r.camera = capture.NewManager(r.device)
	r.camera.Observe(r.adapter)

	r.timer = timer.New(cfg.Proctor.TimerTick)
	r.timer.OnTick(r.onTick)
	r.timer.OnExpire(r.onExpire)

	r.exam = exam.NewController(deps.API, r.log, studentID, testID, exam.Hooks{
		Timer:     r.timer,
		Camera:    r.camera,
		OnPhase:   r.onPhase,
		OnStarted: r.onStarted,
	})

	r.engine.SetEffects(proctor.Effects{
		Timer:     r.timer,
		Camera:    r.camera,
		Presenter: r,
		Reporter:  r,
		Session:   r.exam,
	})

	r.log.Subscribe(r.onEntry)
	return r
}

func (r *Runtime) Exam() *exam.Controller { return r.exam }
func (r *Runtime) Engine() *proctor.Engine { return r.engine }
func (r *Runtime) Log() *activitylog.Log { return r.log }
func (r *Runtime) Adapter() *facemesh.Adapter { return r.adapter }
func (r *Runtime) Overlay() *facemesh.RasterOverlay { return r.overlay }

// TimeLeft renders the countdown as HH:MM:SS.
func (r *Runtime) TimeLeft() string { return timer.Format(r.timer.Remaining()) }

// Start runs selfie verification: camera, still frame, then session start.
// An empty selfie is captured from the live stream.
func (r *Runtime) Start(ctx context.Context, selfie string) error {
	if r.exam.Phase() != exam.PhaseSelfieVerification {
		return exam.ErrWrongPhase
	}

	// Fresh counters for this attempt: security strikes and face calibration.
	r.engine.Reset()
	r.adapter.Reset()

	r.log.Info("Requesting camera access...")
	camCtx, cancel := context.WithTimeout(ctx, r.cfg.Proctor.CameraTimeout)
	defer cancel()

	if err := r.camera.Acquire(camCtx, r.surface); err != nil {
		// A lock during the permission prompt already released the camera.
		if errors.Is(err, capture.ErrAlreadyActive) || errors.Is(err, capture.ErrReleased) {
			return err
		}
		r.log.Error(cameraMessage(err))
		return r.exam.Abort(err)
	}
	r.log.Success("Camera stream started")

	if selfie == "" {
		shot, err := r.device.Snapshot(camCtx)
		if err != nil {
			return r.exam.Abort(fmt.Errorf("capture selfie: %w", err))
		}
		selfie = shot
	}

	if err := r.exam.Begin(ctx, selfie); err != nil {
		r.camera.Release()
		return err
	}
	return nil
}

func cameraMessage(err error) string {
	switch capture.ReasonOf(err) {
	case capture.ReasonPermissionDenied:
		return "Camera access denied. Allow camera access in the browser and try again."
	case capture.ReasonNoDevice:
		return "No camera found. Connect a camera and try again."
	default:
		return fmt.Sprintf("Error accessing camera: %v", err)
	}
}

// Signal applies one page signal. prevent reports whether the page must cancel the
// browser's default action.
func (r *Runtime) Signal(env dto.Envelope) (prevent bool, err error) {
	switch env.Type {
	case dto.SignalFrame:
		var res facemesh.Result
		if err := json.Unmarshal(env.Data, &res); err != nil {
			return false, fmt.Errorf("decode frame: %w", err)
		}
		_, err = r.adapter.Ingest(res)
		return false, err
	case dto.SignalHidden:
		r.engine.RecordTabHidden()
	case dto.SignalVisible:
		r.engine.RecordVisible()
	case dto.SignalBlur:
		r.engine.RecordBlur()
	case dto.SignalFocus:
		r.engine.RecordFocus()
	case dto.SignalContextMenu:
		return r.engine.RecordContextMenu(), nil
	case dto.SignalRecalibrate:
		r.adapter.Reset()
		r.log.Info("Face calibration restarted")
	case dto.SignalDevtools:
		var sig dto.DevtoolsSignal
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &sig); err != nil {
				return false, fmt.Errorf("decode devtools signal: %w", err)
			}
		}
		return r.engine.RecordDevtools(sig.Combo), nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownSignal, env.Type)
	}
	return false, nil
}

// Appeal sends the student's reason for a locked exam to the administrator, once.
func (r *Runtime) Appeal(reason string) error {
	if r.exam.Phase() != exam.PhaseLocked {
		return ErrNotLocked
	}
	r.mu.Lock()
	if r.appealed {
		r.mu.Unlock()
		return ErrAppealSent
	}
	r.appealed = true
	r.mu.Unlock()

	r.telemetry.ShipLog(r.exam.SessionID(), LogTypeAppeal, reason)
	r.log.Success("Reason sent to administrator")
	return nil
}

func (r *Runtime) Help(message string) error {
	sessionID := r.exam.SessionID()
	if sessionID == "" {
		return ErrNoSession
	}
	if message == "" {
		message = "Student requested help"
	}
	r.telemetry.ShipLog(sessionID, LogTypeHelp, message)
	r.log.Info("Help request sent to administrator")
	return nil
}

func (r *Runtime) Summary(ctx context.Context) (*dto.SubmissionSummary, error) {
	if r.exam.Phase() != exam.PhaseSubmitted {
		return nil, exam.ErrWrongPhase
	}
	return r.api.SubmissionSummary(ctx, r.exam.SessionID())
}

// Close tears the attempt down; safe to call more than once.
func (r *Runtime) Close() {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}
	r.timer.Stop()
	r.camera.Release()
	r.adapter.Stop()
}

// proctor.Presenter

func (r *Runtime) ShowWarning(title, message string) {
	r.push(dto.MessageWarning, dto.WarningMessage{Title: title, Message: message})
}

func (r *Runtime) ShowLock(reason string) {
	r.push(dto.MessageLock, dto.LockMessage{Reason: reason})
}

func (r *Runtime) ShowAdvisory(message string) {
	r.push(dto.MessageAdvisory, dto.AdvisoryMessage{Message: message})
}

// proctor.Reporter

func (r *Runtime) Report(v proctor.ViolationReport) {
	r.telemetry.Report(v)
	r.emit(events.NewExamLocked(r.AttemptID, v.SessionID, v.Reason, v.TabSwitchCount, v.MultiFaceDetected, v.Timestamp))
}

func (r *Runtime) push(kind string, payload any) {
	if err := r.bridge.Send(r.AttemptID, kind, payload); err != nil {
		r.logger.Debug("Runtime", "Page push skipped", map[string]interface{}{
			"attempt_id": r.AttemptID,
			"type":       kind,
			"error":      err.Error(),
		})
	}
}

// emit publishes without holding up the caller; the lock path must not wait on NATS.
func (r *Runtime) emit(ev events.Event) {
	if r.events == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.events.Publish(ctx, ev); err != nil {
			r.logger.Warn("Runtime", "Failed to publish event", map[string]interface{}{
				"attempt_id": r.AttemptID,
				"event":      ev.EventType(),
				"error":      err.Error(),
			})
		}
	}()
}

func (r *Runtime) onEntry(e activitylog.Entry) {
	r.push(dto.MessageLog, e)

	sessionID := r.exam.SessionID()
	r.telemetry.ShipLog(sessionID, string(e.Severity), e.Message)
	if sessionID != "" && (e.Severity == activitylog.SeverityWarning || e.Severity == activitylog.SeverityError) {
		r.emit(events.NewViolation(r.AttemptID, sessionID, string(e.Severity), e.Message, e.Timestamp))
	}
}

func (r *Runtime) onTick(remaining int) {
	r.push(dto.MessageTick, dto.TickMessage{Remaining: remaining, Display: timer.Format(remaining)})
}

func (r *Runtime) onExpire() {
	r.expired.Store(true)
	// Expire submits over the network; the countdown goroutine must not wait on it.
	go func() {
		ctx := context.Background()
		if err := r.exam.Expire(ctx); err != nil {
			r.logger.Warn("Runtime", "Auto-submit failed", map[string]interface{}{"attempt_id": r.AttemptID, "error": err.Error()})
		}
	}()
}

func (r *Runtime) onStarted(sessionID string, _ *dto.ExamDetails) {
	r.engine.SetSessionID(sessionID)
	r.emit(events.NewAttemptStarted(r.AttemptID, sessionID, r.StudentID, r.TestID, time.Now()))
}

func (r *Runtime) onPhase(phase exam.Phase, err error) {
	msg := dto.PhaseMessage{Phase: string(phase)}
	if err != nil {
		msg.Error = err.Error()
	}
	r.push(dto.MessagePhase, msg)

	if phase == exam.PhaseSubmitted {
		st := r.exam.Status()
		r.emit(events.NewExamSubmitted(r.AttemptID, st.SessionId, st.Answered, st.Total, r.expired.Load(), time.Now()))
	}
}
