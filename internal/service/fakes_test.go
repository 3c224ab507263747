package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"exam-proctor-agent/internal/config"
	"exam-proctor-agent/internal/dto"
	"exam-proctor-agent/internal/pkg/logger"
	"exam-proctor-agent/internal/proctor"
	"exam-proctor-agent/pkg/events"
)

type sentMessage struct {
	Kind    string
	Payload any
}

type fakeBridge struct {
	mu      sync.Mutex
	sent    []sentMessage
	replies map[string]func() (json.RawMessage, error)
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{replies: map[string]func() (json.RawMessage, error){
		"camera.open":     func() (json.RawMessage, error) { return json.RawMessage(`{"stream_id":"s1"}`), nil },
		"camera.snapshot": func() (json.RawMessage, error) { return json.RawMessage(`{"data_url":"data:image/png;base64,AA=="}`), nil },
	}}
}

func (b *fakeBridge) Request(_ context.Context, _, kind string, payload any) (json.RawMessage, error) {
	b.mu.Lock()
	b.sent = append(b.sent, sentMessage{Kind: kind, Payload: payload})
	reply := b.replies[kind]
	b.mu.Unlock()
	if reply == nil {
		return nil, context.DeadlineExceeded
	}
	return reply()
}

func (b *fakeBridge) Send(_ string, kind string, payload any) error {
	b.mu.Lock()
	b.sent = append(b.sent, sentMessage{Kind: kind, Payload: payload})
	b.mu.Unlock()
	return nil
}

func (b *fakeBridge) kinds() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.sent))
	for _, m := range b.sent {
		out = append(out, m.Kind)
	}
	return out
}

func (b *fakeBridge) last(kind string) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.sent) - 1; i >= 0; i-- {
		if b.sent[i].Kind == kind {
			return b.sent[i].Payload, true
		}
	}
	return nil, false
}

type fakeAPI struct {
	mu        sync.Mutex
	sessionID string
	details   *dto.ExamDetails
	startErr  error
	submitErr error
	reportErr error

	selfie     string
	submitted  [][]dto.SubmittedAnswer
	violations []dto.ViolationRequest
	logEvents  []dto.LogEventRequest
}

func (f *fakeAPI) StartExam(_ context.Context, _, _ string) (string, error) {
	return f.sessionID, f.startErr
}

func (f *fakeAPI) UploadSelfie(_ context.Context, _, dataURL string) error {
	f.mu.Lock()
	f.selfie = dataURL
	f.mu.Unlock()
	return nil
}

func (f *fakeAPI) ExamDetails(_ context.Context, _ string) (*dto.ExamDetails, error) {
	return f.details, nil
}

func (f *fakeAPI) SubmitExam(_ context.Context, _ string, answers []dto.SubmittedAnswer) error {
	f.mu.Lock()
	f.submitted = append(f.submitted, answers)
	f.mu.Unlock()
	return f.submitErr
}

func (f *fakeAPI) SubmissionSummary(_ context.Context, _ string) (*dto.SubmissionSummary, error) {
	return &dto.SubmissionSummary{ExamName: f.details.Name, TotalQuestions: len(f.details.Questions)}, nil
}

func (f *fakeAPI) ReportViolation(_ context.Context, v dto.ViolationRequest) error {
	f.mu.Lock()
	f.violations = append(f.violations, v)
	f.mu.Unlock()
	return f.reportErr
}

func (f *fakeAPI) LogEvent(_ context.Context, sessionID, logType, message string) error {
	f.mu.Lock()
	f.logEvents = append(f.logEvents, dto.LogEventRequest{SessionId: sessionID, LogType: logType, LogMessage: message})
	f.mu.Unlock()
	return nil
}

type fakeTelemetry struct {
	mu      sync.Mutex
	reports []proctor.ViolationReport
	logs    []dto.LogEventRequest
}

func (f *fakeTelemetry) Report(r proctor.ViolationReport) {
	f.mu.Lock()
	f.reports = append(f.reports, r)
	f.mu.Unlock()
}

func (f *fakeTelemetry) ShipLog(sessionID, logType, message string) {
	if sessionID == "" {
		return
	}
	f.mu.Lock()
	f.logs = append(f.logs, dto.LogEventRequest{SessionId: sessionID, LogType: logType, LogMessage: message})
	f.mu.Unlock()
}

func (f *fakeTelemetry) logsOfType(logType string) []dto.LogEventRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []dto.LogEventRequest
	for _, l := range f.logs {
		if l.LogType == logType {
			out = append(out, l)
		}
	}
	return out
}

type fakeEvents struct {
	mu    sync.Mutex
	types []string
}

func (f *fakeEvents) Publish(_ context.Context, e events.Event) error {
	f.mu.Lock()
	f.types = append(f.types, e.EventType())
	f.mu.Unlock()
	return nil
}

func (f *fakeEvents) has(t string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, got := range f.types {
		if got == t {
			return true
		}
	}
	return false
}

func testConfig() *config.Config {
	return &config.Config{
		API: config.APIConfig{Timeout: time.Second, SubmitTimeout: time.Second},
		Proctor: config.ProctorConfig{
			MaxTabSwitches:      1,
			MultiFaceWarnFrames: 3,
			MultiFaceLockFrames: 5,
			CalibrationFrames:   30,
			HeadThreshold:       0.05,
			SustainedGaze:       10 * time.Second,
			GazeAction:          "advisory",
			CameraTimeout:       time.Second,
			TimerTick:           time.Hour,
			ViolationTopic:      "violations",
			LogEventTopic:       "log_events",
		},
		Keys: config.APIKeys{JWTSecret: "test-secret", TokenTTL: time.Hour},
	}
}

func twoQuestions() *dto.ExamDetails {
	answer := "B"
	return &dto.ExamDetails{
		TestId:          "T1",
		Name:            "Networks",
		DurationSeconds: 600,
		Questions: []dto.Question{
			{Text: "Q1", Type: dto.QuestionMCQ, Options: []string{"A", "B"}, Answer: &answer},
			{Text: "Q2", Type: dto.QuestionText},
		},
	}
}

type harness struct {
	bridge    *fakeBridge
	api       *fakeAPI
	telemetry *fakeTelemetry
	events    *fakeEvents
	deps      RuntimeDeps
}

func newHarness() *harness {
	h := &harness{
		bridge:    newFakeBridge(),
		api:       &fakeAPI{sessionID: "S1", details: twoQuestions()},
		telemetry: &fakeTelemetry{},
		events:    &fakeEvents{},
	}
	h.deps = RuntimeDeps{
		Config:    testConfig(),
		API:       h.api,
		Bridge:    h.bridge,
		Telemetry: h.telemetry,
		Events:    h.events,
		Logger:    logger.NewNopLogger(),
	}
	return h
}
