package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"exam-proctor-agent/internal/config"
	"exam-proctor-agent/internal/dto"
	"exam-proctor-agent/internal/pkg/logger"
	"exam-proctor-agent/internal/pkg/serverutils"
	"exam-proctor-agent/internal/proctor"
	"exam-proctor-agent/internal/repository/memory"
	"exam-proctor-agent/internal/service"
	internalWS "exam-proctor-agent/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pageStub struct{}

func (pageStub) Request(_ context.Context, _, kind string, _ any) (json.RawMessage, error) {
	switch kind {
	case "camera.open":
		return json.RawMessage(`{"stream_id":"s1"}`), nil
	case "camera.snapshot":
		return json.RawMessage(`{"data_url":"data:image/png;base64,AA=="}`), nil
	}
	return nil, context.DeadlineExceeded
}

func (pageStub) Send(string, string, any) error { return nil }

type platformStub struct {
	mu        sync.Mutex
	submitted []dto.SubmittedAnswer
}

func (p *platformStub) StartExam(context.Context, string, string) (string, error) { return "S1", nil }
func (p *platformStub) UploadSelfie(context.Context, string, string) error { return nil }

func (p *platformStub) ExamDetails(context.Context, string) (*dto.ExamDetails, error) {
	b := "B"
	return &dto.ExamDetails{Name: "Networks", DurationSeconds: 600, Questions: []dto.Question{
		{Text: "Q1", Type: dto.QuestionMCQ, Options: []string{"A", "B"}, Answer: &b},
		{Text: "Q2", Type: dto.QuestionText},
	}}, nil
}

func (p *platformStub) SubmitExam(_ context.Context, _ string, answers []dto.SubmittedAnswer) error {
	p.mu.Lock()
	p.submitted = answers
	p.mu.Unlock()
	return nil
}

func (p *platformStub) SubmissionSummary(context.Context, string) (*dto.SubmissionSummary, error) {
	return &dto.SubmissionSummary{ExamName: "Networks", QuestionsAttempted: 1, TotalQuestions: 2}, nil
}

type telemetryStub struct{}

func (telemetryStub) Report(proctor.ViolationReport) {}
func (telemetryStub) ShipLog(string, string, string) {}

func newTestApp(t *testing.T) (*fiber.App, *platformStub) {
	t.Helper()
	cfg := &config.Config{
		Proctor: config.ProctorConfig{CameraTimeout: time.Second, TimerTick: time.Hour},
		Keys:    config.APIKeys{JWTSecret: "handler-secret", TokenTTL: time.Hour},
	}
	platform := &platformStub{}
	students, err := memory.NewStudentRepository(filepath.Join(t.TempDir(), "student.gob"))
	require.NoError(t, err)

	svc := service.NewAttemptService(service.RuntimeDeps{
		Config:    cfg,
		API:       platform,
		Bridge:    pageStub{},
		Telemetry: telemetryStub{},
		Logger:    logger.NewNopLogger(),
	}, students)
	hub := internalWS.NewHub(nil, logger.NewNopLogger())

	app := fiber.New()
	app.Use(serverutils.ErrorHandlerMiddleware(StatusOf))
	NewProctorHandler(svc, hub, cfg.Keys.JWTSecret, logger.NewNopLogger()).RegisterRoutes(app.Group("/api"))
	return app, platform
}

type client struct {
	t     *testing.T
	app   *fiber.App
	token string
}

func (c *client) do(method, path, body string) (int, serverutils.Response[json.RawMessage]) {
	c.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.app.Test(req, -1)
	require.NoError(c.t, err)
	raw, _ := io.ReadAll(resp.Body)
	var res serverutils.Response[json.RawMessage]
	_ = json.Unmarshal(raw, &res)
	return resp.StatusCode, res
}

func createAttempt(t *testing.T, app *fiber.App) (*client, string) {
	t.Helper()
	c := &client{t: t, app: app}
	code, res := c.do("POST", "/api/proctor/attempts", `{"student_id":"stu-1","test_id":"T1"}`)
	require.Equal(t, fiber.StatusCreated, code)
	var created dto.CreateAttemptResponse
	require.NoError(t, json.Unmarshal(res.Data, &created))
	c.token = created.Token
	return c, "/api/proctor/attempts/" + created.AttemptId
}

func TestCreateAttemptValidation(t *testing.T) {
	app, _ := newTestApp(t)
	c := &client{t: t, app: app}

	code, res := c.do("POST", "/api/proctor/attempts", `{"student_id":"stu-1"}`)
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.Contains(t, string(res.Data), "test_id")

	code, _ = c.do("GET", "/api/proctor/student", "")
	assert.Equal(t, fiber.StatusNotFound, code)

	createAttempt(t, app)
	code, res = c.do("GET", "/api/proctor/student", "")
	assert.Equal(t, fiber.StatusOK, code)
	assert.JSONEq(t, `{"student_id":"stu-1"}`, string(res.Data))
}

func TestExamFlowOverHTTP(t *testing.T) {
	app, platform := newTestApp(t)
	c, base := createAttempt(t, app)

	code, _ := c.do("GET", base+"/question", "")
	assert.Equal(t, fiber.StatusConflict, code, "no questions before the session starts")

	code, _ = c.do("POST", base+"/selfie", "")
	require.Equal(t, fiber.StatusOK, code)

	code, res := c.do("GET", base+"/question", "")
	require.Equal(t, fiber.StatusOK, code)
	var view dto.QuestionView
	require.NoError(t, json.Unmarshal(res.Data, &view))
	assert.Equal(t, "Q1", view.Text)
	assert.Equal(t, "00:10:00", view.TimeLeft)

	code, _ = c.do("POST", base+"/next", `{"answer":"B"}`)
	require.Equal(t, fiber.StatusOK, code)

	code, _ = c.do("POST", base+"/goto", `{"index":5}`)
	assert.Equal(t, fiber.StatusBadRequest, code)

	code, res = c.do("POST", base+"/events", `{"type":"contextmenu"}`)
	require.Equal(t, fiber.StatusOK, code)
	assert.Contains(t, string(res.Data), `"prevent":true`)

	code, _ = c.do("POST", base+"/appeal", `{"reason":"not locked yet"}`)
	assert.Equal(t, fiber.StatusConflict, code)

	code, _ = c.do("POST", base+"/end", "")
	require.Equal(t, fiber.StatusOK, code)
	code, _ = c.do("POST", base+"/confirm", "")
	require.Equal(t, fiber.StatusOK, code)

	platform.mu.Lock()
	require.Len(t, platform.submitted, 2)
	assert.Equal(t, "B", *platform.submitted[0].Answer)
	assert.Nil(t, platform.submitted[1].Answer)
	platform.mu.Unlock()

	code, res = c.do("GET", base+"/summary", "")
	require.Equal(t, fiber.StatusOK, code)
	assert.Contains(t, string(res.Data), `"exam_name":"Networks"`)

	code, res = c.do("GET", base+"/logs", "")
	require.Equal(t, fiber.StatusOK, code)
	assert.Contains(t, string(res.Data), "Exam submitted successfully")
}

func TestAttemptRoutesRequireMatchingToken(t *testing.T) {
	app, _ := newTestApp(t)
	first, _ := createAttempt(t, app)
	_, secondBase := createAttempt(t, app)

	code, _ := first.do("GET", secondBase+"/status", "")
	assert.Equal(t, fiber.StatusForbidden, code)

	anon := &client{t: t, app: app}
	code, _ = anon.do("GET", secondBase+"/status", "")
	assert.Equal(t, fiber.StatusUnauthorized, code)
}

func TestOverlayIsPNG(t *testing.T) {
	app, _ := newTestApp(t)
	c, base := createAttempt(t, app)

	req := httptest.NewRequest("GET", base+"/overlay.png", nil)
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
}

func TestServeWsRejectsMissingToken(t *testing.T) {
	app, _ := newTestApp(t)
	c := &client{t: t, app: app}
	code, _ := c.do("GET", "/api/proctor/ws", "")
	assert.Equal(t, fiber.StatusUnauthorized, code)

	authed, _ := createAttempt(t, app)
	code, _ = authed.do("GET", "/api/proctor/ws", "")
	assert.Equal(t, fiber.StatusUpgradeRequired, code)
}
