package handler

import (
	"context"
	"errors"

	"exam-proctor-agent/internal/apiclient"
	"exam-proctor-agent/internal/capture"
	"exam-proctor-agent/internal/dto"
	"exam-proctor-agent/internal/exam"
	"exam-proctor-agent/internal/facemesh"
	"exam-proctor-agent/internal/pkg/logger"
	"exam-proctor-agent/internal/pkg/serverutils"
	"exam-proctor-agent/internal/service"
	internalWS "exam-proctor-agent/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type ProctorHandler struct {
	service service.IAttemptService
	hub     *internalWS.Hub
	secret  string
	logger  logger.ILogger
}

func NewProctorHandler(svc service.IAttemptService, hub *internalWS.Hub, jwtSecret string, log logger.ILogger) *ProctorHandler {
	return &ProctorHandler{
		service: svc,
		hub:     hub,
		secret:  jwtSecret,
		logger:  log,
	}
}

// RegisterRoutes registers the exam page routes.
func (h *ProctorHandler) RegisterRoutes(router fiber.Router) {
	proctor := router.Group("/proctor")
	proctor.Post("/attempts", h.CreateAttempt)
	proctor.Get("/student", h.CurrentStudent)

	// WebSocket
	proctor.Get("/ws", h.ServeWs)

	attempt := proctor.Group("/attempts/:id", serverutils.AttemptJwtMiddleware(h.secret))
	attempt.Post("/selfie", h.Selfie)
	attempt.Get("/status", h.Status)
	attempt.Get("/question", h.Question)
	attempt.Post("/answer", h.Answer)
	attempt.Post("/next", h.Next)
	attempt.Post("/prev", h.Prev)
	attempt.Post("/goto", h.Goto)
	attempt.Post("/end", h.End)
	attempt.Post("/confirm", h.Confirm)
	attempt.Post("/cancel", h.Cancel)
	attempt.Post("/events", h.Event)
	attempt.Post("/help", h.Help)
	attempt.Post("/appeal", h.Appeal)
	attempt.Get("/logs", h.Logs)
	attempt.Get("/overlay.png", h.Overlay)
	attempt.Get("/summary", h.Summary)
}

// StatusOf maps domain errors to HTTP statuses for serverutils.ErrorHandlerMiddleware.
func StatusOf(err error) (int, bool) {
	var apiErr *apiclient.APIError
	switch {
	case errors.Is(err, service.ErrAttemptNotFound), errors.Is(err, service.ErrNoStudent):
		return fiber.StatusNotFound, true
	case errors.Is(err, exam.ErrWrongPhase),
		errors.Is(err, exam.ErrSubmitInFlight),
		errors.Is(err, exam.ErrAlreadySubmitted),
		errors.Is(err, service.ErrNotLocked),
		errors.Is(err, service.ErrAppealSent),
		errors.Is(err, service.ErrNoSession),
		errors.Is(err, capture.ErrAlreadyActive),
		errors.Is(err, capture.ErrReleased),
		errors.Is(err, facemesh.ErrNotRunning):
		return fiber.StatusConflict, true
	case errors.Is(err, exam.ErrOutOfRange),
		errors.Is(err, service.ErrUnknownSignal),
		errors.Is(err, facemesh.ErrInvalidFrame):
		return fiber.StatusBadRequest, true
	case errors.Is(err, capture.ErrPermissionDenied):
		return fiber.StatusForbidden, true
	case errors.Is(err, capture.ErrNoDevice), errors.Is(err, internalWS.ErrNoClient):
		return fiber.StatusUnprocessableEntity, true
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, true
	case errors.As(err, &apiErr):
		return fiber.StatusBadGateway, true
	}
	return 0, false
}

func (h *ProctorHandler) CreateAttempt(ctx *fiber.Ctx) error {
	var req dto.CreateAttemptRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid request body"))
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := h.service.Create(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Attempt created", res))
}

func (h *ProctorHandler) CurrentStudent(ctx *fiber.Ctx) error {
	res, err := h.service.CurrentStudent()
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Current student", res))
}

// ServeWs binds the exam page's socket to the attempt named in its token.
func (h *ProctorHandler) ServeWs(c *fiber.Ctx) error {
	tokenStr := serverutils.TokenFromRequest(c)
	if tokenStr == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(401, "Missing token (Query 'token' or Header 'Authorization')"))
	}
	attemptID, err := serverutils.ParseAttemptToken(tokenStr, h.secret)
	if err != nil {
		h.logger.Warn("ProctorHandler", "Invalid Token in WS Handshake", map[string]interface{}{"error": err.Error()})
		return err
	}
	if _, err := h.service.Get(attemptID); err != nil {
		return err
	}

	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(func(c *websocket.Conn) {
			h.logger.Info("ProctorHandler", "Starting WebSocket session", map[string]interface{}{"attempt_id": attemptID})
			internalWS.ServeWs(h.hub, c, attemptID)
			h.logger.Info("ProctorHandler", "WebSocket session ended", map[string]interface{}{"attempt_id": attemptID})
		})(c)
	}
	return fiber.ErrUpgradeRequired
}

// runtime resolves :id and checks it against the token's attempt.
func (h *ProctorHandler) runtime(ctx *fiber.Ctx) (*service.Runtime, error) {
	id := ctx.Params("id")
	if owner, _ := ctx.Locals(serverutils.LocalAttemptID).(string); owner != id {
		return nil, fiber.NewError(fiber.StatusForbidden, "Token does not belong to this attempt")
	}
	return h.service.Get(id)
}

func (h *ProctorHandler) Selfie(ctx *fiber.Ctx) error {
	r, err := h.runtime(ctx)
	if err != nil {
		return err
	}
	var req dto.SelfieRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid request body"))
		}
	}

	if err := r.Start(ctx.UserContext(), req.Selfie); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Exam started", r.Exam().Status()))
}

func (h *ProctorHandler) Status(ctx *fiber.Ctx) error {
	r, err := h.runtime(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Attempt status", fiber.Map{
		"exam":      r.Exam().Status(),
		"proctor":   r.Engine().Snapshot(),
		"camera":    r.Adapter().Stats(),
		"time_left": r.TimeLeft(),
		"connected": h.hub.Connected(r.AttemptID),
	}))
}

func (h *ProctorHandler) question(ctx *fiber.Ctx, r *service.Runtime, message string) error {
	view, err := r.Exam().Current()
	if err != nil {
		return err
	}
	view.TimeLeft = r.TimeLeft()
	return ctx.JSON(serverutils.SuccessResponse(message, view))
}

func (h *ProctorHandler) Question(ctx *fiber.Ctx) error {
	r, err := h.runtime(ctx)
	if err != nil {
		return err
	}
	return h.question(ctx, r, "Current question")
}

// navigate parses the optional answer draft and applies move.
func (h *ProctorHandler) navigate(ctx *fiber.Ctx, message string, move func(c *exam.Controller, draft *string) error) error {
	r, err := h.runtime(ctx)
	if err != nil {
		return err
	}
	var req dto.AnswerRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid request body"))
		}
	}
	if err := move(r.Exam(), req.Answer); err != nil {
		return err
	}
	return h.question(ctx, r, message)
}

func (h *ProctorHandler) Answer(ctx *fiber.Ctx) error {
	return h.navigate(ctx, "Answer saved", (*exam.Controller).Answer)
}

func (h *ProctorHandler) Next(ctx *fiber.Ctx) error {
	return h.navigate(ctx, "Moved to next question", (*exam.Controller).Next)
}

func (h *ProctorHandler) Prev(ctx *fiber.Ctx) error {
	return h.navigate(ctx, "Moved to previous question", (*exam.Controller).Prev)
}

func (h *ProctorHandler) End(ctx *fiber.Ctx) error {
	return h.navigate(ctx, "Confirm submission", (*exam.Controller).RequestEnd)
}

func (h *ProctorHandler) Goto(ctx *fiber.Ctx) error {
	r, err := h.runtime(ctx)
	if err != nil {
		return err
	}
	var req dto.GotoRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid request body"))
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}
	if err := r.Exam().Goto(req.Index, req.Answer); err != nil {
		return err
	}
	return h.question(ctx, r, "Moved to question")
}

func (h *ProctorHandler) Cancel(ctx *fiber.Ctx) error {
	r, err := h.runtime(ctx)
	if err != nil {
		return err
	}
	if err := r.Exam().Cancel(); err != nil {
		return err
	}
	return h.question(ctx, r, "Submission cancelled")
}

func (h *ProctorHandler) Confirm(ctx *fiber.Ctx) error {
	r, err := h.runtime(ctx)
	if err != nil {
		return err
	}
	if err := r.Exam().Confirm(ctx.UserContext()); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Exam submitted", r.Exam().Status()))
}

// Event is the HTTP alternative to pushing a signal over the socket.
func (h *ProctorHandler) Event(ctx *fiber.Ctx) error {
	r, err := h.runtime(ctx)
	if err != nil {
		return err
	}
	var req dto.Signal
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid request body"))
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	prevent, err := r.Signal(dto.Envelope{Type: req.Type, Data: req.Data})
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Signal applied", fiber.Map{
		"prevent":   prevent,
		"direction": r.Adapter().Stats().Direction,
		"locked":    r.Engine().Locked(),
	}))
}

func (h *ProctorHandler) Help(ctx *fiber.Ctx) error {
	r, err := h.runtime(ctx)
	if err != nil {
		return err
	}
	var req dto.HelpRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid request body"))
		}
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}
	if err := r.Help(req.Message); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Help request sent", nil))
}

func (h *ProctorHandler) Appeal(ctx *fiber.Ctx) error {
	r, err := h.runtime(ctx)
	if err != nil {
		return err
	}
	var req dto.AppealRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid request body"))
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}
	if err := r.Appeal(req.Reason); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Reason sent to administrator", nil))
}

func (h *ProctorHandler) Logs(ctx *fiber.Ctx) error {
	r, err := h.runtime(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Activity log", r.Log().Entries()))
}

func (h *ProctorHandler) Overlay(ctx *fiber.Ctx) error {
	r, err := h.runtime(ctx)
	if err != nil {
		return err
	}
	img, err := r.Overlay().PNG()
	if err != nil {
		return err
	}
	ctx.Set(fiber.HeaderContentType, "image/png")
	ctx.Set(fiber.HeaderCacheControl, "no-store")
	return ctx.Send(img)
}

func (h *ProctorHandler) Summary(ctx *fiber.Ctx) error {
	r, err := h.runtime(ctx)
	if err != nil {
		return err
	}
	summary, err := r.Summary(ctx.UserContext())
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Submission summary", summary))
}
