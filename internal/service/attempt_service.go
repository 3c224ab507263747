package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"exam-proctor-agent/internal/config"
	"exam-proctor-agent/internal/dto"
	"exam-proctor-agent/internal/pkg/logger"
	"exam-proctor-agent/internal/repository/memory"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrAttemptNotFound = errors.New("attempt not found")
	ErrNoStudent       = errors.New("no student has started an exam on this agent")
)

type IAttemptService interface {
	Create(ctx context.Context, req *dto.CreateAttemptRequest) (*dto.CreateAttemptResponse, error)
	Get(attemptID string) (*Runtime, error)
	Close(attemptID string)
	CloseAll()
	Active() int
	CurrentStudent() (*dto.StudentResponse, error)
	HandleSignal(attemptID string, env dto.Envelope)
}

type attemptService struct {
	cfg      *config.Config
	deps     RuntimeDeps
	attempts *memory.AttemptRepository[*Runtime]
	students *memory.StudentRepository
	logger   logger.ILogger
}

func NewAttemptService(deps RuntimeDeps, students *memory.StudentRepository) IAttemptService {
	s := &attemptService{
		cfg:      deps.Config,
		deps:     deps,
		students: students,
		logger:   deps.Logger,
	}
	s.attempts = memory.NewAttemptRepository(deps.Config.Keys.TokenTTL, func(id string, r *Runtime) {
		s.logger.Info("AttemptService", "Attempt evicted", map[string]interface{}{"attempt_id": id})
		r.Close()
	})
	return s
}

func (s *attemptService) Create(ctx context.Context, req *dto.CreateAttemptRequest) (*dto.CreateAttemptResponse, error) {
	attemptID := uuid.NewString()

	claims := jwt.MapClaims{
		"attempt_id": attemptID,
		"student_id": req.StudentId,
		"exp":        time.Now().Add(s.cfg.Keys.TokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(s.cfg.Keys.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("sign attempt token: %w", err)
	}

	if err := s.students.SetCurrentStudentID(req.StudentId); err != nil {
		// Non-fatal: only the dashboard prefill reads it.
		s.logger.Warn("AttemptService", "Failed to persist current student", map[string]interface{}{"error": err.Error()})
	}

	s.attempts.Save(attemptID, NewRuntime(s.deps, attemptID, req.StudentId, req.TestId))
	s.logger.Info("AttemptService", "Attempt created", map[string]interface{}{
		"attempt_id": attemptID,
		"student_id": req.StudentId,
		"test_id":    req.TestId,
	})

	return &dto.CreateAttemptResponse{AttemptId: attemptID, Token: signedToken}, nil
}

func (s *attemptService) Get(attemptID string) (*Runtime, error) {
	r, ok := s.attempts.Get(attemptID)
	if !ok {
		return nil, ErrAttemptNotFound
	}
	return r, nil
}

// Close releases the attempt's camera and timer and forgets it.
func (s *attemptService) Close(attemptID string) {
	if r, ok := s.attempts.Get(attemptID); ok {
		r.Close()
		s.attempts.Delete(attemptID)
	}
}

// CloseAll releases every live attempt; used on shutdown.
func (s *attemptService) CloseAll() {
	for id := range s.attempts.All() {
		s.Close(id)
	}
}

func (s *attemptService) Active() int {
	return s.attempts.Count()
}

func (s *attemptService) CurrentStudent() (*dto.StudentResponse, error) {
	id, ok := s.students.CurrentStudentID()
	if !ok {
		return nil, ErrNoStudent
	}
	return &dto.StudentResponse{StudentId: id}, nil
}

// HandleSignal routes a page signal pushed over the bridge to its attempt.
func (s *attemptService) HandleSignal(attemptID string, env dto.Envelope) {
	r, err := s.Get(attemptID)
	if err != nil {
		s.logger.Warn("AttemptService", "Signal for unknown attempt", map[string]interface{}{"attempt_id": attemptID, "type": env.Type})
		return
	}

	prevent, err := r.Signal(env)
	if err != nil {
		s.logger.Debug("AttemptService", "Signal rejected", map[string]interface{}{
			"attempt_id": attemptID,
			"type":       env.Type,
			"error":      err.Error(),
		})
		return
	}
	if prevent {
		r.push(dto.MessagePrevent, dto.Signal{Type: env.Type})
	}
}
