package service

import (
	"context"
	"encoding/json"
	"time"

	"exam-proctor-agent/internal/config"
	"exam-proctor-agent/internal/dto"
	"exam-proctor-agent/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill/message"
)

// TelemetryAPI is the part of the platform the consumer delivers to.
type TelemetryAPI interface {
	ReportViolation(ctx context.Context, v dto.ViolationRequest) error
	LogEvent(ctx context.Context, sessionID, logType, message string) error
}

type IConsumerService interface {
	Consume(ctx context.Context) error
}

type consumerService struct {
	subscriber     message.Subscriber
	violationTopic string
	logTopic       string
	api            TelemetryAPI
	timeout        time.Duration
	logger         logger.ILogger
}

func NewConsumerService(
	subscriber message.Subscriber,
	cfg *config.Config,
	api TelemetryAPI,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		subscriber:     subscriber,
		violationTopic: cfg.Proctor.ViolationTopic,
		logTopic:       cfg.Proctor.LogEventTopic,
		api:            api,
		timeout:        cfg.API.Timeout,
		logger:         log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	violations, err := cs.subscriber.Subscribe(ctx, cs.violationTopic)
	if err != nil {
		return err
	}
	logs, err := cs.subscriber.Subscribe(ctx, cs.logTopic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range violations {
			cs.processViolation(ctx, msg)
		}
	}()
	go func() {
		for msg := range logs {
			cs.processLogEvent(ctx, msg)
		}
	}()

	return nil
}

// Delivery is best effort: every message is acked, failures are only logged.
func (cs *consumerService) processViolation(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	var payload dto.ViolationRequest
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error("ConsumerService", "Failed to unmarshal violation", map[string]interface{}{"error": err.Error()})
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, cs.timeout)
	defer cancel()

	if err := cs.api.ReportViolation(callCtx, payload); err != nil {
		cs.logger.Error("ConsumerService", "Failed to report violation", map[string]interface{}{
			"session_id": payload.SessionId,
			"reason":     payload.Reason,
			"error":      err.Error(),
		})
		return
	}
	cs.logger.Info("ConsumerService", "Violation reported", map[string]interface{}{
		"session_id": payload.SessionId,
		"reason":     payload.Reason,
	})
}

func (cs *consumerService) processLogEvent(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	var payload dto.LogEventRequest
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error("ConsumerService", "Failed to unmarshal log event", map[string]interface{}{"error": err.Error()})
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, cs.timeout)
	defer cancel()

	if err := cs.api.LogEvent(callCtx, payload.SessionId, payload.LogType, payload.LogMessage); err != nil {
		cs.logger.Warn("ConsumerService", "Failed to ship log event", map[string]interface{}{
			"session_id": payload.SessionId,
			"log_type":   payload.LogType,
			"error":      err.Error(),
		})
	}
}
