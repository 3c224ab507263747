package service

import (
	"encoding/json"

	"exam-proctor-agent/internal/config"
	"exam-proctor-agent/internal/dto"
	"exam-proctor-agent/internal/pkg/logger"
	"exam-proctor-agent/internal/proctor"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Log types beyond the activity severities, as stored by POST /api/log_event.
const (
	LogTypeAppeal = "appeal"
	LogTypeHelp   = "help"
)

// isoMillis matches the timestamp shape the platform stores for violations.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// TelemetryQueue hands violation reports and log events to the consumer without
// waiting for the remote API. It satisfies proctor.Reporter.
type TelemetryQueue struct {
	publisher      message.Publisher
	violationTopic string
	logTopic       string
	logger         logger.ILogger
}

func NewTelemetryQueue(publisher message.Publisher, cfg config.ProctorConfig, log logger.ILogger) *TelemetryQueue {
	return &TelemetryQueue{
		publisher:      publisher,
		violationTopic: cfg.ViolationTopic,
		logTopic:       cfg.LogEventTopic,
		logger:         log,
	}
}

func (q *TelemetryQueue) Report(r proctor.ViolationReport) {
	q.publish(q.violationTopic, dto.ViolationRequest{
		SessionId:         r.SessionID,
		Type:              r.Type,
		Reason:            r.Reason,
		Timestamp:         r.Timestamp.UTC().Format(isoMillis),
		TabSwitchCount:    r.TabSwitchCount,
		MultiFaceDetected: r.MultiFaceDetected,
	})
}

// ShipLog queues one log_event. Entries without a session are dropped.
func (q *TelemetryQueue) ShipLog(sessionID, logType, message string) {
	if sessionID == "" {
		return
	}
	q.publish(q.logTopic, dto.LogEventRequest{
		SessionId:  sessionID,
		LogType:    logType,
		LogMessage: message,
	})
}

func (q *TelemetryQueue) publish(topic string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		q.logger.Error("TelemetryQueue", "Failed to marshal payload", map[string]interface{}{"topic": topic, "error": err.Error()})
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), body)
	if err := q.publisher.Publish(topic, msg); err != nil {
		q.logger.Error("TelemetryQueue", "Failed to publish", map[string]interface{}{"topic": topic, "error": err.Error()})
	}
}
