package bootstrap

import (
	"context"

	"exam-proctor-agent/internal/apiclient"
	"exam-proctor-agent/internal/config"
	"exam-proctor-agent/internal/handler"
	"exam-proctor-agent/internal/pkg/logger"
	"exam-proctor-agent/internal/repository/memory"
	"exam-proctor-agent/internal/service"
	"exam-proctor-agent/internal/websocket"

	pktNats "exam-proctor-agent/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

type Container struct {
	Logger logger.ILogger

	ProctorHandler *handler.ProctorHandler

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService
	AttemptService  service.IAttemptService

	WebSocketHub *websocket.Hub

	closers []func()
}

func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	api := apiclient.NewClient(cfg.API)

	students, err := memory.NewStudentRepository(cfg.App.StateFilePath)
	if err != nil {
		return nil, err
	}

	// 2. Event Bus
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermill.NewStdLogger(false, false),
	)
	c := &Container{Logger: sysLogger}
	c.closers = append(c.closers, func() { _ = pubSub.Close() })

	// NATS is optional; without it domain events are simply not emitted.
	var events service.EventPublisher
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		sysLogger.Warn("Container", "Failed to connect to NATS Publisher", map[string]interface{}{"error": err.Error()})
	} else {
		events = natsPub
		c.closers = append(c.closers, natsPub.Close)
	}

	// Redis
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		sysLogger.Warn("Container", "Failed to parse Redis URL, using direct Addr", map[string]interface{}{"error": err.Error()})
		opt = &redis.Options{Addr: cfg.App.RedisURL}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		sysLogger.Warn("Container", "Failed to connect to Redis, page fan-out stays local", map[string]interface{}{"error": err.Error()})
		_ = rdb.Close()
		rdb = nil
	} else {
		c.closers = append(c.closers, func() { _ = rdb.Close() })
	}

	// WebSocket Hub
	wsLogger := logger.NewIsolatedLogger(cfg.App.BridgeLogFilePath)
	wsHub := websocket.NewHub(rdb, wsLogger)
	go wsHub.Run(ctx)

	// 3. Services
	telemetry := service.NewTelemetryQueue(pubSub, cfg.Proctor, sysLogger)
	consumerService := service.NewConsumerService(pubSub, cfg, api, sysLogger)

	attemptService := service.NewAttemptService(service.RuntimeDeps{
		Config:    cfg,
		API:       api,
		Bridge:    wsHub,
		Telemetry: telemetry,
		Events:    events,
		Logger:    sysLogger,
	}, students)
	wsHub.SetDispatcher(attemptService)

	// 4. Handlers
	c.ProctorHandler = handler.NewProctorHandler(attemptService, wsHub, cfg.Keys.JWTSecret, sysLogger)
	c.ConsumerService = consumerService
	c.AttemptService = attemptService
	c.WebSocketHub = wsHub
	return c, nil
}

// Close releases live attempts, then the bus connections in reverse order.
func (c *Container) Close() {
	if c.AttemptService != nil {
		c.AttemptService.CloseAll()
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	_ = c.Logger.Sync()
}
