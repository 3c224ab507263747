package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"exam-proctor-agent/internal/bootstrap"
	"exam-proctor-agent/internal/config"
	"exam-proctor-agent/internal/server"
	"exam-proctor-agent/internal/tracer"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Unable to bootstrap agent: %v", err)
	}
	defer container.Close()

	// 3. Initialize Tracer
	shutdownTracer := tracer.InitTracer(cfg.App, container.Logger)
	defer shutdownTracer(context.Background())

	// 4. Start Background Services
	if err := container.ConsumerService.Consume(ctx); err != nil {
		container.Logger.Error("Main", "Consumer failed to start", map[string]interface{}{"error": err.Error()})
	}

	// 5. Initialize Server
	srv := server.New(cfg, container)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			container.Logger.Warn("Main", "Server shutdown failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	// 6. Run Server
	if err := srv.Run(); err != nil {
		container.Logger.Error("Main", "Server stopped", map[string]interface{}{"error": err.Error()})
	}
}
