package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/voicebridge/whatsapp-voiceflow-bridge/internal/api/router"
	"github.com/voicebridge/whatsapp-voiceflow-bridge/internal/config"
	"github.com/voicebridge/whatsapp-voiceflow-bridge/internal/conversation"
	observemetrics "github.com/voicebridge/whatsapp-voiceflow-bridge/internal/observability/metrics"
	"github.com/voicebridge/whatsapp-voiceflow-bridge/internal/transcribe"
	"github.com/voicebridge/whatsapp-voiceflow-bridge/internal/voiceflow"
	"github.com/voicebridge/whatsapp-voiceflow-bridge/internal/whatsapp"
	"github.com/voicebridge/whatsapp-voiceflow-bridge/pkg/logging"
)

const appVersion = "1.0.0"

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	registry := prometheus.NewRegistry()
	metrics := observemetrics.NewBridgeMetrics(registry)

	waClient := whatsapp.NewClient(cfg.WhatsAppToken, cfg.WhatsAppAPIVersion)

	vfClient, err := voiceflow.New(voiceflow.Config{
		APIKey:      cfg.VoiceflowAPIKey,
		VersionID:   cfg.VoiceflowVersionID,
		ProjectID:   cfg.VoiceflowProjectID,
		Timeout:     cfg.VoiceflowTimeout,
		MaxAttempts: cfg.RetryMaxAttempts,
		Backoff:     cfg.RetryBaseDelay,
		Logger:      logger,
		OnRetry:     func(int) { metrics.ObserveInteractRetry() },
	})
	if err != nil {
		logger.Error("failed to create voiceflow client", "error", err)
		os.Exit(1)
	}

	var transcriber whatsapp.Transcriber
	if cfg.TranscriptionAPIKey != "" {
		whisper, err := transcribe.NewWhisperClient(cfg.TranscriptionAPIKey, cfg.TranscriptionModel)
		if err != nil {
			logger.Error("failed to create transcription client", "error", err)
			os.Exit(1)
		}
		transcriber = whisper
	} else {
		logger.Info("transcription disabled, voice notes will be dropped")
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		opts := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis unreachable, transcripts disabled", "error", err)
			redisClient = nil
		}
	}

	sessions := conversation.NewSessionStore(cfg.VoiceflowVersionID)
	transcripts := conversation.NewTranscriptStore(redisClient)
	renderer := conversation.NewRenderer(waClient, logger, metrics)

	orchestrator := conversation.NewOrchestrator(conversation.OrchestratorConfig{
		Runtime:         vfClient,
		Renderer:        renderer,
		Sessions:        sessions,
		Transcripts:     transcripts,
		Logger:          logger,
		Metrics:         metrics,
		FallbackMessage: cfg.FallbackMessage,
		MaxPathDepth:    cfg.PathMaxDepth,
	})

	queue := conversation.NewMemoryQueue(cfg.QueueCapacity)
	worker := conversation.NewWorker(conversation.WorkerConfig{
		Queue:       queue,
		Handler:     orchestrator,
		Logger:      logger,
		Metrics:     metrics,
		MaxInFlight: cfg.MaxInFlight,
	})

	webhooks := whatsapp.NewWebhookHandler(whatsapp.WebhookConfig{
		VerifyToken: cfg.WebhookVerifyToken,
		AppSecret:   cfg.WhatsAppAppSecret,
		Media:       waClient,
		Transcriber: transcriber,
		Logger:      logger,
		Metrics:     metrics,
		OnTurn: func(turn whatsapp.UserTurn) {
			if err := queue.Enqueue(turn); err != nil {
				logger.Error("dropping inbound turn", "error", err, "user_id", turn.UserID)
				return
			}
			metrics.SetQueueDepth(queue.Len())
		},
	})

	r := router.New(router.Config{
		Logger:     logger,
		Webhooks:   webhooks,
		Registry:   registry,
		AppName:    "whatsapp-voiceflow-bridge",
		AppVersion: appVersion,
	})

	workerCtx, stopWorker := context.WithCancel(context.Background())
	worker.Start(workerCtx)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	stopWorker()
	worker.Wait()

	if redisClient != nil {
		_ = redisClient.Close()
	}
	logger.Info("shutdown complete")
}
