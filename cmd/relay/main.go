// Command relay sends a chat message through the resilient webhook
// client and reports the outcome. It exists for operating and smoke
// testing the delivery path; the packages under pkg/ are the product.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/jarvis-chat/webhook-relay/pkg/config"
	"github.com/jarvis-chat/webhook-relay/pkg/models"
	"github.com/jarvis-chat/webhook-relay/pkg/monitoring"
	"github.com/jarvis-chat/webhook-relay/pkg/observability"
	"github.com/jarvis-chat/webhook-relay/pkg/resilience"
	"github.com/jarvis-chat/webhook-relay/pkg/verification"
	"github.com/jarvis-chat/webhook-relay/pkg/webhook"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	message := flag.String("message", "", "message text to deliver")
	session := flag.String("session", "cli", "session identifier")
	source := flag.String("source", "cli", "source tag")
	chatID := flag.Int64("chat", 1, "chat identifier")
	healthCheck := flag.Bool("health", false, "run a health probe instead of sending a message")
	deploymentID := flag.String("verify-deployment", "", "verify delivery and wait for this deployment to complete")
	flag.Parse()

	// Best effort; a missing .env is fine
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := observability.NewStandardLogger("relay")
	if cfg.Logging.Level == "debug" {
		if sl, ok := logger.(*observability.StandardLogger); ok {
			logger = sl.WithLevel(observability.LogLevelDebug)
		}
	}
	tracer := observability.NewTracer("webhook-relay")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitor := monitoring.NewService(monitoring.Config{
		HistorySize:    cfg.Monitoring.HistorySize,
		ExportInterval: cfg.Monitoring.ExportInterval,
	}, monitoring.WithLogger(logger))
	monitor.Start(ctx)
	defer monitor.Stop()

	clientCfg := webhook.Config{
		EndpointURL:    cfg.Webhook.URL,
		AuthToken:      cfg.Webhook.AuthToken,
		RequestTimeout: cfg.Webhook.RequestTimeout,
		Retry: resilience.RetryPolicy{
			MaxAttempts: cfg.Webhook.RetryAttempts,
			BaseDelay:   cfg.Webhook.RetryBaseDelay,
			MaxDelay:    cfg.Webhook.RetryMaxDelay,
			Multiplier:  cfg.Webhook.RetryMultiplier,
			Jitter:      cfg.Webhook.RetryJitter,
		},
		Breaker: resilience.BreakerConfig{
			FailureThreshold: cfg.Webhook.FailureThreshold,
			RecoveryTimeout:  cfg.Webhook.RecoveryTimeout,
		},
	}

	opts := []webhook.Option{
		webhook.WithLogger(logger),
		webhook.WithTracer(tracer),
	}
	if cfg.Monitoring.Enabled {
		opts = append(opts, webhook.WithRecorder(monitor))
	}
	client, err := webhook.New(clientCfg, opts...)
	if err != nil {
		return err
	}

	if *healthCheck {
		result := client.HealthCheck(ctx)
		return printJSON(result)
	}

	if *message == "" {
		return fmt.Errorf("-message is required (or use -health)")
	}

	payload := models.NewMessagePayload(*message, *session, *source, *chatID)
	resp, err := client.Send(ctx, payload)
	if err != nil {
		return err
	}
	if err := printJSON(resp); err != nil {
		return err
	}

	if *deploymentID != "" && cfg.Verification.Enabled {
		return awaitVerification(cfg, logger, tracer, payload, *deploymentID)
	}
	return nil
}

func awaitVerification(cfg *config.Config, logger observability.Logger, tracer observability.Tracer, payload models.WebhookPayload, deploymentID string) error {
	verifier := verification.NewService(verification.Config{
		VerifyTimeout:     cfg.Verification.VerifyTimeout,
		PollInterval:      cfg.Verification.PollInterval,
		DeploymentTimeout: cfg.Verification.DeploymentTimeout,
		ResultTTL:         cfg.Verification.ResultTTL,
	}, verification.WithLogger(logger), verification.WithTracer(tracer))
	verifier.Start()
	defer verifier.Stop()

	id, err := verifier.StartVerification(verification.Request{
		RequestID:            payload.RequestID,
		EndpointURL:          cfg.Webhook.URL,
		DispatchedAt:         time.Now(),
		ExpectedDeploymentID: deploymentID,
	})
	if err != nil {
		return err
	}

	done := make(chan verification.Result, 1)
	if err := verifier.OnComplete(id, func(res verification.Result) {
		done <- res
	}); err != nil {
		return err
	}

	res := <-done
	return printJSON(res)
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
