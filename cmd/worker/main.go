package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"snapcast/internal/bunny"
	"snapcast/internal/captions"
	"snapcast/internal/config"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))

	if cfg.SQSQueueURL == "" {
		slog.Error("SQS_QUEUE_URL not set")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		slog.Error("failed to load aws config", "error", err)
		os.Exit(1)
	}

	client := bunny.NewClient(cfg.Bunny.StreamBaseURL, cfg.Bunny.LibraryID, cfg.Bunny.StreamAccessKey, nil)
	job := captions.NewJob(client, nil)
	worker := captions.NewWorker(sqs.NewFromConfig(awsCfg), cfg.SQSQueueURL, job, cfg.CaptionJobTimeout)

	slog.Info("caption worker started", "queue_url", cfg.SQSQueueURL)
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("caption worker stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("caption worker stopped")
}
