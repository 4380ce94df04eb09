package captions

import (
	"context"
	"log/slog"

	"snapcast/internal/bunny"
)

type Outcome string

const (
	SkippedNotReady Outcome = "skipped-not-ready"
	SkippedExists   Outcome = "skipped-exists"
	Requested       Outcome = "requested"
	Failed          Outcome = "failed"
)

type AssetClient interface {
	AssetInfo(ctx context.Context, assetID string) (*bunny.AssetInfo, error)
	RequestAutoCaption(ctx context.Context, assetID, lang, label string) error
}

// Job requests auto-generated captions for an asset once it has finished
// processing. Running it again on a captioned asset does nothing.
type Job struct {
	client AssetClient
	lang   string
	label  string
	logger *slog.Logger
}

func NewJob(client AssetClient, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		client: client,
		lang:   "en",
		label:  "English",
		logger: logger.With("component", "captions"),
	}
}

// Run never returns an error. The outcome exists for logging and tests.
func (j *Job) Run(ctx context.Context, assetID string) Outcome {
	jobLog := j.logger.With("asset_id", assetID)

	info, err := j.client.AssetInfo(ctx, assetID)
	if err != nil {
		jobLog.Error("caption generation failed", "step", "asset_info", "error", err)
		return Failed
	}

	if info.Status < bunny.StatusFinished {
		jobLog.Info("video not ready for caption generation", "status", info.Status)
		return SkippedNotReady
	}

	if len(info.Captions) > 0 {
		jobLog.Info("captions already exist", "tracks", len(info.Captions))
		return SkippedExists
	}

	if err := j.client.RequestAutoCaption(ctx, assetID, j.lang, j.label); err != nil {
		jobLog.Error("caption generation failed", "step", "request", "error", err)
		return Failed
	}

	jobLog.Info("caption generation requested", "lang", j.lang)
	return Requested
}
