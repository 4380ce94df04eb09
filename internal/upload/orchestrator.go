package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"snapcast/internal/bunny"
	"snapcast/internal/ratelimit"
	"snapcast/internal/storage"
	"snapcast/internal/video"
)

const (
	MaxVideoSize     = 500 << 20
	MaxThumbnailSize = 10 << 20

	// The real title is applied in the metadata step.
	placeholderTitle = "Temporary Title"
)

type AssetClient interface {
	CreateVideo(ctx context.Context, title, collectionID string) (*bunny.Asset, error)
	UploadBinary(ctx context.Context, uploadURL, accessKey string, body io.Reader, size int64) error
	UpdateMetadata(ctx context.Context, assetID, title, description string) error
}

type Limiter interface {
	Admit(ctx context.Context, fingerprint string, w ratelimit.Window) ratelimit.Decision
}

// Dispatcher runs the caption job for an asset in the background. It must
// not block and has no way to report the job's result.
type Dispatcher interface {
	Dispatch(assetID string)
}

type File struct {
	Body io.Reader
	Size int64
}

type Details struct {
	Title       string
	Description string
	Visibility  string
	Duration    *int
	Video       File
	Thumbnail   File
}

func (d *Details) validate() error {
	var problems []string
	if strings.TrimSpace(d.Title) == "" {
		problems = append(problems, "title is required")
	}
	if strings.TrimSpace(d.Description) == "" {
		problems = append(problems, "description is required")
	}
	if d.Video.Body == nil || d.Video.Size <= 0 {
		problems = append(problems, "video file is required")
	} else if d.Video.Size > MaxVideoSize {
		problems = append(problems, "video exceeds 500MB")
	}
	if d.Thumbnail.Body == nil || d.Thumbnail.Size <= 0 {
		problems = append(problems, "thumbnail file is required")
	} else if d.Thumbnail.Size > MaxThumbnailSize {
		problems = append(problems, "thumbnail exceeds 10MB")
	}
	if d.Duration != nil && *d.Duration < 0 {
		problems = append(problems, "duration must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

type Config struct {
	Assets     AssetClient
	Thumbnails storage.Allocator
	Gate       Limiter
	Window     ratelimit.Window
	Videos     video.Store
	Captions   Dispatcher

	CollectionID string
	LibraryID    string
	EmbedURL     string

	Logger *slog.Logger
	Now    func() time.Time
}

// Orchestrator drives an upload from asset allocation to the local record.
// Steps run strictly in order and are never retried; a failed run leaves
// whatever was committed remotely in place.
type Orchestrator struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "upload"),
	}
}

// BeginUpload allocates a remote video asset and returns the credentials
// for transferring its binary.
func (o *Orchestrator) BeginUpload(ctx context.Context, actorID string) (*Session, error) {
	if actorID == "" {
		return nil, fail(StageAuthenticate, ErrAuthenticationRequired, nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, fail(StageCreateAsset, ErrAssetProvisioning, err)
	}

	asset, err := o.cfg.Assets.CreateVideo(ctx, placeholderTitle, o.cfg.CollectionID)
	if err != nil {
		return nil, fail(StageCreateAsset, ErrAssetProvisioning, err)
	}
	if !asset.Complete() {
		return nil, fail(StageCreateAsset, ErrAssetProvisioning, fmt.Errorf("incomplete credentials for asset %q", asset.ID))
	}

	o.logger.Info("asset allocated", "asset_id", asset.ID, "actor_id", actorID)
	return &Session{
		AssetID:   asset.ID,
		UploadURL: asset.UploadURL,
		AccessKey: asset.AccessKey,
		IssuedAt:  o.cfg.Now(),
	}, nil
}

// CompleteUpload transfers both binaries, admits the actor through the rate
// limiter, updates remote metadata, writes the local record and detaches
// caption generation. Once the details validate the session is consumed,
// even when a later step fails.
func (o *Orchestrator) CompleteUpload(ctx context.Context, actorID string, s *Session, d Details) (*video.Video, error) {
	if actorID == "" {
		return nil, fail(StageAuthenticate, ErrAuthenticationRequired, nil)
	}
	if err := d.validate(); err != nil {
		return nil, fail(StageValidate, ErrInvalidInput, err)
	}
	if !s.complete() {
		return nil, fail(StageValidate, ErrInvalidInput, fmt.Errorf("incomplete upload session"))
	}
	if !s.consume() {
		return nil, fail(StageValidate, ErrSessionConsumed, nil)
	}

	v, err := o.complete(ctx, actorID, s, d)
	if err != nil {
		if se, ok := err.(*StageError); ok && se.Stage.remoteCommitted() {
			o.logger.Warn("upload failed, remote asset orphaned",
				"asset_id", s.AssetID, "stage", se.Stage, "actor_id", actorID, "error", se.Err)
		}
		return nil, err
	}
	return v, nil
}

func (o *Orchestrator) complete(ctx context.Context, actorID string, s *Session, d Details) (*video.Video, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(StageVideoTransfer, ErrUploadTransport, err)
	}
	if err := o.cfg.Assets.UploadBinary(ctx, s.UploadURL, s.AccessKey, d.Video.Body, d.Video.Size); err != nil {
		return nil, fail(StageVideoTransfer, ErrUploadTransport, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fail(StageThumbnailSlot, ErrAssetProvisioning, err)
	}
	slot, err := o.cfg.Thumbnails.AllocateThumbnail(ctx, s.AssetID)
	if err != nil {
		return nil, fail(StageThumbnailSlot, ErrAssetProvisioning, err)
	}
	if !slot.Complete() {
		return nil, fail(StageThumbnailSlot, ErrAssetProvisioning, fmt.Errorf("incomplete thumbnail slot"))
	}

	if err := ctx.Err(); err != nil {
		return nil, fail(StageThumbnailTransfer, ErrUploadTransport, err)
	}
	if err := o.cfg.Assets.UploadBinary(ctx, slot.UploadURL, slot.AccessKey, d.Thumbnail.Body, d.Thumbnail.Size); err != nil {
		return nil, fail(StageThumbnailTransfer, ErrUploadTransport, err)
	}

	decision := o.cfg.Gate.Admit(ctx, actorID, o.cfg.Window)
	if !decision.Allowed {
		return nil, fail(StageRateLimit, ErrRateLimitExceeded, decision.Err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fail(StageMetadata, ErrAssetProvisioning, err)
	}
	if err := o.cfg.Assets.UpdateMetadata(ctx, s.AssetID, d.Title, d.Description); err != nil {
		return nil, fail(StageMetadata, ErrAssetProvisioning, err)
	}

	v := &video.Video{
		AssetID:      s.AssetID,
		Title:        d.Title,
		Description:  d.Description,
		ThumbnailURL: slot.CDNURL,
		VideoURL:     fmt.Sprintf("%s/%s/%s", o.cfg.EmbedURL, o.cfg.LibraryID, s.AssetID),
		Visibility:   video.ParseVisibility(d.Visibility),
		Duration:     d.Duration,
		OwnerID:      actorID,
	}
	if err := o.cfg.Videos.Create(ctx, v); err != nil {
		return nil, fail(StagePersist, ErrPersistence, err)
	}

	o.logger.Info("video saved", "asset_id", v.AssetID, "video_id", v.ID, "actor_id", actorID)
	o.cfg.Captions.Dispatch(v.AssetID)

	return v, nil
}

// Upload runs BeginUpload and CompleteUpload back to back.
func (o *Orchestrator) Upload(ctx context.Context, actorID string, d Details) (*video.Video, error) {
	if actorID == "" {
		return nil, fail(StageAuthenticate, ErrAuthenticationRequired, nil)
	}
	if err := d.validate(); err != nil {
		return nil, fail(StageValidate, ErrInvalidInput, err)
	}

	s, err := o.BeginUpload(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return o.CompleteUpload(ctx, actorID, s, d)
}
