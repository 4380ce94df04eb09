package web

import (
	"context"
	"net/http"

	"snapcast/internal/transcript"
	"snapcast/internal/upload"
	"snapcast/internal/video"
)

type Uploader interface {
	BeginUpload(ctx context.Context, actorID string) (*upload.Session, error)
	CompleteUpload(ctx context.Context, actorID string, s *upload.Session, d upload.Details) (*video.Video, error)
	Upload(ctx context.Context, actorID string, d upload.Details) (*video.Video, error)
}

type VideoReader interface {
	GetByAssetID(ctx context.Context, assetID string) (*video.Video, error)
}

type TranscriptResolver interface {
	Resolve(ctx context.Context, assetID string) transcript.Result
}

// Authenticator resolves the acting user of a request. An empty id means
// the request is anonymous.
type Authenticator interface {
	Authenticate(r *http.Request) string
}

var (
	_ Uploader           = (*upload.Orchestrator)(nil)
	_ VideoReader        = (video.Store)(nil)
	_ TranscriptResolver = (*transcript.Resolver)(nil)
)
