package transcript

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"snapcast/internal/bunny"
)

// Key identifies one caption track.
type Key struct {
	AssetID string
	// GUID is the id reported by asset info. It seeds the CDN hostname.
	GUID string
	Lang string
}

// Strategy is one place a caption track may be fetched from.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, key Key) (string, error)
}

type CaptionFetcher interface {
	FetchCaptionTrack(ctx context.Context, assetID, lang string) (string, error)
}

// APIStrategy asks the stream API for the track.
type APIStrategy struct {
	Client CaptionFetcher
}

func (s *APIStrategy) Name() string { return "api" }

func (s *APIStrategy) Attempt(ctx context.Context, key Key) (string, error) {
	return s.Client.FetchCaptionTrack(ctx, key.AssetID, key.Lang)
}

// CDNStrategy fetches the .vtt from the pull zone. Template placeholders
// are {prefix} (first 8 characters of the GUID), {asset} and {lang}.
type CDNStrategy struct {
	Template   string
	HTTPClient *http.Client
}

func (s *CDNStrategy) Name() string { return "cdn" }

func (s *CDNStrategy) Attempt(ctx context.Context, key Key) (string, error) {
	prefix := key.GUID
	if prefix == "" {
		prefix = "default"
	} else if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	u := strings.NewReplacer(
		"{prefix}", prefix,
		"{asset}", url.PathEscape(key.AssetID),
		"{lang}", url.PathEscape(key.Lang),
	).Replace(s.Template)
	return fetch(ctx, s.HTTPClient, u)
}

// EmbedStrategy fetches the .vtt from the player embed host.
type EmbedStrategy struct {
	BaseURL    string
	LibraryID  string
	HTTPClient *http.Client
}

func (s *EmbedStrategy) Name() string { return "embed" }

func (s *EmbedStrategy) Attempt(ctx context.Context, key Key) (string, error) {
	u := fmt.Sprintf("%s/%s/%s/captions/%s.vtt",
		strings.TrimRight(s.BaseURL, "/"), s.LibraryID, url.PathEscape(key.AssetID), url.PathEscape(key.Lang))
	return fetch(ctx, s.HTTPClient, u)
}

func fetch(ctx context.Context, client *http.Client, u string) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("GET %s: unexpected status %d", u, resp.StatusCode)
	}

	return bunny.ReadCaptionTrack(resp.Body)
}
