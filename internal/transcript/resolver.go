package transcript

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"snapcast/internal/bunny"
)

type Status string

const (
	StatusEntries     Status = "entries"
	StatusRaw         Status = "raw"
	StatusUnavailable Status = "unavailable"
)

type Result struct {
	Status   Status  `json:"status"`
	Language string  `json:"language,omitempty"`
	Source   string  `json:"source,omitempty"`
	Entries  []Entry `json:"entries,omitempty"`
	Raw      string  `json:"raw,omitempty"`
}

func unavailable() Result {
	return Result{Status: StatusUnavailable}
}

type AssetInfoer interface {
	AssetInfo(ctx context.Context, assetID string) (*bunny.AssetInfo, error)
}

// Resolver walks its strategies in order and returns the first non-empty
// track. Strategies are never retried or run concurrently.
type Resolver struct {
	info        AssetInfoer
	strategies  []Strategy
	tierTimeout time.Duration
	logger      *slog.Logger
}

func NewResolver(info AssetInfoer, tierTimeout time.Duration, strategies ...Strategy) *Resolver {
	return &Resolver{
		info:        info,
		strategies:  strategies,
		tierTimeout: tierTimeout,
		logger:      slog.With("component", "transcript"),
	}
}

func (r *Resolver) Resolve(ctx context.Context, assetID string) Result {
	log := r.logger.With("asset_id", assetID)

	infoCtx, cancel := context.WithTimeout(ctx, r.tierTimeout)
	info, err := r.info.AssetInfo(infoCtx, assetID)
	cancel()
	if err != nil {
		log.Warn("asset info failed", "error", err)
		return unavailable()
	}
	if len(info.Captions) == 0 {
		log.Debug("no caption tracks")
		return unavailable()
	}

	lang := info.Captions[0].SrcLang
	if lang == "" {
		lang = "en"
	}
	key := Key{AssetID: assetID, GUID: info.GUID, Lang: lang}

	for _, s := range r.strategies {
		if ctx.Err() != nil {
			break
		}
		body, err := r.attempt(ctx, s, key)
		if err != nil {
			log.Info("caption tier failed", "tier", s.Name(), "lang", lang, "error", err)
			continue
		}
		if strings.TrimSpace(body) == "" {
			log.Info("caption tier returned empty body", "tier", s.Name(), "lang", lang)
			continue
		}

		result := Result{Language: lang, Source: s.Name()}
		if entries, ok := Parse(body); ok {
			result.Status = StatusEntries
			result.Entries = entries
		} else {
			result.Status = StatusRaw
			result.Raw = body
		}
		return result
	}

	log.Info("all caption tiers failed", "lang", lang)
	return unavailable()
}

func (r *Resolver) attempt(ctx context.Context, s Strategy, key Key) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.tierTimeout)
	defer cancel()
	return s.Attempt(ctx, key)
}
