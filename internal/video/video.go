package video

import (
	"context"
	"errors"
	"strings"
	"time"
)

type Visibility string

const (
	Public  Visibility = "public"
	Private Visibility = "private"
)

// ParseVisibility never rejects: anything other than "private" or "public" becomes Public.
func ParseVisibility(s string) Visibility {
	switch Visibility(strings.ToLower(strings.TrimSpace(s))) {
	case Private:
		return Private
	default:
		return Public
	}
}

type Video struct {
	ID           string     `json:"id"`
	AssetID      string     `json:"assetId"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	ThumbnailURL string     `json:"thumbnailUrl"`
	VideoURL     string     `json:"videoUrl"`
	Visibility   Visibility `json:"visibility"`
	Duration     *int       `json:"duration"` // seconds, nil until probed
	OwnerID      string     `json:"ownerId"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

var ErrAlreadyExists = errors.New("video with this asset id already exists")

type Store interface {
	Create(ctx context.Context, v *Video) error
	// GetByAssetID returns nil, nil when no video references the asset.
	GetByAssetID(ctx context.Context, assetID string) (*Video, error)
}
