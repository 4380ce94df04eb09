package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Slot is a single-use destination for one thumbnail upload.
type Slot struct {
	UploadURL string `json:"uploadUrl"`
	AccessKey string `json:"accessKey"`
	CDNURL    string `json:"cdnUrl"`
}

// Complete reports whether the slot can be uploaded to and served from.
// AccessKey may legitimately be empty for presigned URLs, so callers that
// need it check it themselves.
func (s *Slot) Complete() bool {
	return s != nil && s.UploadURL != "" && s.CDNURL != ""
}

// Allocator issues thumbnail slots scoped to a remote asset.
type Allocator interface {
	AllocateThumbnail(ctx context.Context, assetID string) (*Slot, error)
}

// SlotName is unique per request for distinct assets: {unixMillis}-{assetID}-thumbnail.
func SlotName(now time.Time, assetID string) string {
	return fmt.Sprintf("%d-%s-thumbnail", now.UnixMilli(), assetID)
}

// ZoneAllocator hands out paths in a Bunny storage zone. Uploads go
// straight to the zone with the storage key and are served from the pull zone.
type ZoneAllocator struct {
	storageBaseURL string
	cdnBaseURL     string
	accessKey      string
	now            func() time.Time
}

var _ Allocator = (*ZoneAllocator)(nil)

func NewZoneAllocator(storageBaseURL, cdnBaseURL, accessKey string) *ZoneAllocator {
	return &ZoneAllocator{
		storageBaseURL: strings.TrimRight(storageBaseURL, "/"),
		cdnBaseURL:     strings.TrimRight(cdnBaseURL, "/"),
		accessKey:      accessKey,
		now:            time.Now,
	}
}

func (z *ZoneAllocator) AllocateThumbnail(ctx context.Context, assetID string) (*Slot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if assetID == "" {
		return nil, fmt.Errorf("asset id is required")
	}

	name := url.PathEscape(SlotName(z.now(), assetID))
	return &Slot{
		UploadURL: z.storageBaseURL + "/thumbnails/" + name,
		AccessKey: z.accessKey,
		CDNURL:    z.cdnBaseURL + "/thumbnails/" + name,
	}, nil
}
