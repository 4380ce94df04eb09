package video

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"snapcast/internal/database"
)

type SQLStore struct {
	db *database.DB
}

var _ Store = (*SQLStore)(nil)

func NewSQLStore(db *database.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Create assigns ID and timestamps when they are unset and inserts the row.
func (s *SQLStore) Create(ctx context.Context, v *Video) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now
	v.Visibility = ParseVisibility(string(v.Visibility))

	var duration sql.NullInt64
	if v.Duration != nil {
		if *v.Duration < 0 {
			return fmt.Errorf("invalid duration %d", *v.Duration)
		}
		duration = sql.NullInt64{Int64: int64(*v.Duration), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO videos (id, asset_id, title, description, thumbnail_url, video_url,
			visibility, duration_seconds, owner_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		v.ID, v.AssetID, v.Title, v.Description, v.ThumbnailURL, v.VideoURL,
		string(v.Visibility), duration, v.OwnerID, v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert video: %w", err)
	}

	return nil
}

func (s *SQLStore) GetByAssetID(ctx context.Context, assetID string) (*Video, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(`
		SELECT id, asset_id, title, description, thumbnail_url, video_url,
			visibility, duration_seconds, owner_id, created_at, updated_at
		FROM videos WHERE asset_id = ?`), assetID)

	var (
		v          Video
		visibility string
		duration   sql.NullInt64
	)
	err := row.Scan(&v.ID, &v.AssetID, &v.Title, &v.Description, &v.ThumbnailURL, &v.VideoURL,
		&visibility, &duration, &v.OwnerID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read video: %w", err)
	}

	v.Visibility = Visibility(visibility)
	if duration.Valid {
		d := int(duration.Int64)
		v.Duration = &d
	}

	return &v, nil
}
