package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"vidsync/internal/domain"
)

type VideoStore struct {
	db *sqlx.DB
}

func NewVideoStore(db *sqlx.DB) *VideoStore {
	return &VideoStore{db: db}
}

// Upsert inserts or overwrites a video by id and reports whether a new
// row was created, so merges can count genuinely new videos.
func (s *VideoStore) Upsert(ctx context.Context, video *domain.Video) (bool, error) {
	query := `
		INSERT INTO videos (
			id, channel_id, title, description, thumbnail_url,
			duration, published_at, last_modified, synced
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
		ON CONFLICT (id) DO UPDATE SET
			channel_id = EXCLUDED.channel_id,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			thumbnail_url = EXCLUDED.thumbnail_url,
			duration = EXCLUDED.duration,
			published_at = EXCLUDED.published_at,
			last_modified = EXCLUDED.last_modified,
			synced = EXCLUDED.synced
		RETURNING (xmax = 0) AS inserted`

	var inserted bool
	err := s.db.QueryRowContext(ctx, query,
		video.ID,
		video.ChannelID,
		video.Title,
		video.Description,
		video.ThumbnailURL,
		video.Duration,
		video.PublishedAt,
		video.LastModified,
		video.Synced,
	).Scan(&inserted)
	if err != nil {
		return false, err
	}

	return inserted, nil
}

func (s *VideoStore) Get(ctx context.Context, id string) (*domain.Video, error) {
	var video domain.Video
	query := `
		SELECT id, channel_id, title, description, thumbnail_url,
		       duration, published_at, added_at, last_modified, synced
		FROM videos
		WHERE id = $1`

	err := s.db.GetContext(ctx, &video, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &video, nil
}

func (s *VideoStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM videos")
	return count, err
}
