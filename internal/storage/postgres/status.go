package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"vidsync/internal/domain"
)

type StatusStore struct {
	db *sqlx.DB
}

func NewStatusStore(db *sqlx.DB) *StatusStore {
	return &StatusStore{db: db}
}

func (s *StatusStore) Get(ctx context.Context, videoID string) (*domain.WatchStatus, error) {
	var status domain.WatchStatus
	query := `
		SELECT video_id, state, position, last_modified, synced
		FROM watch_status
		WHERE video_id = $1`

	err := s.db.GetContext(ctx, &status, query, videoID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &status, nil
}

func (s *StatusStore) Upsert(ctx context.Context, status *domain.WatchStatus) error {
	query := `
		INSERT INTO watch_status (video_id, state, position, last_modified, synced)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (video_id) DO UPDATE SET
			state = EXCLUDED.state,
			position = EXCLUDED.position,
			last_modified = EXCLUDED.last_modified,
			synced = EXCLUDED.synced`

	_, err := s.db.ExecContext(ctx, query,
		status.VideoID,
		status.State,
		status.Position,
		status.LastModified,
		status.Synced,
	)
	return err
}

// Delete removes a status record, reporting whether one existed.
// Tombstones for unknown videos are not an error.
func (s *StatusStore) Delete(ctx context.Context, videoID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM watch_status WHERE video_id = $1", videoID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *StatusStore) Unsynced(ctx context.Context) ([]domain.WatchStatus, error) {
	query := `
		SELECT video_id, state, position, last_modified, synced
		FROM watch_status
		WHERE NOT synced
		ORDER BY last_modified`

	var statuses []domain.WatchStatus
	err := s.db.SelectContext(ctx, &statuses, query)
	return statuses, err
}

func (s *StatusStore) MarkSynced(ctx context.Context, videoIDs []string) error {
	if len(videoIDs) == 0 {
		return nil
	}

	_, err := s.db.ExecContext(ctx,
		"UPDATE watch_status SET synced = TRUE WHERE video_id = ANY($1)",
		pq.Array(videoIDs),
	)
	return err
}
