package postgres

import (
	"context"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"vidsync/internal/domain"
)

type ChannelStore struct {
	db *sqlx.DB
}

func NewChannelStore(db *sqlx.DB) *ChannelStore {
	return &ChannelStore{db: db}
}

// UpsertBatch saves channels in one statement. Duplicate ids within the
// batch are dropped first (first occurrence wins); a multi-row upsert
// cannot touch the same row twice.
func (s *ChannelStore) UpsertBatch(ctx context.Context, channels []domain.Channel) error {
	seen := make(map[string]bool, len(channels))
	deduped := make([]domain.Channel, 0, len(channels))
	for _, ch := range channels {
		if seen[ch.ID] {
			continue
		}
		seen[ch.ID] = true
		deduped = append(deduped, ch)
	}

	if len(deduped) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO channels (id, name, thumbnail_url, description, uploads_id, last_modified, synced) VALUES ")
	args := make([]interface{}, 0, len(deduped)*7)

	for i, ch := range deduped {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j := 0; j < 7; j++ {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("$")
			sb.WriteString(strconv.Itoa(i*7 + j + 1))
		}
		sb.WriteString(")")
		args = append(args, ch.ID, ch.Name, ch.ThumbnailURL, ch.Description, ch.UploadsID, ch.LastModified, ch.Synced)
	}
	sb.WriteString(` ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name,
		thumbnail_url = EXCLUDED.thumbnail_url,
		description = EXCLUDED.description,
		uploads_id = EXCLUDED.uploads_id,
		last_modified = EXCLUDED.last_modified,
		synced = EXCLUDED.synced`)

	_, err := s.db.ExecContext(ctx, sb.String(), args...)
	return err
}

func (s *ChannelStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM channels")
	return count, err
}
