package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"vidsync/internal/domain"
)

type SyncStateStore struct {
	db *sqlx.DB
}

func NewSyncStateStore(db *sqlx.DB) *SyncStateStore {
	return &SyncStateStore{db: db}
}

func (s *SyncStateStore) Get(ctx context.Context, syncDomain string) (*domain.SyncState, error) {
	var state domain.SyncState
	query := `
		SELECT id, domain, last_synced_at, change_token, total_synced
		FROM sync_state
		WHERE domain = $1`

	err := s.db.GetContext(ctx, &state, query, syncDomain)
	if errors.Is(err, sql.ErrNoRows) {
		// A domain that has never synced starts with an empty state.
		return &domain.SyncState{Domain: syncDomain}, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *SyncStateStore) Update(ctx context.Context, state *domain.SyncState) error {
	query := `
		INSERT INTO sync_state (domain, last_synced_at, change_token, total_synced)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (domain) DO UPDATE SET
			last_synced_at = EXCLUDED.last_synced_at,
			change_token = EXCLUDED.change_token,
			total_synced = EXCLUDED.total_synced`

	_, err := s.db.ExecContext(ctx, query,
		state.Domain,
		state.LastSyncedAt,
		state.ChangeToken,
		state.TotalSynced,
	)
	return err
}
