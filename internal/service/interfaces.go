package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"vidsync/internal/domain"
)

type VideoStore interface {
	// Upsert inserts or overwrites a video by id. The bool reports
	// whether a new row was inserted.
	Upsert(ctx context.Context, video *domain.Video) (bool, error)
	Get(ctx context.Context, id string) (*domain.Video, error)
	Count(ctx context.Context) (int, error)
}

type ChannelStore interface {
	// UpsertBatch saves channels deduplicated by id; the first
	// occurrence of a duplicate id wins.
	UpsertBatch(ctx context.Context, channels []domain.Channel) error
	Count(ctx context.Context) (int, error)
}

type StatusStore interface {
	// Get returns nil without error when no record exists.
	Get(ctx context.Context, videoID string) (*domain.WatchStatus, error)
	Upsert(ctx context.Context, status *domain.WatchStatus) error
	// Delete reports whether a record was actually removed.
	Delete(ctx context.Context, videoID string) (bool, error)
	Unsynced(ctx context.Context) ([]domain.WatchStatus, error)
	MarkSynced(ctx context.Context, videoIDs []string) error
}

type SyncStateStore interface {
	Get(ctx context.Context, syncDomain string) (*domain.SyncState, error)
	Update(ctx context.Context, state *domain.SyncState) error
}

type FeedClient interface {
	Health(ctx context.Context) (*domain.FeedHealth, error)
	Subscriptions(ctx context.Context, cred domain.Credential) ([]domain.Channel, error)
	RegisterChannels(ctx context.Context, userID string, channelIDs []string) error
	// FetchPage requests deltas newer than since (nil means full fetch)
	// starting at cursor (empty means first page).
	FetchPage(ctx context.Context, userID string, since *time.Time, cursor string, limit int) (*domain.FeedPage, error)
}

type RecordStore interface {
	Available(ctx context.Context) bool
	ZoneExists(ctx context.Context, zone string) (bool, error)
	CreateZone(ctx context.Context, zone string) error
	// FetchChanges requests changes since token (empty means full zone
	// fetch). The token is opaque: stored and replayed, never parsed.
	FetchChanges(ctx context.Context, zone, token string) (*domain.ChangeSet, error)
	UpsertBatch(ctx context.Context, zone, owner string, statuses []domain.WatchStatus) error
}

type Publisher interface {
	Publish(ctx context.Context, video *domain.Video, isNew bool) error
	Close() error
}
