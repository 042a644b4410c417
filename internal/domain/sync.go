package domain

import (
	"database/sql"
	"time"
)

// Sync domains. Each owns one SyncState row.
const (
	SyncDomainFeed   = "feed"
	SyncDomainStatus = "status"
)

// SyncState is the durable bookkeeping that makes a sync engine
// resumable across restarts. LastSyncedAt is the watermark (invalid
// until the first successful pass). ChangeToken is the record store's
// opaque continuation token; only the status domain uses it and it is
// never interpreted, only stored and replayed.
type SyncState struct {
	ID           int64          `db:"id"`
	Domain       string         `db:"domain"`
	LastSyncedAt sql.NullTime   `db:"last_synced_at"`
	ChangeToken  sql.NullString `db:"change_token"`
	TotalSynced  int64          `db:"total_synced"`
}

// FeedSyncStats summarizes one feed sync pass.
type FeedSyncStats struct {
	Pages      int
	Fetched    int
	Filtered   int
	NewVideos  int
	Updated    int
	Registered int // channels registered this pass
	Duration   time.Duration
}

// StatusSyncStats summarizes one status sync pass.
type StatusSyncStats struct {
	Pulled   int
	Pushed   int
	Skipped  int // remote changes discarded by conflict resolution
	Duration time.Duration
}

// FeedPage is one page of video deltas from the feed server. An empty
// NextCursor ends pagination.
type FeedPage struct {
	Videos     []Video
	NextCursor string
}

// FeedHealth is the feed server's health report.
type FeedHealth struct {
	ChannelCount int
	VideoCount   int
}
