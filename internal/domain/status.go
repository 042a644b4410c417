package domain

import "time"

type WatchState string

const (
	WatchStateUnknown   WatchState = "unknown"
	WatchStateUnwatched WatchState = "unwatched"
	WatchStateWatched   WatchState = "watched"
	WatchStateSkipped   WatchState = "skipped"
)

// WatchStatus tracks per-video watch state, keyed by video id (at most
// one record per video).
type WatchStatus struct {
	VideoID      string     `db:"video_id"`
	State        WatchState `db:"state"`
	Position     float64    `db:"position"` // playback position in seconds, for resume
	LastModified time.Time  `db:"last_modified"`
	Synced       bool       `db:"synced"`
}

// RemoteRecord is a raw record from the record store. Fields are decoded
// by the status sync engine; records missing required fields are
// discarded there, not at the transport layer.
type RemoteRecord struct {
	ID     string
	Fields map[string]any
}

// ChangeSet is one incremental fetch from a record store zone.
type ChangeSet struct {
	Changed  []RemoteRecord
	Deleted  []string // tombstoned record ids
	NewToken string
}
