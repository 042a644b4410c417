package domain

import "time"

// MinVideoDuration is the short-form cutoff. Feed deltas below it are
// dropped before merge.
const MinVideoDuration = 60

type Video struct {
	ID           string    `db:"id"` // video identifier from the feed server
	ChannelID    string    `db:"channel_id"`
	Title        string    `db:"title"`
	Description  string    `db:"description"`
	ThumbnailURL string    `db:"thumbnail_url"`
	Duration     int       `db:"duration"` // seconds
	PublishedAt  time.Time `db:"published_at"`
	AddedAt      time.Time `db:"added_at"`
	LastModified time.Time `db:"last_modified"`
	Synced       bool      `db:"synced"` // always true: feed videos are never pushed
}

type Channel struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	ThumbnailURL string    `db:"thumbnail_url"`
	Description  string    `db:"description"`
	UploadsID    string    `db:"uploads_id"` // uploads collection on the feed server
	LastModified time.Time `db:"last_modified"`
	Synced       bool      `db:"synced"`
}

// Credential authorizes subscription listing on the upstream channel-list
// provider. Feed paging itself only needs the registered user id.
type Credential struct {
	AccessToken string
}
