package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vidsync/internal/config"
	"vidsync/internal/domain"
)

// FeedSyncService keeps local video and channel records current with the
// feed server. Pull-only: feed records are never pushed back.
type FeedSyncService struct {
	feed      FeedClient
	videos    VideoStore
	channels  ChannelStore
	syncState SyncStateStore
	publisher Publisher
	logger    *slog.Logger
	config    config.FeedSyncConfig
	userID    string
	now       func() time.Time
}

func NewFeedSyncService(
	feed FeedClient,
	videos VideoStore,
	channels ChannelStore,
	syncState SyncStateStore,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.FeedSyncConfig,
	userID string,
) *FeedSyncService {
	return &FeedSyncService{
		feed:      feed,
		videos:    videos,
		channels:  channels,
		syncState: syncState,
		publisher: publisher,
		logger:    logger.With("domain", domain.SyncDomainFeed),
		config:    cfg,
		userID:    userID,
		now:       time.Now,
	}
}

// ShouldSync reports whether enough time has passed since the last
// successful pass. It only reads persisted state.
func (s *FeedSyncService) ShouldSync(ctx context.Context) (bool, error) {
	state, err := s.syncState.Get(ctx, domain.SyncDomainFeed)
	if err != nil {
		return false, fmt.Errorf("get sync state: %w", err)
	}
	return shouldSync(watermark(state), s.config.Interval, s.now()), nil
}

func (s *FeedSyncService) SyncIfNeeded(ctx context.Context, cred *domain.Credential) (*domain.FeedSyncStats, error) {
	due, err := s.ShouldSync(ctx)
	if err != nil {
		return nil, err
	}
	if !due {
		return &domain.FeedSyncStats{}, nil
	}
	return s.Sync(ctx, cred)
}

// Sync runs one full feed pass: health check, channel registration when
// needed, paginated delta fetch, filter and merge. The watermark is
// advanced only when the whole pass succeeds, so a failed pass retries
// the same incremental window.
func (s *FeedSyncService) Sync(ctx context.Context, cred *domain.Credential) (*domain.FeedSyncStats, error) {
	startTime := s.now()

	health, err := s.feed.Health(ctx)
	if err != nil {
		return nil, fmt.Errorf("feed server health check: %w", err)
	}

	s.logger.Info("starting feed sync",
		"server_channels", health.ChannelCount,
		"server_videos", health.VideoCount,
		"max_pages", s.config.MaxPages,
	)

	state, err := s.syncState.Get(ctx, domain.SyncDomainFeed)
	if err != nil {
		return nil, fmt.Errorf("get sync state: %w", err)
	}

	stats := &domain.FeedSyncStats{}

	channelCount, err := s.channels.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count channels: %w", err)
	}
	if channelCount == 0 {
		if cred == nil {
			s.logger.Info("no channels registered and no credential, skipping registration")
		} else {
			registered, err := s.registerChannels(ctx, *cred)
			if err != nil {
				return nil, err
			}
			stats.Registered = registered
		}
	}

	if err := s.fetchAndMerge(ctx, watermark(state), stats); err != nil {
		return nil, err
	}

	state.LastSyncedAt = sql.NullTime{Time: s.now(), Valid: true}
	state.TotalSynced += int64(stats.NewVideos)
	if err := s.syncState.Update(ctx, state); err != nil {
		return nil, fmt.Errorf("update sync state: %w", err)
	}

	stats.Duration = time.Since(startTime)

	s.logger.Info("feed sync completed",
		"pages", stats.Pages,
		"fetched", stats.Fetched,
		"filtered", stats.Filtered,
		"new", stats.NewVideos,
		"updated", stats.Updated,
		"duration", stats.Duration,
	)

	return stats, nil
}

// registerChannels fetches the user's subscriptions, saves them locally
// and registers the channel id set with the feed server.
func (s *FeedSyncService) registerChannels(ctx context.Context, cred domain.Credential) (int, error) {
	subs, err := s.feed.Subscriptions(ctx, cred)
	if err != nil {
		return 0, fmt.Errorf("fetch subscriptions: %w", err)
	}

	// Keep the first occurrence of each channel id.
	seen := make(map[string]bool, len(subs))
	channels := make([]domain.Channel, 0, len(subs))
	for _, ch := range subs {
		if seen[ch.ID] {
			continue
		}
		seen[ch.ID] = true
		channels = append(channels, ch)
	}

	if err := s.channels.UpsertBatch(ctx, channels); err != nil {
		return 0, fmt.Errorf("save channels: %w", err)
	}

	ids := make([]string, len(channels))
	for i, ch := range channels {
		ids[i] = ch.ID
	}
	if err := s.feed.RegisterChannels(ctx, s.userID, ids); err != nil {
		return 0, fmt.Errorf("register channels: %w", err)
	}

	s.logger.Info("registered channels", "count", len(channels))
	return len(channels), nil
}

func (s *FeedSyncService) fetchAndMerge(ctx context.Context, since *time.Time, stats *domain.FeedSyncStats) error {
	cursor := ""
	truncated := true

	for page := 0; page < s.config.MaxPages; page++ {
		resp, err := withRetry(ctx, s.config.Retry, s.logger, "fetch feed page",
			func(err error) bool { return errors.Is(err, domain.ErrUserNotFound) },
			func(ctx context.Context) (*domain.FeedPage, error) {
				return s.feed.FetchPage(ctx, s.userID, since, cursor, s.config.PageSize)
			},
		)
		if err != nil {
			return err
		}

		stats.Pages++
		if err := s.mergePage(ctx, resp.Videos, stats); err != nil {
			return err
		}

		if resp.NextCursor == "" {
			truncated = false
			break
		}
		cursor = resp.NextCursor
	}

	if truncated {
		s.logger.Warn("pagination cap reached, feed truncated", "pages", stats.Pages)
	}
	return nil
}

func (s *FeedSyncService) mergePage(ctx context.Context, videos []domain.Video, stats *domain.FeedSyncStats) error {
	for i := range videos {
		video := &videos[i]
		stats.Fetched++

		if video.Title == "" || video.Duration < domain.MinVideoDuration {
			stats.Filtered++
			continue
		}

		video.Synced = true
		inserted, err := s.videos.Upsert(ctx, video)
		if err != nil {
			return fmt.Errorf("upsert video: %w", err)
		}

		if inserted {
			stats.NewVideos++
		} else {
			stats.Updated++
		}

		if s.publisher != nil {
			if err := s.publisher.Publish(ctx, video, inserted); err != nil {
				s.logger.Warn("failed to publish video", "video_id", video.ID, "error", err)
			}
		}
	}
	return nil
}

// watermark converts the persisted nullable timestamp into the pointer
// form the shouldSync gate and page requests use.
func watermark(state *domain.SyncState) *time.Time {
	if !state.LastSyncedAt.Valid {
		return nil
	}
	t := state.LastSyncedAt.Time
	return &t
}
