package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"vidsync/internal/config"
	"vidsync/internal/domain"
)

// StatusSyncService reconciles watch-status records bidirectionally with
// the zone-scoped record store: a pull phase resolving remote changes by
// recency, then a push phase uploading unsynced local records in
// batches. Passes are serialized by an in-progress guard; a call made
// while a pass is active returns zero counts immediately.
type StatusSyncService struct {
	records   RecordStore
	statuses  StatusStore
	syncState SyncStateStore
	logger    *slog.Logger
	config    config.StatusSyncConfig
	userID    string
	now       func() time.Time
	syncing   atomic.Bool
}

func NewStatusSyncService(
	records RecordStore,
	statuses StatusStore,
	syncState SyncStateStore,
	logger *slog.Logger,
	cfg config.StatusSyncConfig,
	userID string,
) *StatusSyncService {
	return &StatusSyncService{
		records:   records,
		statuses:  statuses,
		syncState: syncState,
		logger:    logger.With("domain", domain.SyncDomainStatus),
		config:    cfg,
		userID:    userID,
		now:       time.Now,
	}
}

func (s *StatusSyncService) ShouldSync(ctx context.Context) (bool, error) {
	state, err := s.syncState.Get(ctx, domain.SyncDomainStatus)
	if err != nil {
		return false, fmt.Errorf("get sync state: %w", err)
	}
	return shouldSync(watermark(state), s.config.Interval, s.now()), nil
}

func (s *StatusSyncService) SyncIfNeeded(ctx context.Context) (*domain.StatusSyncStats, error) {
	if s.syncing.Load() {
		return &domain.StatusSyncStats{}, nil
	}
	if !s.records.Available(ctx) {
		s.logger.Debug("record store unavailable, skipping sync")
		return &domain.StatusSyncStats{}, nil
	}
	due, err := s.ShouldSync(ctx)
	if err != nil {
		return nil, err
	}
	if !due {
		return &domain.StatusSyncStats{}, nil
	}
	return s.Sync(ctx)
}

// Sync runs one pass: zone ensure, pull, conflict resolution, deletions,
// push. The pass is incrementally idempotent rather than atomic: the
// change token and per-batch synced flags stick even when a later step
// fails; only a fully successful pass advances the watermark.
func (s *StatusSyncService) Sync(ctx context.Context) (*domain.StatusSyncStats, error) {
	if !s.syncing.CompareAndSwap(false, true) {
		s.logger.Debug("sync already in progress")
		return &domain.StatusSyncStats{}, nil
	}
	defer s.syncing.Store(false)

	startTime := s.now()
	stats := &domain.StatusSyncStats{}

	if err := s.ensureZone(ctx); err != nil {
		return nil, err
	}

	state, err := s.syncState.Get(ctx, domain.SyncDomainStatus)
	if err != nil {
		return nil, fmt.Errorf("get sync state: %w", err)
	}

	if err := s.pull(ctx, state, stats); err != nil {
		return nil, err
	}

	if err := s.push(ctx, stats); err != nil {
		return nil, err
	}

	state.LastSyncedAt = sql.NullTime{Time: s.now(), Valid: true}
	state.TotalSynced += int64(stats.Pulled + stats.Pushed)
	if err := s.syncState.Update(ctx, state); err != nil {
		return nil, fmt.Errorf("update sync state: %w", err)
	}

	stats.Duration = time.Since(startTime)

	s.logger.Info("status sync completed",
		"pulled", stats.Pulled,
		"pushed", stats.Pushed,
		"skipped", stats.Skipped,
		"duration", stats.Duration,
	)

	return stats, nil
}

// ensureZone creates the zone whenever the existence check does not
// positively confirm it, including on check errors.
func (s *StatusSyncService) ensureZone(ctx context.Context) error {
	exists, err := s.records.ZoneExists(ctx, s.config.Zone)
	if err == nil && exists {
		return nil
	}
	if err != nil {
		s.logger.Warn("zone existence check failed, attempting create", "zone", s.config.Zone, "error", err)
	}
	if err := s.records.CreateZone(ctx, s.config.Zone); err != nil {
		return fmt.Errorf("create zone %q: %w", s.config.Zone, err)
	}
	s.logger.Info("created record store zone", "zone", s.config.Zone)
	return nil
}

func (s *StatusSyncService) pull(ctx context.Context, state *domain.SyncState, stats *domain.StatusSyncStats) error {
	changes, err := s.records.FetchChanges(ctx, s.config.Zone, state.ChangeToken.String)
	if err != nil {
		return fmt.Errorf("fetch changes: %w", err)
	}

	s.logger.Info("fetched remote changes",
		"changed", len(changes.Changed),
		"deleted", len(changes.Deleted),
	)

	for _, rec := range changes.Changed {
		remote, err := decodeWatchStatus(rec)
		if err != nil {
			s.logger.Warn("discarding malformed record", "record_id", rec.ID, "error", err)
			continue
		}
		applied, err := s.resolve(ctx, remote)
		if err != nil {
			return err
		}
		if applied {
			stats.Pulled++
		} else {
			stats.Skipped++
		}
	}

	for _, id := range changes.Deleted {
		deleted, err := s.statuses.Delete(ctx, id)
		if err != nil {
			return fmt.Errorf("delete status %q: %w", id, err)
		}
		if deleted {
			stats.Pulled++
		}
	}

	// The token is persisted as soon as the fetch has been fully
	// applied; a later push failure must not replay this window.
	state.ChangeToken = sql.NullString{String: changes.NewToken, Valid: true}
	if err := s.syncState.Update(ctx, state); err != nil {
		return fmt.Errorf("persist change token: %w", err)
	}

	return nil
}

// resolve applies last-write-wins against the local record. A tie on
// equal timestamps keeps the local value: the syncing device wins.
func (s *StatusSyncService) resolve(ctx context.Context, remote *domain.WatchStatus) (bool, error) {
	local, err := s.statuses.Get(ctx, remote.VideoID)
	if err != nil {
		return false, fmt.Errorf("get status %q: %w", remote.VideoID, err)
	}

	if local != nil && !remote.LastModified.After(local.LastModified) {
		return false, nil
	}

	remote.Synced = true
	if err := s.statuses.Upsert(ctx, remote); err != nil {
		return false, fmt.Errorf("upsert status %q: %w", remote.VideoID, err)
	}
	return true, nil
}

func (s *StatusSyncService) push(ctx context.Context, stats *domain.StatusSyncStats) error {
	unsynced, err := s.statuses.Unsynced(ctx)
	if err != nil {
		return fmt.Errorf("fetch unsynced statuses: %w", err)
	}
	if len(unsynced) == 0 {
		return nil
	}

	batches := chunk(unsynced, s.config.BatchSize)
	s.logger.Info("pushing unsynced statuses", "count", len(unsynced), "batches", len(batches))

	for i, batch := range batches {
		if err := s.records.UpsertBatch(ctx, s.config.Zone, s.userID, batch); err != nil {
			// Earlier batches stay marked synced; each batch is
			// independently idempotent to retry.
			return fmt.Errorf("push batch %d/%d: %w", i+1, len(batches), err)
		}

		ids := make([]string, len(batch))
		for j, st := range batch {
			ids[j] = st.VideoID
		}
		if err := s.statuses.MarkSynced(ctx, ids); err != nil {
			return fmt.Errorf("mark batch %d synced: %w", i+1, err)
		}
		stats.Pushed += len(batch)
	}

	return nil
}

// decodeWatchStatus extracts the required fields from a raw remote
// record. Records missing the id, a known state or a parsable
// last-modified timestamp are rejected.
func decodeWatchStatus(rec domain.RemoteRecord) (*domain.WatchStatus, error) {
	if rec.ID == "" {
		return nil, fmt.Errorf("missing record id")
	}

	stateRaw, ok := rec.Fields["state"].(string)
	if !ok {
		return nil, fmt.Errorf("missing state field")
	}
	state := domain.WatchState(stateRaw)
	switch state {
	case domain.WatchStateUnknown, domain.WatchStateUnwatched, domain.WatchStateWatched, domain.WatchStateSkipped:
	default:
		return nil, fmt.Errorf("unknown state %q", stateRaw)
	}

	lastModified, err := decodeTime(rec.Fields["last_modified"])
	if err != nil {
		return nil, fmt.Errorf("last_modified: %w", err)
	}

	status := &domain.WatchStatus{
		VideoID:      rec.ID,
		State:        state,
		LastModified: lastModified,
	}
	switch pos := rec.Fields["position"].(type) {
	case float64:
		status.Position = pos
	case int:
		status.Position = float64(pos)
	}

	return status, nil
}

func decodeTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, err
		}
		return parsed, nil
	default:
		return time.Time{}, fmt.Errorf("missing timestamp")
	}
}
