package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"vidsync/internal/config"
	"vidsync/internal/domain"
	"vidsync/internal/service/mocks"
)

type StatusSyncTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	records   *mocks.MockRecordStore
	statuses  *mocks.MockStatusStore
	syncState *mocks.MockSyncStateStore

	service *StatusSyncService
	cfg     config.StatusSyncConfig
	logger  *slog.Logger
	now     time.Time
}

func (s *StatusSyncTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.records = mocks.NewMockRecordStore(s.ctrl)
	s.statuses = mocks.NewMockStatusStore(s.ctrl)
	s.syncState = mocks.NewMockSyncStateStore(s.ctrl)

	s.cfg = config.StatusSyncConfig{
		Interval:  5 * time.Minute,
		Zone:      "watch-status",
		BatchSize: 400,
	}

	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s.now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	s.service = NewStatusSyncService(
		s.records,
		s.statuses,
		s.syncState,
		s.logger,
		s.cfg,
		"user-1",
	)
	s.service.now = func() time.Time { return s.now }
}

func (s *StatusSyncTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestStatusSyncTestSuite(t *testing.T) {
	suite.Run(t, new(StatusSyncTestSuite))
}

func (s *StatusSyncTestSuite) freshState() *domain.SyncState {
	return &domain.SyncState{Domain: domain.SyncDomainStatus}
}

func (s *StatusSyncTestSuite) expectZone() {
	s.records.EXPECT().ZoneExists(gomock.Any(), "watch-status").Return(true, nil)
}

func remoteRecord(videoID string, state domain.WatchState, lastModified time.Time) domain.RemoteRecord {
	return domain.RemoteRecord{
		ID: videoID,
		Fields: map[string]any{
			"state":         string(state),
			"position":      float64(0),
			"last_modified": lastModified,
		},
	}
}

func (s *StatusSyncTestSuite) TestSync_PullInsertsNewStatus() {
	ctx := context.Background()
	modified := s.now.Add(-1 * time.Hour)

	s.expectZone()
	s.syncState.EXPECT().Get(ctx, domain.SyncDomainStatus).Return(s.freshState(), nil)

	changes := &domain.ChangeSet{
		Changed:  []domain.RemoteRecord{remoteRecord("v1", domain.WatchStateWatched, modified)},
		NewToken: "tok-1",
	}
	s.records.EXPECT().FetchChanges(ctx, "watch-status", "").Return(changes, nil)

	s.statuses.EXPECT().Get(ctx, "v1").Return(nil, nil)
	s.statuses.EXPECT().Upsert(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, st *domain.WatchStatus) error {
			s.Equal(domain.WatchStateWatched, st.State)
			s.True(st.Synced)
			return nil
		},
	)

	s.statuses.EXPECT().Unsynced(ctx).Return(nil, nil)

	var updates []domain.SyncState
	s.syncState.EXPECT().Update(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, state *domain.SyncState) error {
			updates = append(updates, *state)
			return nil
		},
	).Times(2)

	stats, err := s.service.Sync(ctx)

	s.NoError(err)
	s.Equal(1, stats.Pulled)
	s.Equal(0, stats.Pushed)

	// First update persists the token without touching the watermark;
	// the second advances the watermark on full success.
	s.Require().Len(updates, 2)
	s.Equal("tok-1", updates[0].ChangeToken.String)
	s.False(updates[0].LastSyncedAt.Valid)
	s.True(updates[1].LastSyncedAt.Valid)
	s.Equal(s.now, updates[1].LastSyncedAt.Time)
}

func (s *StatusSyncTestSuite) TestSync_RemoteNewerOverwritesLocal() {
	ctx := context.Background()
	t1 := s.now.Add(-2 * time.Hour)
	t2 := s.now.Add(-1 * time.Hour)

	s.expectZone()
	s.syncState.EXPECT().Get(ctx, domain.SyncDomainStatus).Return(s.freshState(), nil)

	changes := &domain.ChangeSet{
		Changed:  []domain.RemoteRecord{remoteRecord("v1", domain.WatchStateSkipped, t2)},
		NewToken: "tok-1",
	}
	s.records.EXPECT().FetchChanges(ctx, "watch-status", "").Return(changes, nil)

	local := &domain.WatchStatus{VideoID: "v1", State: domain.WatchStateWatched, LastModified: t1, Synced: true}
	s.statuses.EXPECT().Get(ctx, "v1").Return(local, nil)
	s.statuses.EXPECT().Upsert(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, st *domain.WatchStatus) error {
			s.Equal(domain.WatchStateSkipped, st.State)
			s.Equal(t2, st.LastModified)
			s.True(st.Synced)
			return nil
		},
	)

	s.statuses.EXPECT().Unsynced(ctx).Return(nil, nil)
	s.syncState.EXPECT().Update(ctx, gomock.Any()).Return(nil).Times(2)

	stats, err := s.service.Sync(ctx)

	s.NoError(err)
	s.Equal(1, stats.Pulled)
}

func (s *StatusSyncTestSuite) TestSync_LocalNewerKept() {
	ctx := context.Background()
	t1 := s.now.Add(-1 * time.Hour)
	t2 := s.now.Add(-2 * time.Hour)

	s.expectZone()
	s.syncState.EXPECT().Get(ctx, domain.SyncDomainStatus).Return(s.freshState(), nil)

	changes := &domain.ChangeSet{
		Changed:  []domain.RemoteRecord{remoteRecord("v1", domain.WatchStateSkipped, t2)},
		NewToken: "tok-1",
	}
	s.records.EXPECT().FetchChanges(ctx, "watch-status", "").Return(changes, nil)

	local := &domain.WatchStatus{VideoID: "v1", State: domain.WatchStateWatched, LastModified: t1, Synced: true}
	s.statuses.EXPECT().Get(ctx, "v1").Return(local, nil)

	s.statuses.EXPECT().Unsynced(ctx).Return(nil, nil)
	s.syncState.EXPECT().Update(ctx, gomock.Any()).Return(nil).Times(2)

	stats, err := s.service.Sync(ctx)

	s.NoError(err)
	s.Equal(0, stats.Pulled)
	s.Equal(1, stats.Skipped)
}

func (s *StatusSyncTestSuite) TestSync_EqualTimestampKeepsLocal() {
	// A tie on last-modified deliberately favors the device performing
	// the sync: the local value stays untouched.
	ctx := context.Background()
	t1 := s.now.Add(-1 * time.Hour)

	s.expectZone()
	s.syncState.EXPECT().Get(ctx, domain.SyncDomainStatus).Return(s.freshState(), nil)

	changes := &domain.ChangeSet{
		Changed:  []domain.RemoteRecord{remoteRecord("v1", domain.WatchStateSkipped, t1)},
		NewToken: "tok-1",
	}
	s.records.EXPECT().FetchChanges(ctx, "watch-status", "").Return(changes, nil)

	local := &domain.WatchStatus{VideoID: "v1", State: domain.WatchStateWatched, LastModified: t1, Synced: true}
	s.statuses.EXPECT().Get(ctx, "v1").Return(local, nil)

	s.statuses.EXPECT().Unsynced(ctx).Return(nil, nil)
	s.syncState.EXPECT().Update(ctx, gomock.Any()).Return(nil).Times(2)

	stats, err := s.service.Sync(ctx)

	s.NoError(err)
	s.Equal(0, stats.Pulled)
	s.Equal(1, stats.Skipped)
}

func (s *StatusSyncTestSuite) TestSync_MalformedRecordDiscarded() {
	ctx := context.Background()

	s.expectZone()
	s.syncState.EXPECT().Get(ctx, domain.SyncDomainStatus).Return(s.freshState(), nil)

	changes := &domain.ChangeSet{
		Changed: []domain.RemoteRecord{
			{ID: "v-bad", Fields: map[string]any{"position": 12.5}}, // no state, no timestamp
		},
		NewToken: "tok-1",
	}
	s.records.EXPECT().FetchChanges(ctx, "watch-status", "").Return(changes, nil)

	s.statuses.EXPECT().Unsynced(ctx).Return(nil, nil)
	s.syncState.EXPECT().Update(ctx, gomock.Any()).Return(nil).Times(2)

	stats, err := s.service.Sync(ctx)

	s.NoError(err)
	s.Equal(0, stats.Pulled)
}

func (s *StatusSyncTestSuite) TestSync_DeletionTombstones() {
	ctx := context.Background()

	s.expectZone()
	s.syncState.EXPECT().Get(ctx, domain.SyncDomainStatus).Return(s.freshState(), nil)

	changes := &domain.ChangeSet{
		Deleted:  []string{"v1", "v-gone"},
		NewToken: "tok-1",
	}
	s.records.EXPECT().FetchChanges(ctx, "watch-status", "").Return(changes, nil)

	s.statuses.EXPECT().Delete(ctx, "v1").Return(true, nil)
	// Absent locally: not an error, just not counted.
	s.statuses.EXPECT().Delete(ctx, "v-gone").Return(false, nil)

	s.statuses.EXPECT().Unsynced(ctx).Return(nil, nil)
	s.syncState.EXPECT().Update(ctx, gomock.Any()).Return(nil).Times(2)

	stats, err := s.service.Sync(ctx)

	s.NoError(err)
	s.Equal(1, stats.Pulled)
}

func (s *StatusSyncTestSuite) TestSync_ReplaysStoredToken() {
	ctx := context.Background()

	s.expectZone()
	state := s.freshState()
	state.ChangeToken = sql.NullString{String: "tok-prev", Valid: true}
	s.syncState.EXPECT().Get(ctx, domain.SyncDomainStatus).Return(state, nil)

	s.records.EXPECT().FetchChanges(ctx, "watch-status", "tok-prev").
		Return(&domain.ChangeSet{NewToken: "tok-next"}, nil)

	s.statuses.EXPECT().Unsynced(ctx).Return(nil, nil)
	s.syncState.EXPECT().Update(ctx, gomock.Any()).Return(nil).Times(2)

	_, err := s.service.Sync(ctx)
	s.NoError(err)
}

func (s *StatusSyncTestSuite) TestSync_FetchFailureLeavesTokenAndWatermark() {
	ctx := context.Background()

	s.expectZone()
	s.syncState.EXPECT().Get(ctx, domain.SyncDomainStatus).Return(s.freshState(), nil)

	s.records.EXPECT().FetchChanges(ctx, "watch-status", "").
		Return(nil, errors.New("transient network error"))

	stats, err := s.service.Sync(ctx)

	s.Error(err)
	s.Nil(stats)
	s.Contains(err.Error(), "fetch changes")
}

func (s *StatusSyncTestSuite) TestSync_ZoneCreatedWhenMissing() {
	ctx := context.Background()

	s.records.EXPECT().ZoneExists(ctx, "watch-status").Return(false, domain.ErrZoneNotFound)
	s.records.EXPECT().CreateZone(ctx, "watch-status").Return(nil)

	s.syncState.EXPECT().Get(ctx, domain.SyncDomainStatus).Return(s.freshState(), nil)
	s.records.EXPECT().FetchChanges(ctx, "watch-status", "").Return(&domain.ChangeSet{NewToken: "tok-1"}, nil)
	s.statuses.EXPECT().Unsynced(ctx).Return(nil, nil)
	s.syncState.EXPECT().Update(ctx, gomock.Any()).Return(nil).Times(2)

	_, err := s.service.Sync(ctx)
	s.NoError(err)
}

func (s *StatusSyncTestSuite) TestSync_ZoneCreateFailureFatal() {
	ctx := context.Background()

	s.records.EXPECT().ZoneExists(ctx, "watch-status").Return(false, errors.New("server error"))
	s.records.EXPECT().CreateZone(ctx, "watch-status").Return(errors.New("quota exceeded"))

	stats, err := s.service.Sync(ctx)

	s.Error(err)
	s.Nil(stats)
	s.Contains(err.Error(), "create zone")
}

func (s *StatusSyncTestSuite) TestSync_PushPartitionsIntoBatches() {
	ctx := context.Background()

	s.expectZone()
	s.syncState.EXPECT().Get(ctx, domain.SyncDomainStatus).Return(s.freshState(), nil)
	s.records.EXPECT().FetchChanges(ctx, "watch-status", "").Return(&domain.ChangeSet{NewToken: "tok-1"}, nil)

	unsynced := make([]domain.WatchStatus, 900)
	for i := range unsynced {
		unsynced[i] = domain.WatchStatus{
			VideoID:      fmt.Sprintf("v%03d", i),
			State:        domain.WatchStateWatched,
			LastModified: s.now,
		}
	}
	s.statuses.EXPECT().Unsynced(ctx).Return(unsynced, nil)

	var batchSizes []int
	s.records.EXPECT().UpsertBatch(ctx, "watch-status", "user-1", gomock.Any()).DoAndReturn(
		func(_ context.Context, _, _ string, batch []domain.WatchStatus) error {
			batchSizes = append(batchSizes, len(batch))
			return nil
		},
	).Times(3)
	s.statuses.EXPECT().MarkSynced(ctx, gomock.Any()).Return(nil).Times(3)

	s.syncState.EXPECT().Update(ctx, gomock.Any()).Return(nil).Times(2)

	stats, err := s.service.Sync(ctx)

	s.NoError(err)
	s.Equal(900, stats.Pushed)
	s.Equal([]int{400, 400, 100}, batchSizes)
}

func (s *StatusSyncTestSuite) TestSync_BatchFailureLeavesEarlierBatchesSynced() {
	ctx := context.Background()

	s.expectZone()
	s.syncState.EXPECT().Get(ctx, domain.SyncDomainStatus).Return(s.freshState(), nil)
	s.records.EXPECT().FetchChanges(ctx, "watch-status", "").Return(&domain.ChangeSet{NewToken: "tok-1"}, nil)

	unsynced := make([]domain.WatchStatus, 900)
	for i := range unsynced {
		unsynced[i] = domain.WatchStatus{
			VideoID:      fmt.Sprintf("v%03d", i),
			State:        domain.WatchStateWatched,
			LastModified: s.now,
		}
	}
	s.statuses.EXPECT().Unsynced(ctx).Return(unsynced, nil)

	// Batch 1 succeeds, batch 2 is throttled, batch 3 is never attempted.
	calls := 0
	s.records.EXPECT().UpsertBatch(ctx, "watch-status", "user-1", gomock.Any()).DoAndReturn(
		func(_ context.Context, _, _ string, batch []domain.WatchStatus) error {
			calls++
			if calls == 2 {
				return domain.ErrThrottled
			}
			return nil
		},
	).Times(2)

	// Only batch 1 gets marked synced; there is no rollback.
	s.statuses.EXPECT().MarkSynced(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, ids []string) error {
			s.Len(ids, 400)
			return nil
		},
	).Times(1)

	// One state update: the pull-phase token persist. The watermark is
	// never advanced on a failed pass.
	s.syncState.EXPECT().Update(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, state *domain.SyncState) error {
			s.Equal("tok-1", state.ChangeToken.String)
			s.False(state.LastSyncedAt.Valid)
			return nil
		},
	).Times(1)

	stats, err := s.service.Sync(ctx)

	s.Error(err)
	s.Nil(stats)
	s.ErrorIs(err, domain.ErrThrottled)
}

func (s *StatusSyncTestSuite) TestSync_ConcurrentPassesRunExactlyOnce() {
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})

	s.expectZone()
	s.syncState.EXPECT().Get(ctx, domain.SyncDomainStatus).Return(s.freshState(), nil)
	s.records.EXPECT().FetchChanges(ctx, "watch-status", "").DoAndReturn(
		func(context.Context, string, string) (*domain.ChangeSet, error) {
			close(entered)
			<-release
			return &domain.ChangeSet{NewToken: "tok-1"}, nil
		},
	)
	s.statuses.EXPECT().Unsynced(ctx).Return(nil, nil)
	s.syncState.EXPECT().Update(ctx, gomock.Any()).Return(nil).Times(2)

	done := make(chan *domain.StatusSyncStats)
	go func() {
		stats, err := s.service.Sync(ctx)
		s.NoError(err)
		done <- stats
	}()

	<-entered

	// Second invocation while the first is mid-pass: zero-effect result.
	stats, err := s.service.Sync(ctx)
	s.NoError(err)
	s.Equal(0, stats.Pulled)
	s.Equal(0, stats.Pushed)

	close(release)
	first := <-done
	s.NotNil(first)
}

func (s *StatusSyncTestSuite) TestSyncIfNeeded_SkipsWhenUnavailable() {
	ctx := context.Background()

	s.records.EXPECT().Available(ctx).Return(false)

	stats, err := s.service.SyncIfNeeded(ctx)

	s.NoError(err)
	s.Equal(0, stats.Pulled)
	s.Equal(0, stats.Pushed)
}

func (s *StatusSyncTestSuite) TestSyncIfNeeded_SkipsWhenNotDue() {
	ctx := context.Background()

	s.records.EXPECT().Available(ctx).Return(true)
	state := s.freshState()
	state.LastSyncedAt = sql.NullTime{Time: s.now.Add(-1 * time.Minute), Valid: true}
	s.syncState.EXPECT().Get(ctx, domain.SyncDomainStatus).Return(state, nil)

	stats, err := s.service.SyncIfNeeded(ctx)

	s.NoError(err)
	s.Equal(0, stats.Pulled)
}

func TestDecodeWatchStatus(t *testing.T) {
	modified := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("accepts RFC3339 timestamps", func(t *testing.T) {
		rec := domain.RemoteRecord{
			ID: "v1",
			Fields: map[string]any{
				"state":         "watched",
				"position":      42.5,
				"last_modified": modified.Format(time.RFC3339Nano),
			},
		}
		status, err := decodeWatchStatus(rec)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if status.State != domain.WatchStateWatched || status.Position != 42.5 || !status.LastModified.Equal(modified) {
			t.Errorf("unexpected decode result: %+v", status)
		}
	})

	t.Run("rejects unknown state", func(t *testing.T) {
		rec := domain.RemoteRecord{
			ID:     "v1",
			Fields: map[string]any{"state": "binged", "last_modified": modified},
		}
		if _, err := decodeWatchStatus(rec); err == nil {
			t.Error("expected error for unknown state")
		}
	})

	t.Run("rejects missing timestamp", func(t *testing.T) {
		rec := domain.RemoteRecord{
			ID:     "v1",
			Fields: map[string]any{"state": "watched"},
		}
		if _, err := decodeWatchStatus(rec); err == nil {
			t.Error("expected error for missing timestamp")
		}
	})
}
