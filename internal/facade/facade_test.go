package facade

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waveline-app/notify-core/internal/channels"
	"github.com/waveline-app/notify-core/internal/feed"
	"github.com/waveline-app/notify-core/internal/models"
	"github.com/waveline-app/notify-core/internal/notify"
	"github.com/waveline-app/notify-core/internal/repositories"
)

// testRig wires a manager over the in-memory store and feed, with the feed
// loop running the way router wiring does it: store writes publish events,
// the manager observes them.
type testRig struct {
	store   *repositories.MemoryNotificationRepository
	feed    *feed.MemoryFeed
	lv      *feed.Liveness
	manager *Manager
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	mf := feed.NewMemoryFeed()
	store := repositories.NewMemoryNotificationRepository(mf)
	manager := NewManager(store, channels.NewRegistry(), func() bool { return true })

	lv := feed.NewLiveness(mf, mf, nil, time.Hour, time.Hour)
	ctx := context.Background()
	require.NoError(t, manager.Register(ctx, lv))
	require.NoError(t, lv.Start(ctx))
	t.Cleanup(lv.Stop)

	return &testRig{store: store, feed: mf, lv: lv, manager: manager}
}

func (r *testRig) seed(t *testing.T, userID uint, createdAt time.Time, content string) *models.NotificationRecord {
	t.Helper()
	rec := &models.NotificationRecord{
		UserID:    userID,
		Type:      models.NotificationMessage,
		Content:   content,
		CreatedAt: createdAt,
	}
	require.NoError(t, r.store.Create(context.Background(), rec))
	return rec
}

func TestSessionInitialLoad(t *testing.T) {
	r := newTestRig(t)
	now := time.Now()
	r.seed(t, 1, now.Add(-time.Minute), "older")
	r.seed(t, 1, now, "newer")
	r.seed(t, 2, now, "someone else")

	s := r.manager.Session(context.Background(), 1)
	recs := s.Notifications()
	require.Len(t, recs, 2)
	assert.Equal(t, "newer", recs[0].Content)
	assert.Equal(t, "older", recs[1].Content)
	assert.Equal(t, int64(2), s.UnreadCount())
}

func TestFeedInsertUpdatesSnapshot(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()
	s := r.manager.Session(ctx, 1)
	require.Empty(t, s.Notifications())

	r.seed(t, 1, time.Now(), "fresh")

	recs := s.Notifications()
	require.Len(t, recs, 1)
	assert.Equal(t, "fresh", recs[0].Content)
	assert.Equal(t, int64(1), s.UnreadCount())
}

func TestOrderingTieBrokenByID(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()
	at := time.Now().Truncate(time.Millisecond)
	first := r.seed(t, 1, at, "first insert")
	second := r.seed(t, 1, at, "second insert")

	s := r.manager.Session(ctx, 1)
	recs := s.Notifications()
	require.Len(t, recs, 2)
	assert.Equal(t, second.ID, recs[0].ID, "same timestamp orders by id descending")
	assert.Equal(t, first.ID, recs[1].ID)
}

func TestMarkAsReadKeepsCountConsistent(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()
	rec := r.seed(t, 1, time.Now(), "n1")
	r.seed(t, 1, time.Now(), "n2")

	s := r.manager.Session(ctx, 1)
	require.Equal(t, int64(2), s.UnreadCount())

	require.NoError(t, s.MarkAsRead(ctx, rec.ID))
	assert.Equal(t, int64(1), s.UnreadCount())

	// Second read of the same record is a no-op, not a double decrement.
	require.NoError(t, s.MarkAsRead(ctx, rec.ID))
	assert.Equal(t, int64(1), s.UnreadCount())

	count, err := r.store.UnreadCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, s.UnreadCount(), count, "snapshot count matches store")
}

func TestMarkAllAsRead(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()
	r.seed(t, 1, time.Now(), "n1")
	r.seed(t, 1, time.Now(), "n2")

	s := r.manager.Session(ctx, 1)
	require.NoError(t, s.MarkAllAsRead(ctx))
	assert.Equal(t, int64(0), s.UnreadCount())
	for _, rec := range s.Notifications() {
		assert.True(t, rec.Read)
	}
}

func TestDeleteRemovesFromSnapshotOnly(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()
	rec := r.seed(t, 1, time.Now(), "gone soon")

	s := r.manager.Session(ctx, 1)
	require.NoError(t, s.Delete(ctx, rec.ID))
	assert.Empty(t, s.Notifications())
	assert.Equal(t, int64(0), s.UnreadCount())

	// Deleted means hidden, and a refresh never resurrects it.
	require.NoError(t, s.Refresh(ctx))
	assert.Empty(t, s.Notifications())
}

func TestClearAll(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()
	r.seed(t, 1, time.Now(), "n1")
	r.seed(t, 1, time.Now(), "n2")

	s := r.manager.Session(ctx, 1)
	require.NoError(t, s.ClearAll(ctx))
	assert.Empty(t, s.Notifications())
	assert.Equal(t, int64(0), s.UnreadCount())

	require.NoError(t, s.Refresh(ctx))
	assert.Empty(t, s.Notifications())
}

func TestOptimisticRollbackOnStoreFailure(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()
	rec := r.seed(t, 1, time.Now(), "survives")

	s := r.manager.Session(ctx, 1)
	r.store.FailOps = true

	err := s.MarkAsRead(ctx, rec.ID)
	require.Error(t, err)
	assert.Equal(t, int64(1), s.UnreadCount(), "failed mutation rolls the counter back")
	assert.False(t, s.Notifications()[0].Read)

	err = s.ClearAll(ctx)
	require.Error(t, err)
	assert.Len(t, s.Notifications(), 1, "failed clear keeps the snapshot")
}

func TestOwnMutationEventIsIdempotent(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()
	rec := r.seed(t, 1, time.Now(), "n1")

	s := r.manager.Session(ctx, 1)
	// MarkAsRead applies optimistically and then receives its own feed echo.
	require.NoError(t, s.MarkAsRead(ctx, rec.ID))
	assert.Equal(t, int64(0), s.UnreadCount())
	require.Len(t, s.Notifications(), 1)
	assert.True(t, s.Notifications()[0].Read)
}

func TestMutationsRejectForeignRecords(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()
	victim := r.seed(t, 2, time.Now(), "belongs to user 2")

	attacker := r.manager.Session(ctx, 1)
	assert.ErrorIs(t, attacker.Delete(ctx, victim.ID), notify.ErrRecordNotFound)
	assert.ErrorIs(t, attacker.MarkAsRead(ctx, victim.ID), notify.ErrRecordNotFound)

	owner := r.manager.Session(ctx, 2)
	recs := owner.Notifications()
	require.Len(t, recs, 1, "the other user's record survives")
	assert.False(t, recs[0].Read)
	assert.Equal(t, int64(1), owner.UnreadCount())
}

func TestMutationsRejectUnknownIDs(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()
	r.seed(t, 1, time.Now(), "n1")

	s := r.manager.Session(ctx, 1)
	assert.ErrorIs(t, s.MarkAsRead(ctx, 999), notify.ErrRecordNotFound)
	assert.ErrorIs(t, s.Delete(ctx, 999), notify.ErrRecordNotFound)

	// Neither the snapshot nor the store moved.
	assert.Equal(t, int64(1), s.UnreadCount())
	count, err := r.store.UnreadCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestDropStopsRouting(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()
	s := r.manager.Session(ctx, 1)
	r.manager.Drop(1)

	r.seed(t, 1, time.Now(), "after logout")
	assert.Empty(t, s.Notifications(), "dropped sessions receive no further events")

	// A new session reloads from the store.
	s2 := r.manager.Session(ctx, 1)
	assert.Len(t, s2.Notifications(), 1)
}

func TestRefreshAllBackstop(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()
	s := r.manager.Session(ctx, 1)

	// A write whose feed event is lost, as during an outage.
	r.feed.SetDown(true)
	r.seed(t, 1, time.Now(), "missed event")
	assert.Empty(t, s.Notifications())

	r.feed.SetDown(false)
	r.manager.RefreshAll(ctx)
	assert.Len(t, s.Notifications(), 1)
}
