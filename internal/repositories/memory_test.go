package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waveline-app/notify-core/internal/models"
)

func seedRecord(t *testing.T, store *MemoryNotificationRepository, userID uint) *models.NotificationRecord {
	t.Helper()
	rec := &models.NotificationRecord{
		UserID:    userID,
		Type:      models.NotificationMessage,
		Content:   "hello",
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.Create(context.Background(), rec))
	return rec
}

func TestMarkReadScopedToOwner(t *testing.T) {
	store := NewMemoryNotificationRepository(nil)
	ctx := context.Background()
	rec := seedRecord(t, store, 2)

	// A different user's id+record pair is a no-op, same as an unknown id.
	require.NoError(t, store.MarkRead(ctx, 1, rec.ID))
	count, err := store.UnreadCount(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, store.MarkRead(ctx, 2, rec.ID))
	count, err = store.UnreadCount(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestSoftDeleteScopedToOwner(t *testing.T) {
	store := NewMemoryNotificationRepository(nil)
	ctx := context.Background()
	rec := seedRecord(t, store, 2)

	require.NoError(t, store.SoftDelete(ctx, 1, rec.ID))
	recs, err := store.ListByUser(ctx, 2, 0)
	require.NoError(t, err)
	assert.Len(t, recs, 1, "another user's delete must not touch the record")

	require.NoError(t, store.SoftDelete(ctx, 2, rec.ID))
	recs, err = store.ListByUser(ctx, 2, 0)
	require.NoError(t, err)
	assert.Empty(t, recs)

	// Re-deleting stays a no-op.
	require.NoError(t, store.SoftDelete(ctx, 2, rec.ID))
}
