package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/waveline-app/notify-core/internal/feed"
	"github.com/waveline-app/notify-core/internal/models"
	"github.com/waveline-app/notify-core/internal/notify"
	"github.com/waveline-app/notify-core/pkg/logger"
)

const DefaultListLimit = 50

// NotificationRepository defines the interface for notification record
// operations. Soft-deleted records are invisible to every read; there is no
// hard delete. Mutations are idempotent: marking an already-read record read
// or re-deleting a deleted record is a no-op.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.NotificationRecord) error
	ListByUser(ctx context.Context, userID uint, limit int) ([]models.NotificationRecord, error)
	UnreadCount(ctx context.Context, userID uint) (int64, error)
	// MarkRead and SoftDelete scope the mutation to the owning user: a
	// record belonging to someone else is untouched, same as an unknown id.
	MarkRead(ctx context.Context, userID, id uint) error
	MarkAllRead(ctx context.Context, userID uint) error
	SoftDelete(ctx context.Context, userID, id uint) error
	SoftDeleteAll(ctx context.Context, userID uint) error
}

// postgresNotificationRepository implements NotificationRepository over GORM.
// After every successful write it publishes the matching event on the
// notifications table change-feed, so the dispatcher and facade sessions only
// ever observe store-originated changes.
type postgresNotificationRepository struct {
	db  *gorm.DB
	pub feed.Feed
}

func NewPostgresNotificationRepository(db *gorm.DB, pub feed.Feed) NotificationRepository {
	return &postgresNotificationRepository{db: db, pub: pub}
}

func (r *postgresNotificationRepository) Create(ctx context.Context, n *models.NotificationRecord) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
		return notify.NewStoreError("create", err)
	}
	r.publish(ctx, feed.ActionInsert, models.NotificationChange{UserID: n.UserID, Record: n})
	return nil
}

func (r *postgresNotificationRepository) ListByUser(ctx context.Context, userID uint, limit int) ([]models.NotificationRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var records []models.NotificationRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND deleted_at IS NULL", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, notify.NewStoreError("list", err)
	}
	return records, nil
}

func (r *postgresNotificationRepository) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.NotificationRecord{}).
		Where("user_id = ? AND deleted_at IS NULL AND read = false", userID).
		Count(&count).Error
	if err != nil {
		return 0, notify.NewStoreError("unread_count", err)
	}
	return count, nil
}

func (r *postgresNotificationRepository) MarkRead(ctx context.Context, userID, id uint) error {
	res := r.db.WithContext(ctx).Model(&models.NotificationRecord{}).
		Where("id = ? AND user_id = ? AND deleted_at IS NULL AND read = false", id, userID).
		Update("read", true)
	if res.Error != nil {
		return notify.NewStoreError("mark_read", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil // already read, deleted, or unknown: idempotent no-op
	}

	var rec models.NotificationRecord
	if err := r.db.WithContext(ctx).First(&rec, id).Error; err == nil {
		r.publish(ctx, feed.ActionUpdate, models.NotificationChange{UserID: rec.UserID, Record: &rec})
	}
	return nil
}

func (r *postgresNotificationRepository) MarkAllRead(ctx context.Context, userID uint) error {
	res := r.db.WithContext(ctx).Model(&models.NotificationRecord{}).
		Where("user_id = ? AND deleted_at IS NULL AND read = false", userID).
		Update("read", true)
	if res.Error != nil {
		return notify.NewStoreError("mark_all_read", res.Error)
	}
	if res.RowsAffected > 0 {
		r.publish(ctx, feed.ActionUpdate, models.NotificationChange{UserID: userID, Bulk: models.BulkReadAll})
	}
	return nil
}

func (r *postgresNotificationRepository) SoftDelete(ctx context.Context, userID, id uint) error {
	var rec models.NotificationRecord
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&rec).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return notify.NewStoreError("soft_delete", err)
	}
	if rec.Deleted() {
		return nil
	}

	now := time.Now()
	res := r.db.WithContext(ctx).Model(&models.NotificationRecord{}).
		Where("id = ? AND user_id = ? AND deleted_at IS NULL", id, userID).
		Update("deleted_at", now)
	if res.Error != nil {
		return notify.NewStoreError("soft_delete", res.Error)
	}
	if res.RowsAffected > 0 {
		rec.DeletedAt = &now
		r.publish(ctx, feed.ActionUpdate, models.NotificationChange{UserID: rec.UserID, Record: &rec})
	}
	return nil
}

func (r *postgresNotificationRepository) SoftDeleteAll(ctx context.Context, userID uint) error {
	res := r.db.WithContext(ctx).Model(&models.NotificationRecord{}).
		Where("user_id = ? AND deleted_at IS NULL", userID).
		Update("deleted_at", time.Now())
	if res.Error != nil {
		return notify.NewStoreError("soft_delete_all", res.Error)
	}
	if res.RowsAffected > 0 {
		r.publish(ctx, feed.ActionUpdate, models.NotificationChange{UserID: userID, Bulk: models.BulkClearAll})
	}
	return nil
}

// publish emits the store-originated change event. A failed publish is logged
// and absorbed: the write already committed and the polling backstop will
// reconcile subscribers.
func (r *postgresNotificationRepository) publish(ctx context.Context, action feed.Action, change models.NotificationChange) {
	row, err := json.Marshal(change)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to encode notification change event")
		return
	}
	ev := feed.Event{
		ID:     uuid.NewString(),
		Table:  models.NotificationRecord{}.TableName(),
		Action: action,
		Row:    row,
		At:     time.Now(),
	}
	if err := r.pub.Publish(ctx, ev); err != nil {
		logger.Log.WithError(err).Warn("Failed to publish notification change event")
	}
}
