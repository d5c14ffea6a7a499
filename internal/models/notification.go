package models

import "time"

// NotificationType tags a notification with the domain event that caused it.
type NotificationType string

const (
	NotificationMessage        NotificationType = "message"
	NotificationFriendRequest  NotificationType = "friend_request"
	NotificationFriendAccepted NotificationType = "friend_accepted"
	NotificationFriendRejected NotificationType = "friend_rejected"
	NotificationLike           NotificationType = "like"
	NotificationComment        NotificationType = "comment"
	NotificationAdminBroadcast NotificationType = "admin_broadcast"
	NotificationOther          NotificationType = "other"
)

// NotificationRecord represents a persisted user notification (PostgreSQL).
// Content is rendered at creation time (actor name already interpolated) and
// immutable afterwards. DeletedAt marks a soft delete: hidden from every read
// path but retained in the table.
type NotificationRecord struct {
	ID          uint             `json:"id" gorm:"primaryKey"`
	UserID      uint             `json:"user_id" gorm:"index:idx_notifications_user"`
	Type        NotificationType `json:"type" gorm:"size:30;index"`
	Content     string           `json:"content"`
	ReferenceID string           `json:"reference_id,omitempty"` // message ID, friendship ID, post ID, etc.
	Read        bool             `json:"read" gorm:"default:false;index:idx_notifications_user"`
	CreatedAt   time.Time        `json:"created_at" gorm:"index"`
	DeletedAt   *time.Time       `json:"deleted_at,omitempty" gorm:"index:idx_notifications_user"`
}

func (NotificationRecord) TableName() string { return "notifications" }

// Deleted reports whether the record has been soft-deleted.
func (n *NotificationRecord) Deleted() bool { return n.DeletedAt != nil }

// Bulk markers carried on notifications-table change events for operations
// that touch every record of a user at once.
const (
	BulkReadAll  = "read_all"
	BulkClearAll = "clear_all"
)

// NotificationChange is the row payload published on the notifications table
// change-feed. Record is set for single-row mutations; Bulk marks the
// mark-all-read / clear-all operations instead. UserID is always set so
// per-user feed filters apply.
type NotificationChange struct {
	UserID uint                `json:"user_id"`
	Record *NotificationRecord `json:"record,omitempty"`
	Bulk   string              `json:"bulk,omitempty"`
}

// CreateBroadcastRequest defines the request body for an administrative
// broadcast notification.
type CreateBroadcastRequest struct {
	UserIDs []uint `json:"user_ids" validate:"required,min=1,dive,required"`
	Content string `json:"content" validate:"required,min=1,max=500"`
}
