package models

import "time"

// Friend request statuses as written by the social backend.
const (
	FriendStatusPending  = "pending"
	FriendStatusAccepted = "accepted"
	FriendStatusRejected = "rejected"
)

// FriendRequest represents a friend link between two users (PostgreSQL).
// Owned by the social backend; observed here through its change-feed. An
// insert with status pending notifies the receiver, a transition to accepted
// or rejected notifies the original sender.
type FriendRequest struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	SenderID   uint      `json:"sender_id" gorm:"index"`
	ReceiverID uint      `json:"receiver_id" gorm:"index"`
	Status     string    `json:"status" gorm:"type:varchar(20);default:'pending'"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
