package models

import "time"

// Message represents a direct chat message between two users (PostgreSQL).
// The chat service owns this table; the notification core only observes its
// change-feed events.
type Message struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	SenderID   uint      `json:"sender_id" gorm:"index"`
	ReceiverID uint      `json:"receiver_id" gorm:"index"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}
