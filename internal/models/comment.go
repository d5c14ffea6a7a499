package models

import "time"

// Comment represents a comment on a post (PostgreSQL). Owned by the social
// backend; observed here through its change-feed to notify the post author.
type Comment struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	PostID    string    `json:"post_id" gorm:"index"` // ID of the commented post (MongoDB ObjectID as string)
	UserID    uint      `json:"user_id" gorm:"index"` // ID of the user who made the comment
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
