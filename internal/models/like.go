package models

import "time"

// Like represents a like on a post (PostgreSQL). Owned by the social backend;
// observed here through its change-feed to notify the post author.
type Like struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	PostID    string    `json:"post_id" gorm:"index"` // ID of the liked post (MongoDB ObjectID as string)
	UserID    uint      `json:"user_id" gorm:"index"` // ID of the user who liked the post
	CreatedAt time.Time `json:"created_at"`
}
