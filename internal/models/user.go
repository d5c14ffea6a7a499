package models

import (
	"github.com/golang-jwt/jwt/v4"
)

// User holds the profile fields this core reads. The table is owned by the
// social backend; here it is only used to resolve actor display names when
// rendering notification content.
type User struct {
	ID    uint   `json:"id" gorm:"primaryKey"`
	Name  string `json:"name"`
	Email string `json:"email" gorm:"uniqueIndex"`
}

func (User) TableName() string { return "users" }

// JwtCustomClaims are custom claims extending standard jwt.RegisteredClaims
type JwtCustomClaims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}
