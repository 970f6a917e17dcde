package models

import (
	"time"
)

// User is the identity principal. Password holds a bcrypt hash and is never serialized.
type User struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Name            string     `gorm:"size:255;not null" json:"name"`
	Email           string     `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Password        string     `gorm:"not null" json:"-"`
	EmailVerifiedAt *time.Time `json:"email_verified_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
