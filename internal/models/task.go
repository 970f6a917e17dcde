package models

import "time"

// Task is a user-owned to-do item. UserID and UserIP are fixed at creation.
type Task struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"not null;index;uniqueIndex:idx_tasks_user_name,priority:1" json:"user_id"`
	Name           string    `gorm:"size:255;not null;uniqueIndex:idx_tasks_user_name,priority:2" json:"name"`
	Description    *string   `gorm:"type:text" json:"description"`
	ImageID        *uint     `gorm:"index" json:"image_id"`
	Completed      bool      `gorm:"not null;default:false" json:"completed"`
	GPSCoordinates *string   `gorm:"column:gps_coordinates;size:255" json:"gps_coordinates"`
	UserIP         string    `gorm:"column:user_ip;size:45" json:"user_ip"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	User  *User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user"`
	Image *Image `gorm:"foreignKey:ImageID;constraint:OnDelete:SET NULL" json:"image"`
}
