package models

import "time"

// Image is the metadata of a stored file. Path is the object key inside the
// blob storage backend, URL the public address of the bytes. UserID is the
// uploader and is nil for rows written before uploads were attributed.
type Image struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    *uint     `gorm:"index" json:"-"`
	Filename  string    `gorm:"size:255;not null" json:"filename"`
	Path      string    `gorm:"size:512;not null" json:"path"`
	URL       string    `gorm:"size:1024;not null" json:"url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
