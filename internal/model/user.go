package model

import "time"

// User is a member of an organization. TelegramID links the chat adapter.
type User struct {
	ID         string `gorm:"primaryKey;size:36"`
	TelegramID *int64 `gorm:"uniqueIndex"`
	Name       string
	Username   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
