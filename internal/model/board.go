package model

import "time"

// Board groups tasks of one organization into status columns.
type Board struct {
	ID             string `gorm:"primaryKey;size:36"`
	OrganizationID string `gorm:"index;size:36"`
	Name           string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	StatusOptions  []StatusOption `gorm:"foreignKey:BoardID"`
}

// StatusOption is one column of a board. The lowest position is the default
// status for new tasks.
type StatusOption struct {
	ID        string `gorm:"primaryKey;size:36"`
	BoardID   string `gorm:"index;size:36"`
	Name      string
	Position  int
	CreatedAt time.Time
}
