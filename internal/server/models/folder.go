package models

import "time"

// Folder groups a user's flows. ParentID is empty for top-level folders.
type Folder struct {
	ID        string
	Name      string
	UserID    string
	ParentID  string
	CreatedAt time.Time
	UpdatedAt time.Time
}
