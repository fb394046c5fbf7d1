// Package models defines server-side data models persisted in the database.
package models

import (
	"encoding/json"
	"time"
)

// Flow is a row of the flow table. The same table holds admin templates
// (IsAdminTemplate, no TemplateSourceID) and user copies derived from them
// (TemplateSourceID set). Empty strings stand for NULL columns.
type Flow struct {
	ID          string
	UserID      string
	FolderID    string
	Name        string
	Description string
	// Data is the workflow graph, stored verbatim.
	Data json.RawMessage

	IsAdminTemplate  bool
	TemplateSourceID string
	TemplateVersion  string

	// CustomSettings is user-layered configuration kept apart from Data.
	CustomSettings json.RawMessage
	LastSyncedAt   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsCopy reports whether the flow was derived from an admin template.
func (f *Flow) IsCopy() bool {
	return f.TemplateSourceID != ""
}

// TemplateCopy is the inventory view of a user copy, keyed by its source template.
type TemplateCopy struct {
	FlowID           string
	Name             string
	TemplateSourceID string
	TemplateVersion  string
	LastSyncedAt     *time.Time
}

// TemplateUpdate describes a user copy whose version differs from its template.
type TemplateUpdate struct {
	UserFlowID        string
	FlowName          string
	CurrentVersion    string
	TemplateID        string
	LatestVersion     string
	TemplateUpdatedAt *time.Time
}

// TemplateAdoption is a catalog entry with the number of user copies referencing it.
type TemplateAdoption struct {
	ID            string
	Name          string
	Description   string
	Version       string
	FolderID      string
	UpdatedAt     time.Time
	AdoptionCount int64
}
