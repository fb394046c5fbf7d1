// Package archive stores snapshots of user flows before a template
// migration overwrites their content.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Snapshot is the pre-migration state of a user copy.
type Snapshot struct {
	UserID          string          `json:"user_id"`
	FlowID          string          `json:"flow_id"`
	FlowName        string          `json:"flow_name"`
	TemplateID      string          `json:"template_id"`
	PreviousVersion string          `json:"previous_version"`
	Data            json.RawMessage `json:"data"`
	CustomSettings  json.RawMessage `json:"custom_settings,omitempty"`
	TakenAt         time.Time       `json:"taken_at"`
}

// Key returns the object key the snapshot is stored under.
func (s *Snapshot) Key() string {
	return fmt.Sprintf("flows/%s/%s/%s-%d.json", s.UserID, s.FlowID, s.PreviousVersion, s.TakenAt.Unix())
}

// Archiver persists snapshots and returns the key they were stored under.
// An empty key with a nil error means nothing was stored.
type Archiver interface {
	Archive(ctx context.Context, snapshot *Snapshot) (string, error)
}

// Noop discards snapshots.
type Noop struct{}

func (Noop) Archive(context.Context, *Snapshot) (string, error) {
	return "", nil
}
