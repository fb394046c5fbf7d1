package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/engarde/templatesync/internal/common"
	"github.com/engarde/templatesync/internal/server/models"
	"github.com/engarde/templatesync/internal/server/repositories/flows"
	"github.com/google/uuid"
)

// TemplateCopier materializes user copies of admin templates. It does not
// check for existing copies; callers decide when a copy is needed.
type TemplateCopier struct {
	newID func() string
	now   func() time.Time
}

func NewTemplateCopier() *TemplateCopier {
	return &TemplateCopier{
		newID: func() string { return uuid.NewString() },
		now:   time.Now,
	}
}

// Copy inserts a copy of template owned by userID into folderID and returns it.
func (c *TemplateCopier) Copy(ctx context.Context, repo flows.Repository, userID, folderID string, template *models.Flow) (*models.Flow, error) {
	now := c.now()
	flow := &models.Flow{
		ID:               c.newID(),
		UserID:           userID,
		FolderID:         folderID,
		Name:             template.Name,
		Description:      template.Description,
		Data:             cloneRaw(template.Data),
		IsAdminTemplate:  false,
		TemplateSourceID: template.ID,
		TemplateVersion:  common.VersionOrDefault(template.TemplateVersion),
		LastSyncedAt:     &now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := repo.Create(ctx, flow); err != nil {
		return nil, err
	}
	return flow, nil
}

func cloneRaw(b json.RawMessage) json.RawMessage {
	if b == nil {
		return nil
	}
	return append(json.RawMessage(nil), b...)
}
