// Package flows provides persistence for the flow table, which holds both
// admin templates and the user copies derived from them.
package flows

import (
	"context"
	"encoding/json"
	"time"

	"github.com/engarde/templatesync/internal/server/models"
)

// Repository is the storage contract used by the sync and migration services.
type Repository interface {
	// ListAdminTemplates returns the whole catalog ordered by name, then id.
	ListAdminTemplates(ctx context.Context) ([]*models.Flow, error)
	// ListUserCopies returns the user's template-derived flows.
	ListUserCopies(ctx context.Context, userID string) ([]*models.TemplateCopy, error)
	// Create inserts a flow. A second copy of the same template for the same
	// user yields common.ErrAlreadyExists.
	Create(ctx context.Context, flow *models.Flow) error
	// GetForUpdate loads a flow and locks its row until the transaction ends.
	GetForUpdate(ctx context.Context, id string) (*models.Flow, error)
	// GetAdminTemplate loads a catalog entry by id.
	GetAdminTemplate(ctx context.Context, id string) (*models.Flow, error)
	// ApplyTemplate overwrites a copy's content and version. custom_settings is
	// kept when preserveSettings is set and cleared otherwise.
	ApplyTemplate(ctx context.Context, id string, data json.RawMessage, version string, syncedAt time.Time, preserveSettings bool) error
	// ListUpdates returns the user's copies whose version differs from their template's.
	ListUpdates(ctx context.Context, userID string) ([]*models.TemplateUpdate, error)
	// ListAdoption returns the catalog with per-template copy counts.
	ListAdoption(ctx context.Context) ([]*models.TemplateAdoption, error)
}
