// Package folders stores the per-user folder tree that holds synced flows.
package folders

import (
	"context"

	"github.com/engarde/templatesync/internal/server/models"
)

type Repository interface {
	// Find returns the user's folder called name under parentID ("" for
	// top-level), or common.ErrorNotFound.
	Find(ctx context.Context, userID, name, parentID string) (*models.Folder, error)
	// Create inserts a folder. A concurrent insert of the same (user, parent,
	// name) yields common.ErrAlreadyExists.
	Create(ctx context.Context, folder *models.Folder) error
	// ListByUser returns every folder of the user ordered by name.
	ListByUser(ctx context.Context, userID string) ([]*models.Folder, error)
}
