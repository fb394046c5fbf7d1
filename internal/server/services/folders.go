// Package services holds the template sync business logic: folder
// resolution, reconciliation of the template catalog against a user's
// copies, explicit migrations and the SSO login flow that triggers sync.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/engarde/templatesync/internal/common"
	"github.com/engarde/templatesync/internal/dbx"
	"github.com/engarde/templatesync/internal/logging"
	"github.com/engarde/templatesync/internal/server/models"
	"github.com/engarde/templatesync/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// Folder names of the synced template tree.
const (
	RootFolderName         = "En Garde"
	WalkerAgentsFolderName = "Walker Agents"
	FlowsFolderName        = "En Garde Flows"
)

// SyncFolders are the ids of a user's synced template tree.
type SyncFolders struct {
	RootID         string
	WalkerAgentsID string
	FlowsID        string
}

// FolderFor returns the folder id copies of the given category land in.
func (f *SyncFolders) FolderFor(c Category) string {
	switch c {
	case CategoryWalkerAgents:
		return f.WalkerAgentsID
	case CategoryFlows:
		return f.FlowsID
	default:
		return f.FlowsID
	}
}

// FolderResolver get-or-creates per-user folders.
type FolderResolver struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
	newID       func() string
	now         func() time.Time
}

func NewFolderResolver(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *FolderResolver {
	return &FolderResolver{
		db:          db,
		repomanager: m,
		logger:      logger.With("module", "folders"),
		newID:       func() string { return uuid.NewString() },
		now:         time.Now,
	}
}

// Resolve returns the id of the user's folder called name, creating it when
// absent. With a non-empty parentName the folder is nested under that
// top-level folder, which is created too if needed.
func (r *FolderResolver) Resolve(ctx context.Context, userID, name, parentName string) (string, error) {
	parentID := ""
	if parentName != "" {
		id, err := r.ensure(ctx, r.db, userID, parentName, "")
		if err != nil {
			return "", err
		}
		parentID = id
	}
	return r.ensure(ctx, r.db, userID, name, parentID)
}

// ResolveSyncFolders makes sure the synced template tree exists.
func (r *FolderResolver) ResolveSyncFolders(ctx context.Context, userID string) (*SyncFolders, error) {
	rootID, err := r.ensure(ctx, r.db, userID, RootFolderName, "")
	if err != nil {
		return nil, err
	}
	walkerID, err := r.ensure(ctx, r.db, userID, WalkerAgentsFolderName, rootID)
	if err != nil {
		return nil, err
	}
	flowsID, err := r.ensure(ctx, r.db, userID, FlowsFolderName, rootID)
	if err != nil {
		return nil, err
	}
	return &SyncFolders{RootID: rootID, WalkerAgentsID: walkerID, FlowsID: flowsID}, nil
}

func (r *FolderResolver) ensure(ctx context.Context, db dbx.DBTX, userID, name, parentID string) (string, error) {
	repo := r.repomanager.Folders(db)

	folder, err := repo.Find(ctx, userID, name, parentID)
	if err == nil {
		return folder.ID, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return "", fmt.Errorf("find folder %q: %w", name, err)
	}

	now := r.now()
	folder = &models.Folder{
		ID:        r.newID(),
		Name:      name,
		UserID:    userID,
		ParentID:  parentID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = repo.Create(ctx, folder)
	switch {
	case err == nil:
		r.logger.Info(ctx, "folder created", "user_id", userID, "folder_id", folder.ID, "name", name)
		return folder.ID, nil
	case errors.Is(err, common.ErrAlreadyExists):
		// lost a race with a concurrent resolve; the winner's row is authoritative
		existing, err := repo.Find(ctx, userID, name, parentID)
		if err != nil {
			return "", fmt.Errorf("find folder %q after conflict: %w", name, err)
		}
		return existing.ID, nil
	default:
		return "", fmt.Errorf("create folder %q: %w", name, err)
	}
}
