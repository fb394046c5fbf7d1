package services

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/engarde/templatesync/internal/common"
	"github.com/engarde/templatesync/internal/logging"
	"github.com/engarde/templatesync/internal/server/auth"
	"github.com/engarde/templatesync/internal/server/models"
	"github.com/engarde/templatesync/internal/server/repositories/repomanager"
)

// Result statuses shared by sync, migration and listing results.
const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusSkipped  = "skipped"
	StatusUpToDate = "up_to_date"
)

// NewFlow is a copy created during reconciliation.
type NewFlow struct {
	FlowID          string `json:"flow_id"`
	Name            string `json:"name"`
	TemplateID      string `json:"template_id"`
	TemplateVersion string `json:"template_version"`
	Folder          string `json:"folder"`
}

// AvailableUpdate is a copy whose template moved on (or a forced resync).
type AvailableUpdate struct {
	UserFlowID     string `json:"user_flow_id"`
	TemplateID     string `json:"template_id"`
	FlowName       string `json:"flow_name"`
	CurrentVersion string `json:"current_version"`
	LatestVersion  string `json:"latest_version"`
}

// FailedCopy is a template whose copy could not be created.
type FailedCopy struct {
	TemplateID string `json:"template_id"`
	Name       string `json:"name"`
	Error      string `json:"error"`
}

// SyncResult is the reconciliation summary. Status is always set; on
// StatusError only Message is meaningful.
type SyncResult struct {
	Status           string            `json:"status"`
	Message          string            `json:"message,omitempty"`
	NewFlowsAdded    []NewFlow         `json:"new_flows_added"`
	UpdatesAvailable []AvailableUpdate `json:"updates_available"`
	UpToDateCount    int               `json:"up_to_date_count"`
	TotalTemplates   int               `json:"total_templates"`
	Failed           []FailedCopy      `json:"failed"`
}

// UpdateItem is one entry of the update listing.
type UpdateItem struct {
	UserFlowID        string     `json:"user_flow_id"`
	FlowName          string     `json:"flow_name"`
	CurrentVersion    string     `json:"current_version"`
	TemplateID        string     `json:"template_id"`
	LatestVersion     string     `json:"latest_version"`
	TemplateUpdatedAt *time.Time `json:"template_updated_at"`
}

type UpdatesResult struct {
	Status           string       `json:"status"`
	UpdatesAvailable []UpdateItem `json:"updates_available"`
	Count            int          `json:"count"`
}

// CatalogItem is a template with the number of user copies derived from it.
type CatalogItem struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Version       string    `json:"template_version"`
	FolderID      string    `json:"folder_id,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
	AdoptionCount int64     `json:"user_adoption_count"`
}

type CatalogResult struct {
	Status    string        `json:"status"`
	Templates []CatalogItem `json:"templates"`
	Count     int           `json:"count"`
}

// SyncService reconciles the admin template catalog against user copies.
type SyncService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	folders     *FolderResolver
	copier      *TemplateCopier
	logger      logging.Logger
}

func NewSyncService(db *sql.DB, m repomanager.RepositoryManager, folders *FolderResolver, copier *TemplateCopier, logger logging.Logger) *SyncService {
	return &SyncService{
		db:          db,
		repomanager: m,
		folders:     folders,
		copier:      copier,
		logger:      logger.With("module", "sync"),
	}
}

func errorResult(msg string) *SyncResult {
	return &SyncResult{Status: StatusError, Message: msg}
}

// SyncUserTemplates creates missing copies for userID and reports which
// existing copies have updates. Administrators are skipped without any
// reads or writes. Failures are reported through the result status, so the
// returned value is never nil.
func (s *SyncService) SyncUserTemplates(ctx context.Context, userID string, isAdmin bool, force bool) *SyncResult {
	if isAdmin {
		return &SyncResult{
			Status:           StatusSkipped,
			Message:          "administrators edit templates directly and do not receive copies",
			NewFlowsAdded:    []NewFlow{},
			UpdatesAvailable: []AvailableUpdate{},
			Failed:           []FailedCopy{},
		}
	}

	log := s.logger.With("user_id", userID)

	folders, err := s.folders.ResolveSyncFolders(ctx, userID)
	if err != nil {
		log.Error(ctx, "resolve sync folders failed", "error", err)
		return errorResult(fmt.Sprintf("resolve folders: %v", err))
	}

	repo := s.repomanager.Flows(s.db)

	catalog, err := repo.ListAdminTemplates(ctx)
	if err != nil {
		log.Error(ctx, "load template catalog failed", "error", err)
		return errorResult(fmt.Sprintf("load template catalog: %v", err))
	}
	slices.SortStableFunc(catalog, func(a, b *models.Flow) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})

	copies, err := repo.ListUserCopies(ctx, userID)
	if err != nil {
		log.Error(ctx, "load user copies failed", "error", err)
		return errorResult(fmt.Sprintf("load user copies: %v", err))
	}
	inventory := make(map[string]*models.TemplateCopy, len(copies))
	for _, c := range copies {
		inventory[c.TemplateSourceID] = c
	}

	result := &SyncResult{
		Status:           StatusSuccess,
		NewFlowsAdded:    []NewFlow{},
		UpdatesAvailable: []AvailableUpdate{},
		Failed:           []FailedCopy{},
		TotalTemplates:   len(catalog),
	}

	for _, tmpl := range catalog {
		latest := common.VersionOrDefault(tmpl.TemplateVersion)

		existing, ok := inventory[tmpl.ID]
		if !ok {
			category := CategoryFor(tmpl.Name)
			flow, err := s.copier.Copy(ctx, repo, userID, folders.FolderFor(category), tmpl)
			switch {
			case err == nil:
				result.NewFlowsAdded = append(result.NewFlowsAdded, NewFlow{
					FlowID:          flow.ID,
					Name:            flow.Name,
					TemplateID:      tmpl.ID,
					TemplateVersion: flow.TemplateVersion,
					Folder:          category.FolderName(),
				})
			case errors.Is(err, common.ErrAlreadyExists):
				log.Warn(ctx, "copy already exists, skipping", "template_id", tmpl.ID)
				result.UpToDateCount++
			default:
				log.Error(ctx, "copy template failed", "template_id", tmpl.ID, "error", err)
				result.Failed = append(result.Failed, FailedCopy{TemplateID: tmpl.ID, Name: tmpl.Name, Error: err.Error()})
			}
			continue
		}

		current := common.VersionOrDefault(existing.TemplateVersion)
		if force || current != latest {
			result.UpdatesAvailable = append(result.UpdatesAvailable, AvailableUpdate{
				UserFlowID:     existing.FlowID,
				TemplateID:     tmpl.ID,
				FlowName:       existing.Name,
				CurrentVersion: current,
				LatestVersion:  latest,
			})
			continue
		}
		result.UpToDateCount++
	}

	log.Info(ctx, "templates synced",
		"total", result.TotalTemplates,
		"added", len(result.NewFlowsAdded),
		"updates", len(result.UpdatesAvailable),
		"up_to_date", result.UpToDateCount,
		"failed", len(result.Failed))

	return result
}

// ListUpdates lists the user's copies whose version differs from their template.
func (s *SyncService) ListUpdates(ctx context.Context, userID string) (*UpdatesResult, error) {
	updates, err := s.repomanager.Flows(s.db).ListUpdates(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list updates: %w", err)
	}

	items := make([]UpdateItem, 0, len(updates))
	for _, u := range updates {
		items = append(items, UpdateItem{
			UserFlowID:        u.UserFlowID,
			FlowName:          u.FlowName,
			CurrentVersion:    u.CurrentVersion,
			TemplateID:        u.TemplateID,
			LatestVersion:     u.LatestVersion,
			TemplateUpdatedAt: u.TemplateUpdatedAt,
		})
	}
	return &UpdatesResult{Status: StatusSuccess, UpdatesAvailable: items, Count: len(items)}, nil
}

// AdminCatalog lists every template with its adoption count. Only template
// admins may call it.
func (s *SyncService) AdminCatalog(ctx context.Context, identity auth.Identity) (*CatalogResult, error) {
	if !identity.IsAdmin() {
		return nil, common.ErrorForbidden
	}

	rows, err := s.repomanager.Flows(s.db).ListAdoption(ctx)
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}

	items := make([]CatalogItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, CatalogItem{
			ID:            r.ID,
			Name:          r.Name,
			Description:   r.Description,
			Version:       common.VersionOrDefault(r.Version),
			FolderID:      r.FolderID,
			UpdatedAt:     r.UpdatedAt,
			AdoptionCount: r.AdoptionCount,
		})
	}
	return &CatalogResult{Status: StatusSuccess, Templates: items, Count: len(items)}, nil
}
