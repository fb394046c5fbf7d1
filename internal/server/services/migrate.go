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
	"github.com/engarde/templatesync/internal/server/archive"
	"github.com/engarde/templatesync/internal/server/repositories/repomanager"
)

// MigrationResult describes an explicit migration of one user copy.
type MigrationResult struct {
	Status            string `json:"status"`
	Message           string `json:"message,omitempty"`
	UserFlowID        string `json:"user_flow_id"`
	FlowName          string `json:"flow_name"`
	PreviousVersion   string `json:"previous_version"`
	NewVersion        string `json:"new_version"`
	SettingsPreserved bool   `json:"settings_preserved"`
	ArchiveKey        string `json:"archive_key,omitempty"`
}

// MigrationService applies a template's current content to a user copy.
type MigrationService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	archiver    archive.Archiver
	logger      logging.Logger
	now         func() time.Time
}

func NewMigrationService(db *sql.DB, m repomanager.RepositoryManager, archiver archive.Archiver, logger logging.Logger) *MigrationService {
	if archiver == nil {
		archiver = archive.Noop{}
	}
	return &MigrationService{
		db:          db,
		repomanager: m,
		archiver:    archiver,
		logger:      logger.With("module", "migrate"),
		now:         time.Now,
	}
}

// Migrate upgrades the copy flowID owned by userID to its template's current
// content and version. The copy row stays locked from the first read to the
// write. With preserveSettings the copy's custom settings are kept, otherwise
// they are cleared. Equal versions yield StatusUpToDate and no write.
//
// Errors: common.ErrorNotFound for a missing copy or template,
// common.ErrorForbidden for a copy of another user, common.ErrorInvalidState
// for a flow that was not derived from a template.
func (s *MigrationService) Migrate(ctx context.Context, userID, flowID string, preserveSettings bool) (*MigrationResult, error) {
	var result *MigrationResult

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Flows(tx)

		flow, err := repo.GetForUpdate(ctx, flowID)
		if err != nil {
			return fmt.Errorf("load flow %s: %w", flowID, err)
		}
		if flow.UserID != userID {
			return fmt.Errorf("flow %s belongs to another user: %w", flowID, common.ErrorForbidden)
		}
		if !flow.IsCopy() {
			return fmt.Errorf("flow %s has no template source: %w", flowID, common.ErrorInvalidState)
		}

		template, err := repo.GetAdminTemplate(ctx, flow.TemplateSourceID)
		if err != nil {
			return fmt.Errorf("load template %s: %w", flow.TemplateSourceID, err)
		}

		previous := common.VersionOrDefault(flow.TemplateVersion)
		latest := common.VersionOrDefault(template.TemplateVersion)

		result = &MigrationResult{
			UserFlowID:        flow.ID,
			FlowName:          flow.Name,
			PreviousVersion:   previous,
			NewVersion:        latest,
			SettingsPreserved: preserveSettings,
		}

		if previous == latest {
			result.Status = StatusUpToDate
			result.Message = "flow is already at the latest template version"
			return nil
		}

		now := s.now()
		key, err := s.archiver.Archive(ctx, &archive.Snapshot{
			UserID:          userID,
			FlowID:          flow.ID,
			FlowName:        flow.Name,
			TemplateID:      template.ID,
			PreviousVersion: previous,
			Data:            flow.Data,
			CustomSettings:  flow.CustomSettings,
			TakenAt:         now,
		})
		if err != nil {
			return fmt.Errorf("archive flow %s: %w", flow.ID, err)
		}

		if err := repo.ApplyTemplate(ctx, flow.ID, cloneRaw(template.Data), latest, now, preserveSettings); err != nil {
			return fmt.Errorf("apply template: %w", err)
		}

		result.Status = StatusSuccess
		result.ArchiveKey = key
		return nil
	})
	if err != nil {
		if !isClientError(err) {
			s.logger.Error(ctx, "migration failed", "user_id", userID, "flow_id", flowID, "error", err)
		}
		return nil, err
	}

	s.logger.Info(ctx, "migration finished", "user_id", userID, "flow_id", flowID,
		"status", result.Status, "from", result.PreviousVersion, "to", result.NewVersion)
	return result, nil
}

func isClientError(err error) bool {
	return errors.Is(err, common.ErrorNotFound) ||
		errors.Is(err, common.ErrorForbidden) ||
		errors.Is(err, common.ErrorInvalidState)
}
