package flows

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/engarde/templatesync/internal/common"
	"github.com/engarde/templatesync/internal/dbx"
	"github.com/engarde/templatesync/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const flowColumns = `id, user_id, folder_id, name, description, data, is_admin_template,
		template_source_id, template_version, custom_settings, last_synced_at, created_at, updated_at`

func (r *PostgresRepository) ListAdminTemplates(ctx context.Context) ([]*models.Flow, error) {
	query := `SELECT ` + flowColumns + ` FROM flow
		WHERE is_admin_template = true
		ORDER BY name, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select templates: %w", err)
	}
	defer rows.Close()

	var result []*models.Flow
	for rows.Next() {
		f, err := scanFlow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) ListUserCopies(ctx context.Context, userID string) ([]*models.TemplateCopy, error) {
	query := `SELECT id, name, template_source_id, template_version, last_synced_at FROM flow
		WHERE user_id = $1 AND template_source_id IS NOT NULL`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to select user copies: %w", err)
	}
	defer rows.Close()

	var result []*models.TemplateCopy
	for rows.Next() {
		var (
			item     models.TemplateCopy
			version  sql.NullString
			syncedAt sql.NullTime
		)
		if err := rows.Scan(&item.FlowID, &item.Name, &item.TemplateSourceID, &version, &syncedAt); err != nil {
			return nil, err
		}
		item.TemplateVersion = version.String
		item.LastSyncedAt = timePtr(syncedAt)
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Create(ctx context.Context, flow *models.Flow) error {
	query := `INSERT INTO flow (id, user_id, folder_id, name, description, data, is_admin_template,
			template_source_id, template_version, custom_settings, last_synced_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT DO NOTHING`

	res, err := r.db.ExecContext(ctx, query,
		flow.ID, flow.UserID, nullable(flow.FolderID), flow.Name, flow.Description, nullableJSON(flow.Data),
		flow.IsAdminTemplate, nullable(flow.TemplateSourceID), nullable(flow.TemplateVersion),
		nullableJSON(flow.CustomSettings), flow.LastSyncedAt, flow.CreatedAt, flow.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err, "") {
			return common.ErrAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrAlreadyExists
	}
	return nil
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (*models.Flow, error) {
	query := `SELECT ` + flowColumns + ` FROM flow WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

func (r *PostgresRepository) GetAdminTemplate(ctx context.Context, id string) (*models.Flow, error) {
	query := `SELECT ` + flowColumns + ` FROM flow WHERE id = $1 AND is_admin_template = true`
	return r.getOne(ctx, query, id)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, id string) (*models.Flow, error) {
	f, err := scanFlow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

func (r *PostgresRepository) ApplyTemplate(ctx context.Context, id string, data json.RawMessage, version string,
	syncedAt time.Time, preserveSettings bool) error {
	query := `UPDATE flow SET
			data = $2,
			template_version = $3,
			last_synced_at = $4,
			updated_at = $4,
			custom_settings = CASE WHEN $5 THEN custom_settings ELSE NULL END
		WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, nullableJSON(data), nullable(version), syncedAt, preserveSettings)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) ListUpdates(ctx context.Context, userID string) ([]*models.TemplateUpdate, error) {
	query := `SELECT uf.id, uf.name, COALESCE(uf.template_version, '1.0.0'), uf.template_source_id,
			COALESCE(af.template_version, '1.0.0'), af.updated_at
		FROM flow uf
		JOIN flow af ON af.id = uf.template_source_id AND af.is_admin_template = true
		WHERE uf.user_id = $1
			AND COALESCE(uf.template_version, '1.0.0') <> COALESCE(af.template_version, '1.0.0')
		ORDER BY uf.name, uf.id`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to select updates: %w", err)
	}
	defer rows.Close()

	var result []*models.TemplateUpdate
	for rows.Next() {
		var (
			item      models.TemplateUpdate
			updatedAt sql.NullTime
		)
		if err := rows.Scan(&item.UserFlowID, &item.FlowName, &item.CurrentVersion, &item.TemplateID,
			&item.LatestVersion, &updatedAt); err != nil {
			return nil, err
		}
		item.TemplateUpdatedAt = timePtr(updatedAt)
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) ListAdoption(ctx context.Context) ([]*models.TemplateAdoption, error) {
	query := `SELECT af.id, af.name, af.description, COALESCE(af.template_version, '1.0.0'),
			COALESCE(af.folder_id::text, ''), af.updated_at, COUNT(uf.id)
		FROM flow af
		LEFT JOIN flow uf ON uf.template_source_id = af.id
		WHERE af.is_admin_template = true
		GROUP BY af.id
		ORDER BY af.name, af.id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select catalog: %w", err)
	}
	defer rows.Close()

	var result []*models.TemplateAdoption
	for rows.Next() {
		var item models.TemplateAdoption
		if err := rows.Scan(&item.ID, &item.Name, &item.Description, &item.Version, &item.FolderID,
			&item.UpdatedAt, &item.AdoptionCount); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFlow(row scanner) (*models.Flow, error) {
	var (
		f              models.Flow
		folderID       sql.NullString
		sourceID       sql.NullString
		version        sql.NullString
		data           []byte
		customSettings []byte
		syncedAt       sql.NullTime
	)
	if err := row.Scan(&f.ID, &f.UserID, &folderID, &f.Name, &f.Description, &data, &f.IsAdminTemplate,
		&sourceID, &version, &customSettings, &syncedAt, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	f.FolderID = folderID.String
	f.TemplateSourceID = sourceID.String
	f.TemplateVersion = version.String
	f.Data = cloneJSON(data)
	f.CustomSettings = cloneJSON(customSettings)
	f.LastSyncedAt = timePtr(syncedAt)
	return &f, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableJSON(b json.RawMessage) any {
	if b == nil {
		return nil
	}
	return []byte(b)
}

func cloneJSON(b []byte) json.RawMessage {
	if b == nil {
		return nil
	}
	return append(json.RawMessage(nil), b...)
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
