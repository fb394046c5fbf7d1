package folders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/engarde/templatesync/internal/common"
	"github.com/engarde/templatesync/internal/dbx"
	"github.com/engarde/templatesync/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Find(ctx context.Context, userID, name, parentID string) (*models.Folder, error) {
	query := `SELECT id, name, user_id, parent_id, created_at, updated_at FROM folder
		WHERE user_id = $1 AND name = $2 AND parent_id IS NOT DISTINCT FROM $3::uuid`

	f, err := scanFolder(r.db.QueryRowContext(ctx, query, userID, name, nullable(parentID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

func (r *PostgresRepository) Create(ctx context.Context, folder *models.Folder) error {
	query := `INSERT INTO folder (id, name, user_id, parent_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT DO NOTHING`

	res, err := r.db.ExecContext(ctx, query, folder.ID, folder.Name, folder.UserID, nullable(folder.ParentID),
		folder.CreatedAt, folder.UpdatedAt)
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

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.Folder, error) {
	query := `SELECT id, name, user_id, parent_id, created_at, updated_at FROM folder
		WHERE user_id = $1
		ORDER BY name, id`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to select folders: %w", err)
	}
	defer rows.Close()

	var result []*models.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanFolder(row scanner) (*models.Folder, error) {
	var (
		f        models.Folder
		parentID sql.NullString
	)
	if err := row.Scan(&f.ID, &f.Name, &f.UserID, &parentID, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	f.ParentID = parentID.String
	return &f, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
