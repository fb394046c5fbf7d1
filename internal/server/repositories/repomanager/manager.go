package repomanager

import (
	"context"
	"database/sql"

	"github.com/engarde/templatesync/internal/dbx"
	"github.com/engarde/templatesync/internal/server/repositories/flows"
	"github.com/engarde/templatesync/internal/server/repositories/folders"
	"github.com/engarde/templatesync/internal/server/repositories/refreshtokens"
	"github.com/engarde/templatesync/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a *sql.DB or a *sql.Tx, so
// services can run the same repository code inside and outside transactions.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Folders(db dbx.DBTX) folders.Repository
	Flows(db dbx.DBTX) flows.Repository
}
