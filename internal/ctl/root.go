// Package ctl implements templatectl, the operator CLI for the template
// sync service.
package ctl

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/engarde/templatesync/internal/logging"
	"github.com/engarde/templatesync/internal/server"
	"github.com/engarde/templatesync/internal/server/archive"
	"github.com/engarde/templatesync/internal/server/config"
	"github.com/engarde/templatesync/internal/server/repositories/repomanager"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DSN     string
	Verbose bool
}

// Deps are the external effects commands rely on.
type Deps struct {
	Open    func(ctx context.Context, dsn string) (*sql.DB, error)
	Manager func() repomanager.RepositoryManager
}

func defaultDeps() Deps {
	return Deps{
		Open:    repomanager.Open,
		Manager: repomanager.NewPostgresRepositoryManager,
	}
}

// NewRootCommand creates the templatectl root command with production deps.
func NewRootCommand() *cobra.Command {
	return newRootCommand(defaultDeps())
}

func newRootCommand(deps Deps) *cobra.Command {
	defaults := &config.Config{}
	defaults.LoadDefaults()

	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "templatectl",
		Short:         "Operate the template sync service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", envOr("TEMPLATESYNC_DSN", defaults.DatabaseDSN), "database DSN")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log debug output to stderr")

	cmd.AddCommand(newDBCommand(opts, deps))
	cmd.AddCommand(newSyncCommand(opts, deps))
	cmd.AddCommand(newUpdatesCommand(opts, deps))
	cmd.AddCommand(newCatalogCommand(opts, deps))
	cmd.AddCommand(newTokenCommand())

	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (o *RootOptions) logger(cmd *cobra.Command) logging.Logger {
	level := config.Config{LogLevel: "warn"}
	if o.Verbose {
		level.LogLevel = "debug"
	}
	return logging.NewJSONLogger(cmd.ErrOrStderr(), level.SlogLevel())
}

// session bundles an open database with the services built on it.
type session struct {
	db       *sql.DB
	manager  repomanager.RepositoryManager
	services *server.Services
}

func (o *RootOptions) open(cmd *cobra.Command, deps Deps) (*session, error) {
	db, err := deps.Open(cmd.Context(), o.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	cfg := &config.Config{}
	cfg.LoadDefaults()

	m := deps.Manager()
	return &session{
		db:       db,
		manager:  m,
		services: server.NewServices(db, m, archive.Noop{}, cfg, o.logger(cmd)),
	}, nil
}

func (s *session) Close() error {
	return s.db.Close()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
