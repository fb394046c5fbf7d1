package ctl

import (
	"errors"
	"fmt"

	"github.com/engarde/templatesync/internal/server/auth"
	"github.com/engarde/templatesync/internal/server/services"
	"github.com/spf13/cobra"
)

// ErrSyncFailed is returned when reconciliation reports status error.
var ErrSyncFailed = errors.New("sync failed")

func newSyncCommand(opts *RootOptions, deps Deps) *cobra.Command {
	var (
		userID string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the template catalog into one user's workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd, deps)
			if err != nil {
				return err
			}
			defer s.Close()

			user, err := s.manager.Users(s.db).GetByID(cmd.Context(), userID)
			if err != nil {
				return fmt.Errorf("load user %s: %w", userID, err)
			}
			role, err := auth.ParseRole(user.Role)
			if err != nil {
				return err
			}

			result := s.services.Sync.SyncUserTemplates(cmd.Context(), user.ID, role.IsTemplateAdmin(), force)
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if result.Status == services.StatusError {
				return fmt.Errorf("%w: %s", ErrSyncFailed, result.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().BoolVar(&force, "force", false, "report every existing copy as an available update")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func newUpdatesCommand(opts *RootOptions, deps Deps) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "updates",
		Short: "List a user's copies whose template has a different version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd, deps)
			if err != nil {
				return err
			}
			defer s.Close()

			result, err := s.services.Sync.ListUpdates(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func newCatalogCommand(opts *RootOptions, deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List admin templates with their adoption counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd, deps)
			if err != nil {
				return err
			}
			defer s.Close()

			operator := auth.Identity{UserID: "templatectl", Role: auth.RoleSystemAdmin}
			result, err := s.services.Sync.AdminCatalog(cmd.Context(), operator)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
}
