package ctl

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/engarde/templatesync/internal/server/auth"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// promptSecret reads the signing secret from the terminal without echo.
func promptSecret(w io.Writer) ([]byte, error) {
	if _, err := fmt.Fprint(w, "Signing secret: "); err != nil {
		return nil, err
	}
	secret, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	if len(secret) == 0 {
		return nil, errors.New("empty secret")
	}
	return secret, nil
}

func newTokenCommand() *cobra.Command {
	var (
		userID   string
		role     string
		secret   string
		validity time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := auth.ParseRole(role)
			if err != nil {
				return err
			}

			key := []byte(secret)
			if secret == "" {
				if key, err = promptSecret(cmd.ErrOrStderr()); err != nil {
					return fmt.Errorf("read secret: %w", err)
				}
			}

			tok, err := auth.GenerateToken(auth.Identity{UserID: userID, Role: r}, key, validity)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleUser), "role claim")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (prompted when empty)")
	cmd.Flags().DurationVar(&validity, "ttl", 15*time.Minute, "token lifetime")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
