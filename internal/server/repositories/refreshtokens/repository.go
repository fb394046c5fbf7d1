// Package refreshtokens declares the storage contract for refresh tokens
// issued at SSO login and rotated on refresh.
package refreshtokens

import (
	"context"
	"time"

	"github.com/engarde/templatesync/internal/server/models"
)

// Repository issues, looks up and revokes refresh tokens.
type Repository interface {
	// Create stores a refresh token for userID that stops being valid at expiresAt.
	Create(ctx context.Context, userID string, token string, expiresAt time.Time) error

	// Find returns the row for token, or common.ErrorNotFound.
	Find(ctx context.Context, token string) (*models.RefreshToken, error)

	// Delete removes a token, or returns common.ErrorNotFound if it is gone.
	Delete(ctx context.Context, token string) error

	// DeleteExpired drops the user's tokens that expired before now and
	// reports how many were removed.
	DeleteExpired(ctx context.Context, userID string, now time.Time) (int64, error)
}
