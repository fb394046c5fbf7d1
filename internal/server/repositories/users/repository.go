// Package users provides persistence for local accounts provisioned through SSO.
package users

import (
	"context"
	"time"

	"github.com/engarde/templatesync/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	UpdateRole(ctx context.Context, id string, role string, isSuperuser bool) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}
