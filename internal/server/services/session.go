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
	"github.com/engarde/templatesync/internal/server/auth"
	"github.com/engarde/templatesync/internal/server/config"
	"github.com/engarde/templatesync/internal/server/models"
	"github.com/engarde/templatesync/internal/server/repositories/repomanager"
	"golang.org/x/crypto/bcrypt"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// LoginResult is returned by SSOLogin. Sync carries the reconciliation run
// at login; its failure does not fail the login.
type LoginResult struct {
	Status       string      `json:"status"`
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	UserID       string      `json:"user_id"`
	Role         auth.Role   `json:"role"`
	TenantID     string      `json:"tenant_id,omitempty"`
	TenantName   string      `json:"tenant_name,omitempty"`
	Sync         *SyncResult `json:"sync"`
}

// SessionService provisions users from SSO tokens and issues tokens.
type SessionService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	folders                      *FolderResolver
	sync                         *SyncService
	logger                       logging.Logger
	jwtSecret                    []byte
	ssoSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	hashCost                     int
	now                          func() time.Time
}

func NewSessionService(db *sql.DB, m repomanager.RepositoryManager, folders *FolderResolver, sync *SyncService,
	cfg *config.Config, logger logging.Logger) *SessionService {
	return &SessionService{
		db:                           db,
		repomanager:                  m,
		folders:                      folders,
		sync:                         sync,
		logger:                       logger.With("module", "session"),
		jwtSecret:                    []byte(cfg.SecretKey),
		ssoSecret:                    []byte(cfg.SSOSecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		hashCost:                     bcrypt.DefaultCost,
		now:                          time.Now,
	}
}

// SSOLogin verifies an upstream token, provisions or updates the user,
// issues a token pair, ensures the role's home folders and runs template
// sync. Only token and account errors fail the login.
func (s *SessionService) SSOLogin(ctx context.Context, ssoToken string) (*LoginResult, error) {
	subject, err := auth.ParseSSOToken(ssoToken, s.ssoSecret)
	if err != nil {
		if errors.Is(err, common.ErrorValidation) || errors.Is(err, common.ErrUnknownRole) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", common.ErrorUnauthorized, err)
	}

	user, err := s.provisionUser(ctx, subject)
	if err != nil {
		s.logger.Error(ctx, "provision user failed", "email", subject.Email, "error", err)
		return nil, common.ErrorInternal
	}
	identity := auth.Identity{UserID: user.ID, Role: subject.Role}
	log := s.logger.With("user_id", user.ID, "role", string(subject.Role))

	var pair *TokenPair
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		users := s.repomanager.Users(tx)
		if err := users.TouchLastLogin(ctx, user.ID, s.now()); err != nil {
			return err
		}
		if n, err := s.repomanager.RefreshTokens(tx).DeleteExpired(ctx, user.ID, s.now()); err != nil {
			return err
		} else if n > 0 {
			log.Debug(ctx, "expired refresh tokens removed", "count", n)
		}
		var genErr error
		pair, genErr = s.generateTokenPair(ctx, identity, tx)
		return genErr
	}); err != nil {
		log.Error(ctx, "issue tokens failed", "error", err)
		return nil, common.ErrorInternal
	}

	for _, name := range subject.Role.HomeFolders() {
		if _, err := s.folders.Resolve(ctx, user.ID, name, ""); err != nil {
			log.Warn(ctx, "home folder not ensured", "folder", name, "error", err)
		}
	}

	syncResult := s.sync.SyncUserTemplates(ctx, user.ID, identity.IsAdmin(), false)
	if syncResult.Status == StatusError {
		log.Warn(ctx, "template sync at login failed", "message", syncResult.Message)
	}

	return &LoginResult{
		Status:       StatusSuccess,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		UserID:       user.ID,
		Role:         subject.Role,
		TenantID:     subject.TenantID,
		TenantName:   subject.TenantName,
		Sync:         syncResult,
	}, nil
}

// provisionUser returns the account for subject, creating it on first login
// and updating its role when the upstream role changed.
func (s *SessionService) provisionUser(ctx context.Context, subject *auth.SSOSubject) (*models.User, error) {
	repo := s.repomanager.Users(s.db)
	isSuperuser := subject.Role.IsTemplateAdmin()

	user, err := repo.GetUserByLogin(ctx, subject.Email)
	if errors.Is(err, common.ErrorNotFound) {
		hash, herr := s.randomPasswordHash()
		if herr != nil {
			return nil, herr
		}
		user, err = repo.Create(ctx, &models.User{
			UserName:     subject.Email,
			PasswordHash: hash,
			Role:         string(subject.Role),
			IsSuperuser:  isSuperuser,
		})
		if errors.Is(err, common.ErrAlreadyExists) {
			user, err = repo.GetUserByLogin(ctx, subject.Email)
		} else if err == nil {
			s.logger.Info(ctx, "user provisioned", "user_id", user.ID, "email", subject.Email)
			return user, nil
		}
	}
	if err != nil {
		return nil, err
	}

	if user.Role != string(subject.Role) || user.IsSuperuser != isSuperuser {
		if err := repo.UpdateRole(ctx, user.ID, string(subject.Role), isSuperuser); err != nil {
			return nil, err
		}
		user.Role = string(subject.Role)
		user.IsSuperuser = isSuperuser
	}
	return user, nil
}

// Refresh rotates a refresh token and returns a fresh pair. Expired tokens
// yield common.ErrRefreshTokenExpired, unknown ones common.ErrorUnauthorized.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	token, err := s.repomanager.RefreshTokens(s.db).Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("error searching refresh token: %w", err)
	}
	if token.Expires.Before(s.now()) {
		return nil, common.ErrRefreshTokenExpired
	}

	var pair *TokenPair
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		user, err := s.repomanager.Users(tx).GetByID(ctx, token.UserID)
		if err != nil {
			return fmt.Errorf("error loading user: %w", err)
		}
		role, err := auth.ParseRole(user.Role)
		if err != nil {
			return err
		}
		// a concurrent rotation may have consumed the token since Find
		if err := s.repomanager.RefreshTokens(tx).Delete(ctx, refreshToken); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorUnauthorized
			}
			return fmt.Errorf("error deleting refresh token: %w", err)
		}
		var genErr error
		pair, genErr = s.generateTokenPair(ctx, auth.Identity{UserID: user.ID, Role: role}, tx)
		return genErr
	}); err != nil {
		return nil, err
	}
	return pair, nil
}

// --- helpers below ---

func (s *SessionService) randomPasswordHash() ([]byte, error) {
	password, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, err
	}
	return bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
}

func (s *SessionService) generateTokenPair(ctx context.Context, identity auth.Identity, tx dbx.DBTX) (*TokenPair, error) {
	access, err := auth.GenerateToken(identity, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, common.ErrorInternal
	}
	expiresAt := s.now().Add(s.refreshTokenValidityDuration)
	if err := s.repomanager.RefreshTokens(tx).Create(ctx, identity.UserID, refresh, expiresAt); err != nil {
		return nil, common.ErrorInternal
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
