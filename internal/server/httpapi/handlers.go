// Package httpapi serves the template sync and SSO endpoints over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/engarde/templatesync/internal/logging"
	"github.com/engarde/templatesync/internal/server/auth"
	"github.com/engarde/templatesync/internal/server/services"
	"github.com/go-playground/validator/v10"
)

// TemplateSyncer is the reconciliation surface used by the handlers.
type TemplateSyncer interface {
	SyncUserTemplates(ctx context.Context, userID string, isAdmin bool, force bool) *services.SyncResult
	ListUpdates(ctx context.Context, userID string) (*services.UpdatesResult, error)
	AdminCatalog(ctx context.Context, identity auth.Identity) (*services.CatalogResult, error)
}

type FlowMigrator interface {
	Migrate(ctx context.Context, userID, flowID string, preserveSettings bool) (*services.MigrationResult, error)
}

type SessionIssuer interface {
	SSOLogin(ctx context.Context, ssoToken string) (*services.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
}

type syncRequest struct {
	ForceSync bool `json:"force_sync"`
}

type migrateRequest struct {
	UserFlowID       string `json:"user_flow_id" validate:"required,uuid"`
	PreserveSettings *bool  `json:"preserve_settings"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type Handler struct {
	syncer   TemplateSyncer
	migrator FlowMigrator
	sessions SessionIssuer
	validate *validator.Validate
	logger   logging.Logger
}

func NewHandler(syncer TemplateSyncer, migrator FlowMigrator, sessions SessionIssuer, logger logging.Logger) *Handler {
	return &Handler{
		syncer:   syncer,
		migrator: migrator,
		sessions: sessions,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With("module", "httpapi"),
	}
}

// decodeBody decodes an optional JSON body. An empty body leaves dst untouched.
func decodeBody(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, messageFor(status, err))
}

func (h *Handler) invalid(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorBody{
		Status:  "error",
		Message: "invalid request",
		Errors:  formatValidationErrors(err),
	})
}

// SSOLogin handles GET /auth/sso?token=.
func (h *Handler) SSOLogin(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "token query parameter is required")
		return
	}

	result, err := h.sessions.SSOLogin(r.Context(), token)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Refresh handles POST /auth/refresh.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.invalid(w, err)
		return
	}

	pair, err := h.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
		*services.TokenPair
	}{Status: services.StatusSuccess, TokenPair: pair})
}

// ListUpdates handles GET /templates/updates.
func (h *Handler) ListUpdates(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	result, err := h.syncer.ListUpdates(r.Context(), identity.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Sync handles POST /templates/sync. The body is optional.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	identity, _ := IdentityFromContext(r.Context())
	result := h.syncer.SyncUserTemplates(r.Context(), identity.UserID, identity.IsAdmin(), req.ForceSync)

	status := http.StatusOK
	if result.Status == services.StatusError {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, result)
}

// Migrate handles POST /templates/migrate. preserve_settings defaults to true.
func (h *Handler) Migrate(w http.ResponseWriter, r *http.Request) {
	var req migrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.invalid(w, err)
		return
	}

	preserve := true
	if req.PreserveSettings != nil {
		preserve = *req.PreserveSettings
	}

	identity, _ := IdentityFromContext(r.Context())
	result, err := h.migrator.Migrate(r.Context(), identity.UserID, req.UserFlowID, preserve)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// AdminCatalog handles GET /templates/admin.
func (h *Handler) AdminCatalog(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	result, err := h.syncer.AdminCatalog(r.Context(), identity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
