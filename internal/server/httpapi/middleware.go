package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/engarde/templatesync/internal/common"
	"github.com/engarde/templatesync/internal/logging"
	"github.com/engarde/templatesync/internal/server/auth"
	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const identityKey contextKey = "identity"

// Authenticator validates the bearer access token and stores the caller's
// identity in the request context. Requests without a valid token get 401.
func Authenticator(secretKey []byte, logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(common.AuthorizationHeaderName)
			if header == "" {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
				writeError(w, http.StatusUnauthorized, "malformed authorization header")
				return
			}

			identity, err := auth.ParseToken(strings.TrimSpace(token), secretKey)
			if err != nil {
				logger.Debug(r.Context(), "rejected access token", "error", err)
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func WithIdentity(ctx context.Context, identity auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext returns the identity set by Authenticator.
func IdentityFromContext(ctx context.Context) (auth.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(auth.Identity)
	return identity, ok
}

// RequestLogger writes one structured access log entry per request through
// logger. It expects middleware.RequestID to run first.
func RequestLogger(logger logging.Logger) func(http.Handler) http.Handler {
	logger = logger.With("module", "http_access")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				args := []any{
					"request_id", middleware.GetReqID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"status", status,
					"bytes", ww.BytesWritten(),
					"remote_addr", r.RemoteAddr,
					"duration", time.Since(start),
				}
				if status >= http.StatusInternalServerError {
					logger.Warn(r.Context(), "request served", args...)
					return
				}
				logger.Info(r.Context(), "request served", args...)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
