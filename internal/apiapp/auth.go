package apiapp

import (
	"context"
	"errors"
	"net/http"

	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/logger"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/security"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/store"
)

type contextKey string

const callerContextKey contextKey = "caller"

type caller struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	IsAdmin     bool   `json:"isAdmin"`
}

func callerFromContext(ctx context.Context) caller {
	c, _ := ctx.Value(callerContextKey).(caller)
	return c
}

// requireUser verifies the bearer token and that the caller is on the
// allow-list.
func (s *server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := security.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		id, err := s.verifier.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		allowed, err := s.store.IsAllowed(r.Context(), id.Email)
		if err != nil {
			logger.Error("allow-list check failed", "email", id.Email, "err", err)
			writeError(w, http.StatusInternalServerError, "authorization check failed")
			return
		}
		if !allowed {
			writeError(w, http.StatusForbidden, "this account is not allowed to use the app")
			return
		}

		c := caller{Email: id.Email, DisplayName: id.Name}
		user, err := s.store.GetAllowedUser(r.Context(), id.Email)
		switch {
		case err == nil:
			c.IsAdmin = user.IsAdmin
			if user.DisplayName != "" {
				c.DisplayName = user.DisplayName
			}
		case errors.Is(err, store.ErrNotFound):
			// Listed only as an admin.
			c.IsAdmin, err = s.store.IsAdmin(r.Context(), id.Email)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "authorization check failed")
				return
			}
		default:
			writeError(w, http.StatusInternalServerError, "authorization check failed")
			return
		}
		if c.DisplayName == "" {
			c.DisplayName = c.Email
		}

		ctx := context.WithValue(r.Context(), callerContextKey, c)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin must run after requireUser.
func (s *server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !callerFromContext(r.Context()).IsAdmin {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, callerFromContext(r.Context()))
}
