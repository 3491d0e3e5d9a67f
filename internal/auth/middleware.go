package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/hkrewson/collectz/internal/httputil"
	"github.com/hkrewson/collectz/internal/models"
)

type contextKey string

const (
	ContextUser  contextKey = "user"
	ContextScope contextKey = "scope"
)

type ContextUserData struct {
	UserID  uuid.UUID
	IsAdmin bool
}

// UserLookup is the slice of the user store the middleware needs to fill
// in the acting user's default space.
type UserLookup interface {
	GetByID(id uuid.UUID) (*models.User, error)
}

type Middleware struct {
	auth  *Auth
	users UserLookup
}

func NewMiddleware(auth *Auth, users UserLookup) *Middleware {
	return &Middleware{auth: auth, users: users}
}

// RequireAuth validates the bearer token and populates the acting user and
// the request's ScopeContext. Scope hints come from the X-Space-ID and
// X-Library-ID headers (or space/library query params); a missing space
// hint falls back to the user's default space.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			httputil.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}

		claims, err := m.auth.ParseToken(token)
		if err != nil {
			httputil.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
			return
		}

		userID, err := uuid.Parse(claims.UserID)
		if err != nil {
			httputil.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
			return
		}

		scope := scopeFromRequest(r)
		if scope.SpaceID == nil && m.users != nil {
			if u, err := m.users.GetByID(userID); err == nil {
				scope.SpaceID = u.DefaultSpaceID
			}
		}

		ctx := context.WithValue(r.Context(), ContextUser, ContextUserData{
			UserID:  userID,
			IsAdmin: claims.IsAdmin,
		})
		ctx = context.WithValue(ctx, ContextScope, scope)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		if user == nil || !user.IsAdmin {
			httputil.WriteError(w, http.StatusForbidden, "FORBIDDEN", "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func UserFromContext(ctx context.Context) *ContextUserData {
	if v, ok := ctx.Value(ContextUser).(ContextUserData); ok {
		return &v
	}
	return nil
}

func ScopeFromContext(ctx context.Context) models.ScopeContext {
	if v, ok := ctx.Value(ContextScope).(models.ScopeContext); ok {
		return v
	}
	return models.ScopeContext{}
}

func scopeFromRequest(r *http.Request) models.ScopeContext {
	var scope models.ScopeContext
	space := r.Header.Get("X-Space-ID")
	if space == "" {
		space = r.URL.Query().Get("space")
	}
	if id, err := uuid.Parse(space); err == nil {
		scope.SpaceID = &id
	}
	library := r.Header.Get("X-Library-ID")
	if library == "" {
		library = r.URL.Query().Get("library")
	}
	if id, err := uuid.Parse(library); err == nil {
		scope.LibraryID = &id
	}
	return scope
}

func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if c, err := r.Cookie("session"); err == nil {
		return c.Value
	}
	return ""
}
