package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/baharkarakas/evtrade-backend/internal/api/httpx"
	"github.com/baharkarakas/evtrade-backend/internal/auth"
	"github.com/baharkarakas/evtrade-backend/internal/models"
)

type userKey struct{}

// UserCtx is the authenticated caller.
type UserCtx struct {
	UserID string
	Role   string
}

func (u UserCtx) IsAdmin() bool { return u.Role == models.RoleAdmin }

func WithUser(ctx context.Context, u UserCtx) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// FromCtx returns the authenticated user, or the zero UserCtx.
func FromCtx(ctx context.Context) UserCtx {
	u, _ := ctx.Value(userKey{}).(UserCtx)
	return u
}

type AuthMiddleware struct {
	TM     *auth.TokenManager
	AppEnv string
}

func NewAuthMiddleware(tm *auth.TokenManager, appEnv string) *AuthMiddleware {
	return &AuthMiddleware{TM: tm, AppEnv: appEnv}
}

// Auth accepts a Bearer access token. In dev, "Bearer dev-<user id>" also
// passes as a plain user.
func (m *AuthMiddleware) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ah := r.Header.Get("Authorization")
		if len(ah) < 7 || !strings.EqualFold(ah[:7], "bearer ") {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token", nil)
			return
		}
		token := strings.TrimSpace(ah[7:])

		if m.AppEnv == "dev" && strings.HasPrefix(token, "dev-") {
			u := UserCtx{UserID: strings.TrimPrefix(token, "dev-"), Role: models.RoleUser}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
			return
		}

		claims, err := m.TM.ParseAccess(token)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid access token", nil)
			return
		}
		u := UserCtx{UserID: claims.UserID, Role: claims.Role}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}
