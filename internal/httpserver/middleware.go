package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"btcpaper/internal/auth"
	"btcpaper/internal/httputil"
	"btcpaper/internal/model"
	"btcpaper/internal/users"

	"go.uber.org/zap"
)

type ctxKey string

const currentUserKey ctxKey = "current_user"

// WithIdentity resolves the caller into a local user and attaches it to the
// request context. The bearer token is authoritative; the X-Privy-User-Id
// header is a demo-mode fallback for clients without a signed token.
func WithIdentity(verifier *auth.Verifier, svc *users.Service, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := resolveIdentity(verifier, r)
			if err != nil {
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: err.Error()})
				return
			}
			user, err := svc.GetOrCreate(r.Context(), identity)
			if err != nil {
				log.Error("resolve user failed", zap.String("privy_user_id", identity.PrivyUserID), zap.Error(err))
				httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error"})
				return
			}
			ctx := context.WithValue(r.Context(), currentUserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func resolveIdentity(verifier *auth.Verifier, r *http.Request) (users.Identity, error) {
	authz := r.Header.Get("Authorization")
	if authz != "" {
		parts := strings.SplitN(authz, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return users.Identity{}, errMissingBearer
		}
		return verifier.ParseToken(parts[1])
	}
	if privyID := strings.TrimSpace(r.Header.Get("X-Privy-User-Id")); privyID != "" {
		return users.Identity{PrivyUserID: privyID}, nil
	}
	return users.Identity{}, errMissingBearer
}

var errMissingBearer = errors.New("missing bearer token")

// CurrentUser returns the resolved user for an authenticated request.
func CurrentUser(r *http.Request) (*model.UserWithBalance, bool) {
	v := r.Context().Value(currentUserKey)
	if v == nil {
		return nil, false
	}
	u, ok := v.(*model.UserWithBalance)
	return u, ok
}
