package auth

import (
	"context"
	"net/http"
	"strings"
)

// CookieName is the HttpOnly cookie holding the session token.
const CookieName = "token"

// contextKey is an unexported type used for context keys in this package.
// Only this package can create a key of type contextKey, so no other package
// can read or shadow the user id stored under it.
type contextKey string

const userIDKey contextKey = "userID"

// RequireAuth rejects requests without a valid session with 401 and an
// {"success":false,...} body. On success the user id is stored in the context.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := extractUserID(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"success":false,"error":"unauthorized","message":"Unauthorized"}` + "\n"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// OptionalAuth extracts the user identity if a valid token is present but
// never blocks the request. It runs on every route: public reads stay
// anonymous, privileged operations are decided later by the Guard.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, err := extractUserID(r, tokens); err == nil && userID != "" {
				r = r.WithContext(WithUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithUserID returns a context carrying the authenticated user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns ("", false) for anonymous requests.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// PrincipalFromContext is the acting principal for a service call.
func PrincipalFromContext(ctx context.Context) Principal {
	id, _ := UserIDFromContext(ctx)
	return Principal{UserID: id}
}

// extractUserID reads the session token from the cookie, falling back to an
// "Authorization: Bearer <jwt>" header for non-browser clients. A stale or
// invalid cookie does not hide a valid header.
func extractUserID(r *http.Request, tokens *TokenService) (string, error) {
	var cookieErr error
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		userID, err := tokens.Validate(cookie.Value)
		if err == nil {
			return userID, nil
		}
		cookieErr = err
	}

	header := r.Header.Get("Authorization")
	if bearer, ok := strings.CutPrefix(header, "Bearer "); ok && bearer != "" {
		return tokens.Validate(strings.TrimSpace(bearer))
	}

	if cookieErr != nil {
		return "", cookieErr
	}
	return "", http.ErrNoCookie
}
