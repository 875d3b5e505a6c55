package auth

import (
	"net/http"
	"strings"

	"github.com/studx-dev/studx/internal/middleware"
)

// RequireAdmin wraps a handler so only requests carrying a valid admin access
// token reach it. The token is read from the Authorization header as a Bearer
// credential. The authenticated subject is stored in the request context for
// logging and rate limiting.
func RequireAdmin(jwtService *JWTService, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			unauthorized(w, "Missing or malformed Authorization header")
			return
		}

		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			unauthorized(w, "Invalid or expired token")
			return
		}
		if claims.Type != TokenTypeAccess {
			unauthorized(w, "Refresh tokens cannot be used for API access")
			return
		}
		if !claims.IsAdmin() {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		ctx := middleware.SetUserID(r.Context(), claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the Bearer credential from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="studx"`)
	http.Error(w, message, http.StatusUnauthorized)
}
