package identity

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	httperrors "github.com/quizroom/quizroom/pkg/http/errors"
)

// Middleware validates caller tokens and injects the identity into the
// request context. All session endpoints require an authenticated caller.
func Middleware(verifier *Verifier, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
				return
			}

			// Parse "Bearer <token>"
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				httperrors.RespondUnauthorized(w, httperrors.ErrCodeInvalidToken, "Invalid authorization header")
				return
			}

			caller, err := verifier.Parse(parts[1])
			if err != nil {
				logger.Warn().Err(err).Msg("token validation failed")
				if err == ErrExpiredToken {
					httperrors.RespondUnauthorized(w, httperrors.ErrCodeTokenExpired, "Token expired")
					return
				}
				httperrors.RespondUnauthorized(w, httperrors.ErrCodeInvalidToken, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(IntoContext(r.Context(), caller)))
		})
	}
}
