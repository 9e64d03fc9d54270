package handlers

import (
	"net/http"
	"strings"

	"github.com/username/callrecon/backend/src/logger"
	"github.com/username/callrecon/backend/src/security"
	"github.com/username/callrecon/backend/src/utils"
)

// AuthMiddleware guards mutating endpoints with a bearer token.
func AuthMiddleware(authService *security.AuthService, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			logger.L.Warn("Authorization header missing", "method", r.Method, "path", r.URL.Path)
			utils.SendJSONError(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == "" {
			utils.SendJSONError(w, "Malformed token", http.StatusUnauthorized)
			return
		}

		subject, err := authService.ValidateToken(tokenString)
		if err != nil {
			logger.L.Warn("Token validation failed", "error", err, "method", r.Method, "path", r.URL.Path)
			utils.SendJSONError(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		logger.L.Debug("Token validated", "subject", subject, "method", r.Method, "path", r.URL.Path)
		next(w, r)
	}
}
