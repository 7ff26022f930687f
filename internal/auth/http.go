// ABOUTME: HTTP middleware for JWT authentication on API endpoints
// ABOUTME: Extracts JWT from Authorization header and adds Identity to context

package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// writeAuthError writes a JSON error response with the given status.
func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// HTTPMiddleware creates an HTTP middleware that extracts and validates JWT
// tokens. Browser EventSource cannot set headers, so a "token" query
// parameter is accepted as a fallback for the stream endpoint.
func HTTPMiddleware(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				if qt := r.URL.Query().Get("token"); qt != "" {
					tokenString, errMsg = qt, ""
				}
			}
			if errMsg != "" {
				writeAuthError(w, http.StatusUnauthorized, errMsg)
				return
			}

			identity, err := verifier.Verify(tokenString)
			if err != nil {
				logger.Debug("token rejected", "error", err)
				writeAuthError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := WithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DevMiddleware creates a middleware for local development when no JWT secret
// is configured. It trusts X-User-ID/X-User-Role headers, falling back to
// user_id/role query parameters for EventSource clients.
func DevMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := r.Header.Get("X-User-ID")
			role := r.Header.Get("X-User-Role")
			if userID == "" {
				userID = r.URL.Query().Get("user_id")
			}
			if role == "" {
				role = r.URL.Query().Get("role")
			}

			if userID == "" {
				writeAuthError(w, http.StatusUnauthorized, "missing user identity")
				return
			}
			if role != RoleRequester && role != RoleProvider {
				writeAuthError(w, http.StatusUnauthorized, "missing or invalid role")
				return
			}

			ctx := WithIdentity(r.Context(), &Identity{UserID: userID, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
