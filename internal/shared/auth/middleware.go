package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/carebridge/platform/internal/shared/config"
	"github.com/carebridge/platform/internal/shared/types"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const actorContextKey contextKey = "actor"

// Actor roles
const (
	RolePatient = "patient"
	RoleStaff   = "staff"
	RoleSystem  = "system"
)

// Staff capabilities. Cases at severity 4-5 require the emergency
// capability; lower severities require medical.
const (
	CapabilityMedical   = "medical"
	CapabilityEmergency = "emergency"
)

// Actor represents the authenticated caller from JWT claims
type Actor struct {
	ID           types.ID `json:"sub"`
	Role         string   `json:"role"`
	Capabilities []string `json:"capabilities"`
	SessionID    string   `json:"session_id"`
}

// HasCapability reports whether the actor carries the given capability.
// Emergency-capable staff implicitly carry the medical capability.
func (a *Actor) HasCapability(cap string) bool {
	for _, c := range a.Capabilities {
		if c == cap {
			return true
		}
		if cap == CapabilityMedical && c == CapabilityEmergency {
			return true
		}
	}
	return false
}

// Claims extends JWT claims with platform-specific data
type Claims struct {
	jwt.RegisteredClaims
	Role         string   `json:"role"`
	Capabilities []string `json:"capabilities"`
	SessionID    string   `json:"session_id"`
}

// Middleware creates JWT authentication middleware
func Middleware(cfg config.AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				writeError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			token, err := jwt.ParseWithClaims(parts[1], &Claims{}, func(token *jwt.Token) (interface{}, error) {
				return []byte(cfg.JWTSecret), nil
			})
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			claims, ok := token.Claims.(*Claims)
			if !ok || !token.Valid {
				writeError(w, http.StatusUnauthorized, "invalid token claims")
				return
			}

			actor := &Actor{
				ID:           types.ID(claims.Subject),
				Role:         claims.Role,
				Capabilities: claims.Capabilities,
				SessionID:    claims.SessionID,
			}

			ctx := context.WithValue(r.Context(), actorContextKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetActor extracts the actor from request context
func GetActor(ctx context.Context) *Actor {
	actor, ok := ctx.Value(actorContextKey).(*Actor)
	if !ok {
		return nil
	}
	return actor
}

// WithActor returns a context carrying the actor. Used by internal callers
// and tests.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// RequireRole creates middleware that requires one of the given roles
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := GetActor(r.Context())
			if actor == nil {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			writeError(w, http.StatusForbidden, "insufficient role")
		})
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
