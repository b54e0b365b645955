package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sungwon/notification-pipeline/internal/logger"
)

type contextKey string

const (
	subjectKey contextKey = "subject"
	roleKey    contextKey = "operator_role"
)

var (
	errNoAuthHeader = errors.New("authorization header required")
	errNotBearer    = errors.New("expected Bearer <token>")
	errEmptyToken   = errors.New("empty token")
)

// SubjectFromContext returns the authenticated token subject, or "".
func SubjectFromContext(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey).(string)
	return s
}

// RoleFromContext returns the authenticated operator role, or "".
func RoleFromContext(ctx context.Context) string {
	r, _ := ctx.Value(roleKey).(string)
	return r
}

// JWTAuth validates the request's bearer token and stores its subject and
// role in the request context.
func JWTAuth(svc *JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				deny(w, r, http.StatusUnauthorized, err.Error())
				return
			}

			claims, err := svc.ValidateToken(token)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, ErrTokenExpired) {
					msg = "token expired"
				}
				deny(w, r, http.StatusUnauthorized, msg)
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey, claims.Subject)
			ctx = context.WithValue(ctx, roleKey, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects requests whose role is not one of roles. It must run
// after JWTAuth.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			switch {
			case role == "":
				deny(w, r, http.StatusUnauthorized, "authentication required")
			case !allowed[role]:
				deny(w, r, http.StatusForbidden, "insufficient permissions")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", errNoAuthHeader
	}
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errNotBearer
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errEmptyToken
	}
	return token, nil
}

func deny(w http.ResponseWriter, r *http.Request, status int, msg string) {
	log := logger.FromContext(r.Context())
	log.Warn().
		Int("status", status).
		Str("path", r.URL.Path).
		Str("subject", SubjectFromContext(r.Context())).
		Str("reason", msg).
		Msg("admin request denied")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
