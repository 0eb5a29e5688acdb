package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc"

	"taskforge/backend/internal/config"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Auth verifies Bearer access tokens issued by an OpenID Connect provider
// and resolves the acting user and role from their claims.
type Auth struct {
	apiVerifier *oidc.IDTokenVerifier
	logger      Logger
	authBypass  bool
}

// New creates a new Auth object using values from the application
// configuration. It establishes a connection to the provider and prepares a
// token verifier. In dev mode with the bypass flag the verifier is skipped
// and requests authenticate via plain headers.
func New(ctx context.Context, cfg *config.Config, logger Logger) (*Auth, error) {
	isDev := strings.ToUpper(cfg.Environment) == "DEV"
	shouldBypass := isDev && cfg.Auth.DevModeBypass

	var apiVerifier *oidc.IDTokenVerifier
	if !shouldBypass {
		if cfg.Auth.Issuer == "" {
			return nil, errors.New("auth configuration is incomplete")
		}
		provider, err := oidc.NewProvider(ctx, cfg.Auth.Issuer)
		if err != nil {
			return nil, err
		}
		// Access tokens often carry a different audience than the client id,
		// so the audience check is skipped and the role claim is authoritative.
		apiVerifier = provider.Verifier(&oidc.Config{SkipClientIDCheck: true})
	}

	return &Auth{
		apiVerifier: apiVerifier,
		logger:      logger,
		authBypass:  shouldBypass,
	}, nil
}

// RequireAuth is middleware that ensures a valid Bearer token is present and
// injects the caller's user id and role into the request context.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var userID, role string

		if a.authBypass {
			// Dev bypass trusts plain headers so local tooling can act as
			// any user.
			userID = r.Header.Get("X-User-ID")
			role = r.Header.Get("X-Role")
			if userID == "" {
				http.Error(w, "X-User-ID header required in dev bypass mode", http.StatusUnauthorized)
				return
			}
		} else {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			rawToken := strings.TrimPrefix(authHeader, "Bearer ")
			token, err := a.apiVerifier.Verify(r.Context(), rawToken)
			if err != nil {
				http.Error(w, "invalid token: "+err.Error(), http.StatusUnauthorized)
				return
			}

			var claims struct {
				Subject string `json:"sub"`
				Role    string `json:"role"`
			}
			if err := token.Claims(&claims); err != nil {
				http.Error(w, "failed to parse token claims", http.StatusUnauthorized)
				return
			}
			userID = claims.Subject
			role = claims.Role
		}

		if role != RoleStudent && role != RoleCompany {
			http.Error(w, "unknown role in token", http.StatusForbidden)
			return
		}

		ctx := context.WithValue(r.Context(), ContextUserID, userID)
		ctx = context.WithValue(ctx, ContextRole, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserID extracts the authenticated user id from the context.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(ContextUserID).(string)
	return id
}

// Role extracts the authenticated role from the context.
func Role(ctx context.Context) string {
	role, _ := ctx.Value(ContextRole).(string)
	return role
}
