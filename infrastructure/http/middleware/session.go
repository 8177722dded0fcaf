package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gatekey/gatekey/application/usecase"
	"github.com/gatekey/gatekey/domain/valueobject"
	"github.com/gatekey/gatekey/infrastructure/http/response"
	"github.com/gatekey/gatekey/infrastructure/service/logger"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

type sessionContextKey string

const sessionKey sessionContextKey = "session"

// CookieConfig controls the attributes of the two token cookies. Secure
// should only be false in local development over plain HTTP.
type CookieConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Secure     bool
	Domain     string
}

// SessionMiddleware resolves the request's authentication state once,
// before any handler runs, and stores the outcome in the request context.
type SessionMiddleware struct {
	resolver *usecase.CarrierResolver
	logger   logger.Logger
	cookies  CookieConfig
}

func NewSessionMiddleware(resolver *usecase.CarrierResolver, log logger.Logger, cookies CookieConfig) *SessionMiddleware {
	return &SessionMiddleware{
		resolver: resolver,
		logger:   log,
		cookies:  cookies,
	}
}

// Resolve extracts the token carriers, runs the resolver and attaches
// the resulting state to the context. When the refresh path rotated the
// tokens, both cookies are re-set on the response so the client keeps a
// live session without ever seeing a 401 for an expired access token.
func (m *SessionMiddleware) Resolve(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		access := extractAccessToken(r)
		refresh := extractRefreshToken(r)

		state, err := m.resolver.Resolve(ctx, access, refresh)
		if err != nil {
			// Revocation store failures are fatal for the request. Serving
			// the request anyway could treat a revoked token as live.
			m.logger.Error(ctx, "Session resolution failed", err, map[string]interface{}{
				"path": r.URL.Path,
				"ip":   getClientIP(r),
			})
			response.Error(w, http.StatusServiceUnavailable, "Authentication temporarily unavailable")
			return
		}

		switch state.Kind {
		case valueobject.StateRefreshValid:
			m.SetTokenCookies(w, state.Rotated.AccessToken, state.Rotated.RefreshToken)
		case valueobject.StateInvalidToken:
			logger.LogSecurityEvent(ctx, m.logger, "invalid_token_presented", "MEDIUM", map[string]interface{}{
				"path":      r.URL.Path,
				"ip":        getClientIP(r),
				"userAgent": r.UserAgent(),
			})
			m.ClearTokenCookies(w)
		}

		ctx = context.WithValue(ctx, sessionKey, state)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth rejects requests whose resolved state is not authenticated.
// It must run inside Resolve.
func (m *SessionMiddleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := SessionFromContext(r.Context())
		if !state.Authenticated() {
			response.Unauthorized(w, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	}
}

// SetTokenCookies writes both token cookies. The refresh cookie is
// scoped to the auth endpoints so it never rides along on ordinary
// API calls.
func (m *SessionMiddleware) SetTokenCookies(w http.ResponseWriter, accessToken, refreshToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessTokenCookie,
		Value:    accessToken,
		Path:     "/",
		Domain:   m.cookies.Domain,
		MaxAge:   int(m.cookies.AccessTTL.Seconds()),
		HttpOnly: true,
		Secure:   m.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshTokenCookie,
		Value:    refreshToken,
		Path:     "/v1/auth",
		Domain:   m.cookies.Domain,
		MaxAge:   int(m.cookies.RefreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   m.cookies.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearTokenCookies expires both token cookies on the client.
func (m *SessionMiddleware) ClearTokenCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessTokenCookie,
		Value:    "",
		Path:     "/",
		Domain:   m.cookies.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshTokenCookie,
		Value:    "",
		Path:     "/v1/auth",
		Domain:   m.cookies.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cookies.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// SessionFromContext returns the resolved state for the request. Outside
// of Resolve it returns the guest state.
func SessionFromContext(ctx context.Context) valueobject.AuthState {
	if state, ok := ctx.Value(sessionKey).(valueobject.AuthState); ok {
		return state
	}
	return valueobject.Guest()
}

// extractAccessToken prefers the cookie and falls back to a Bearer
// header for non-browser clients. A present-but-empty carrier counts
// as absent.
func extractAccessToken(r *http.Request) *string {
	if c, err := r.Cookie(AccessTokenCookie); err == nil && c.Value != "" {
		v := c.Value
		return &v
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return nil
	}
	return &parts[1]
}

func extractRefreshToken(r *http.Request) *string {
	if c, err := r.Cookie(RefreshTokenCookie); err == nil && c.Value != "" {
		v := c.Value
		return &v
	}
	return nil
}
