package api

import (
	"net/http"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"strata.evalgo.org/auth"
)

// Context keys set by the authentication middlewares.
const (
	ctxUserID = "strata.user_id"
	ctxEmail  = "strata.email"
	ctxRole   = "strata.role"
)

// apiKeyMiddleware authenticates requests carrying an X-API-Key header and
// enforces the key's per-minute rate limit. Requests without the header pass
// through untouched; the JWT middleware handles those.
func (s *Server) apiKeyMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := c.Request().Header.Get("X-API-Key")
			if raw == "" {
				return next(c)
			}

			user, key, err := s.auth.AuthenticateAPIKey(c.Request().Context(), raw)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid API key")
			}
			if !s.limits.allow(key) {
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}

			c.Set(ctxUserID, user.ID)
			c.Set(ctxEmail, user.Email)
			c.Set(ctxRole, user.Role)
			return next(c)
		}
	}
}

// jwtMiddleware validates bearer tokens. Requests already authenticated by
// API key skip it.
func (s *Server) jwtMiddleware() echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:  s.auth.Tokens().Secret(),
		TokenLookup: "header:Authorization:Bearer ",
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(auth.Claims)
		},
		Skipper: func(c echo.Context) bool {
			return c.Request().Header.Get("X-API-Key") != ""
		},
	})
}

// identityMiddleware copies the validated JWT claims into the request
// context keys the handlers read.
func (s *Server) identityMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Get(ctxUserID) != nil {
				return next(c)
			}
			token, ok := c.Get("user").(*jwt.Token)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing credentials")
			}
			claims, ok := token.Claims.(*auth.Claims)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
			}
			c.Set(ctxUserID, claims.UserID)
			c.Set(ctxEmail, claims.Email)
			c.Set(ctxRole, claims.Role)
			return next(c)
		}
	}
}

// requireRole guards a route group behind a role.
func (s *Server) requireRole(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if got, _ := c.Get(ctxRole).(string); got != role {
				return echo.NewHTTPError(http.StatusForbidden, "insufficient role")
			}
			return next(c)
		}
	}
}

// actor returns the authenticated identity used for audit fields.
func actor(c echo.Context) string {
	if email, ok := c.Get(ctxEmail).(string); ok && email != "" {
		return email
	}
	id, _ := c.Get(ctxUserID).(string)
	return id
}

func userID(c echo.Context) string {
	id, _ := c.Get(ctxUserID).(string)
	return id
}

// keyLimiter holds one token bucket per API key id. Buckets refill at the
// key's per-minute rate and allow a burst of one minute's quota.
type keyLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newKeyLimiter() *keyLimiter {
	return &keyLimiter{limiters: make(map[string]*rate.Limiter)}
}

func (k *keyLimiter) allow(key *auth.APIKey) bool {
	perMinute := key.RateLimit
	if perMinute <= 0 {
		perMinute = auth.DefaultAPIKeyRateLimit
	}

	k.mu.Lock()
	limiter, ok := k.limiters[key.ID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
		k.limiters[key.ID] = limiter
	}
	k.mu.Unlock()

	return limiter.Allow()
}
