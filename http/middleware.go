package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const agentContextKey = "verifying_agent"

// agentAuthMiddleware authenticates gate staff with an HMAC-signed bearer
// token whose subject is the agent identity. Handlers read the identity
// from the context so a request body cannot impersonate another agent.
func agentAuthMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !parsed.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			subject, err := parsed.Claims.GetSubject()
			if err != nil || subject == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "token has no subject")
			}

			c.Set(agentContextKey, subject)

			return next(c)
		}
	}
}

// agentFromContext prefers the authenticated identity and falls back to the
// request body when auth is disabled.
func agentFromContext(c echo.Context, fromRequest string) string {
	if agent, ok := c.Get(agentContextKey).(string); ok && agent != "" {
		return agent
	}
	return fromRequest
}
