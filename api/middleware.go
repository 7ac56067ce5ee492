package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/kiryana/reporting/httpx"
	"github.com/kiryana/reporting/report"
	"github.com/kiryana/reporting/upstream"
)

// TokenVerifier checks a bearer token against the auth service.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*upstream.User, error)
}

const userContextKey = "api.user"

// AuthMiddleware requires a valid bearer token on every request it
// guards. The verified user becomes the report scope, and the token is
// forwarded to downstream service calls.
func AuthMiddleware(verifier TokenVerifier, log *logrus.Logger) httpx.MiddlewareFunc {
	return func(next httpx.HandlerFunc) httpx.HandlerFunc {
		return func(c httpx.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return &Error{
					Status:  http.StatusUnauthorized,
					Code:    "UNAUTHORIZED",
					Message: "Authentication required",
				}
			}
			token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

			user, err := verifier.Verify(c.Request().Context(), token)
			if err != nil {
				if errors.Is(err, upstream.ErrInvalidToken) {
					return &Error{
						Status:  http.StatusUnauthorized,
						Code:    "INVALID_TOKEN",
						Message: "Authentication token is invalid or expired",
					}
				}
				log.WithError(err).Error("auth verification failed")
				return &Error{
					Status:  http.StatusServiceUnavailable,
					Code:    "AUTH_UNAVAILABLE",
					Message: "Authentication service unavailable",
				}
			}

			ctx := upstream.WithToken(c.Request().Context(), token)
			ctx = report.WithGeneratedBy(ctx, user.ID)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set(userContextKey, user)
			return next(c)
		}
	}
}

// UserFrom returns the authenticated user set by AuthMiddleware.
func UserFrom(c httpx.Context) (*upstream.User, bool) {
	user, ok := c.Get(userContextKey).(*upstream.User)
	return user, ok
}
