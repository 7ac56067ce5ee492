package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kiryana/reporting/httpx"
)

// ErrInvalidToken is returned by Verify when the auth service rejects
// the token. Any other error means the service could not be reached or
// answered unexpectedly.
var ErrInvalidToken = errors.New("upstream: invalid or expired token")

// AuthClient talks to the auth service.
type AuthClient struct {
	http *httpx.Client
}

func NewAuthClient(baseURL string, timeout time.Duration) *AuthClient {
	return &AuthClient{http: httpx.NewClient(
		httpx.WithBaseURL(baseURL),
		httpx.WithClientTimeout(timeout),
	)}
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	User User `json:"user"`
}

// Verify checks a bearer token with the auth service and returns the
// identity it belongs to.
func (c *AuthClient) Verify(ctx context.Context, token string) (*User, error) {
	var out verifyResponse
	resp, err := c.http.Post(ctx, "/api/auth/verify", verifyRequest{Token: token}, &out, callOptions(ctx)...)
	if err != nil {
		if resp != nil && resp.StatusCode() == http.StatusUnauthorized {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("auth verify: %w", err)
	}
	return &out.User, nil
}
