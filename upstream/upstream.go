// Package upstream holds HTTP clients for the platform services the
// reporting backend depends on: auth, product, inventory and store.
// Every call carries an X-Request-ID header and forwards the caller's
// bearer token when one is present on the context.
package upstream

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kiryana/reporting/httpx"
)

type ctxKey int

const tokenKey ctxKey = iota

// WithToken returns a context carrying a bearer token that the clients
// forward to the services they call.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

// TokenFrom extracts the bearer token previously stored with WithToken.
func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey).(string)
	return token
}

// callOptions builds the per-request options shared by every client:
// a fresh request id and, when available, the caller's bearer token.
func callOptions(ctx context.Context) []httpx.RequestOption {
	opts := []httpx.RequestOption{
		httpx.WithRequestHeaders(map[string]string{"X-Request-ID": uuid.NewString()}),
	}
	if token := TokenFrom(ctx); token != "" {
		opts = append(opts, httpx.WithBearer(token))
	}
	return opts
}

// Config carries the base URLs and timeouts for the service clients.
type Config struct {
	AuthURL      string
	ProductURL   string
	InventoryURL string
	StoreURL     string

	// Timeout applies to the auth, product and store clients. The
	// inventory client gets InventoryTimeout since movement queries
	// for reports can be large.
	Timeout          time.Duration
	InventoryTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.InventoryTimeout <= 0 {
		c.InventoryTimeout = 10 * time.Second
	}
	return c
}

// Clients bundles one client per upstream service.
type Clients struct {
	Auth      *AuthClient
	Product   *ProductClient
	Inventory *InventoryClient
	Store     *StoreClient
}

func NewClients(cfg Config) *Clients {
	cfg = cfg.withDefaults()
	return &Clients{
		Auth:      NewAuthClient(cfg.AuthURL, cfg.Timeout),
		Product:   NewProductClient(cfg.ProductURL, cfg.Timeout),
		Inventory: NewInventoryClient(cfg.InventoryURL, cfg.InventoryTimeout),
		Store:     NewStoreClient(cfg.StoreURL, cfg.Timeout),
	}
}
