package upstream

import (
	"context"
	"fmt"
	"time"

	"github.com/kiryana/reporting/httpx"
)

// ProductClient talks to the product service.
type ProductClient struct {
	http *httpx.Client
}

func NewProductClient(baseURL string, timeout time.Duration) *ProductClient {
	return &ProductClient{http: httpx.NewClient(
		httpx.WithBaseURL(baseURL),
		httpx.WithClientTimeout(timeout),
	)}
}

// GetProduct fetches a single product by id.
func (c *ProductClient) GetProduct(ctx context.Context, id string) (*Product, error) {
	var product Product
	if _, err := c.http.Get(ctx, "/products/"+id, &product, callOptions(ctx)...); err != nil {
		return nil, fmt.Errorf("product %s: %w", id, err)
	}
	return &product, nil
}
