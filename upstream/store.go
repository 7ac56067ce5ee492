package upstream

import (
	"context"
	"fmt"
	"time"

	"github.com/kiryana/reporting/httpx"
)

// StoreClient talks to the store service.
type StoreClient struct {
	http *httpx.Client
}

func NewStoreClient(baseURL string, timeout time.Duration) *StoreClient {
	return &StoreClient{http: httpx.NewClient(
		httpx.WithBaseURL(baseURL),
		httpx.WithClientTimeout(timeout),
	)}
}

// GetStore fetches a single store by id.
func (c *StoreClient) GetStore(ctx context.Context, id string) (*StoreInfo, error) {
	var store StoreInfo
	if _, err := c.http.Get(ctx, "/stores/"+id, &store, callOptions(ctx)...); err != nil {
		return nil, fmt.Errorf("store %s: %w", id, err)
	}
	return &store, nil
}
