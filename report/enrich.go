package report

import (
	"context"
	"sync"

	"github.com/kiryana/reporting/upstream"
)

// ProductDirectory resolves product identities for enrichment.
type ProductDirectory interface {
	GetProduct(ctx context.Context, id string) (*upstream.Product, error)
}

// StoreDirectory resolves store identities for enrichment.
type StoreDirectory interface {
	GetStore(ctx context.Context, id string) (*upstream.StoreInfo, error)
}

// fetchProducts looks ids up concurrently. A failed lookup only logs;
// the id is simply absent from the result and callers fall back to a
// placeholder name.
func (s *Service) fetchProducts(ctx context.Context, ids []string) map[string]*upstream.Product {
	found := make(map[string]*upstream.Product, len(ids))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			product, err := s.products.GetProduct(ctx, id)
			if err != nil {
				s.log.WithError(err).WithField("productId", id).Warn("product lookup failed")
				return
			}
			mu.Lock()
			found[id] = product
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return found
}

// fetchStores is the store-side counterpart of fetchProducts.
func (s *Service) fetchStores(ctx context.Context, ids []string) map[string]*upstream.StoreInfo {
	found := make(map[string]*upstream.StoreInfo, len(ids))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			store, err := s.stores.GetStore(ctx, id)
			if err != nil {
				s.log.WithError(err).WithField("storeId", id).Warn("store lookup failed")
				return
			}
			mu.Lock()
			found[id] = store
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return found
}

// storeName resolves a single store's display name, falling back to
// "All Stores" when no store is selected and leaving the current value
// usable when the lookup fails.
func (s *Service) storeName(ctx context.Context, storeID string) string {
	if storeID == "" {
		return "All Stores"
	}
	store, err := s.stores.GetStore(ctx, storeID)
	if err != nil {
		s.log.WithError(err).WithField("storeId", storeID).Warn("store lookup failed")
		return "Store " + storeID
	}
	return store.Name
}

func uniqueProductIDs(movements []upstream.Movement) []string {
	seen := make(map[string]struct{}, len(movements))
	ids := make([]string, 0, len(movements))
	for _, m := range movements {
		if _, ok := seen[m.ProductID]; !ok {
			seen[m.ProductID] = struct{}{}
			ids = append(ids, m.ProductID)
		}
	}
	return ids
}

func uniqueStoreIDs(movements []upstream.Movement) []string {
	seen := make(map[string]struct{}, len(movements))
	ids := make([]string, 0, len(movements))
	for _, m := range movements {
		if _, ok := seen[m.StoreID]; !ok {
			seen[m.StoreID] = struct{}{}
			ids = append(ids, m.StoreID)
		}
	}
	return ids
}
