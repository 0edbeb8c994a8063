package toolregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPProductsFetcher implements [ProductsFetcher] by fetching a trending
// product feed from a plain JSON HTTP endpoint — the product catalog's
// contents are opaque to this process (§6), so no schema beyond name/price/
// url is assumed.
type HTTPProductsFetcher struct {
	url    string
	client *http.Client
}

// NewHTTPProductsFetcher creates a fetcher that GETs url for a JSON array of
// products on every call.
func NewHTTPProductsFetcher(url string) *HTTPProductsFetcher {
	return &HTTPProductsFetcher{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// FetchTrending retrieves the current trending product list.
func (f *HTTPProductsFetcher) FetchTrending(ctx context.Context) ([]Product, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("toolregistry: build trending products request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("toolregistry: fetch trending products: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("toolregistry: trending products feed returned %d", resp.StatusCode)
	}

	var products []Product
	if err := json.NewDecoder(resp.Body).Decode(&products); err != nil {
		return nil, fmt.Errorf("toolregistry: decode trending products: %w", err)
	}
	return products, nil
}
