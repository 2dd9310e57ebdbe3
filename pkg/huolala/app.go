package huolala

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// App business api methods.
const (
	// MethodCityList lists every city the freight business operates in.
	MethodCityList = "u-city-list"
	// MethodCityInfo returns the vehicle types available in a city.
	MethodCityInfo = "u-city-info"
	// MethodPriceCalculate prices an order; required when a coupon is applied.
	MethodPriceCalculate = "u-price-calculate"
)

// AppAPI exposes the App business endpoints.
type AppAPI struct {
	client *Client
}

// NewAppAPI wraps a client.
func NewAppAPI(client *Client) *AppAPI {
	return &AppAPI{client: client}
}

// Client returns the underlying client.
func (a *AppAPI) Client() *Client {
	return a.client
}

// CityList returns the cities with freight service.
func (a *AppAPI) CityList(ctx context.Context) (Result, error) {
	return a.client.Call(ctx, MethodCityList, false, nil)
}

// CityInfo returns the vehicle options for a city.
func (a *AppAPI) CityInfo(ctx context.Context, cityID int) (Result, error) {
	return a.client.Call(ctx, MethodCityInfo, false, map[string]any{"city_id": cityID})
}

// PriceCalculate prices an order. It requires an access token.
func (a *AppAPI) PriceCalculate(ctx context.Context, params map[string]any) (Result, error) {
	return a.client.Call(ctx, MethodPriceCalculate, true, params)
}

// CityInfos fetches city info for several cities in parallel.
// Errors from individual cities are collected and don't fail the others.
func (a *AppAPI) CityInfos(ctx context.Context, cityIDs []int) (map[int]Result, []error) {
	results := make(map[int]Result, len(cityIDs))
	errs := make([]error, 0)
	mu := &sync.Mutex{}

	g, ctx := errgroup.WithContext(ctx)

	for _, id := range cityIDs {
		id := id
		g.Go(func() error {
			resp, err := a.CityInfo(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("city %d: %w", id, err))
				return nil
			}
			results[id] = resp
			return nil
		})
	}

	g.Wait()
	return results, errs
}
