// Package pricing implements the PriceStore collaborator (§6):
// latest_price(ticker, as_of, base_ccy) backed by Polygon EOD aggregates
// and cached in Redis, restated from backend/data/polyRest.go's
// ListAggs usage and backend/utils/conn.go's Polygon/Redis wiring.
package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"
	"github.com/shopspring/decimal"
)

// ErrPriceUnavailable signals the §6 "missing prices cause MV fallback to
// snapshot MV/qty" path; callers must not treat this as fatal.
var ErrPriceUnavailable = errors.New("pricing: no EOD price available")

// PricePoint is PriceStore's (date, price, fetched_at?) tuple.
type PricePoint struct {
	Date      time.Time       `json:"date"`
	Price     decimal.Decimal `json:"price"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Store wraps a Polygon REST client with a Redis EOD cache. Only
// end-of-day bars are fetched; this engine has no intraday/live pricing
// need (spec §1 non-goal).
type Store struct {
	client   *polygon.Client
	cache    *redis.Client
	cacheTTL time.Duration
}

func NewStore(apiKey string, cache *redis.Client) *Store {
	return &Store{
		client:   polygon.New(apiKey),
		cache:    cache,
		cacheTTL: 7 * 24 * time.Hour,
	}
}

func cacheKey(ticker string, asOf time.Time) string {
	return fmt.Sprintf("price:eod:%s:%s", ticker, asOf.Format("2006-01-02"))
}

// LatestPrice returns the most recent EOD close on or before asOf. base_ccy
// is accepted for interface parity with §6 but unused: every security in
// this engine's data model is already priced in the taxpayer's base
// currency (§9 non-goal: no multi-currency conversion).
func (s *Store) LatestPrice(ctx context.Context, ticker string, asOf time.Time, baseCCY string) (PricePoint, error) {
	key := cacheKey(ticker, asOf)
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key).Result(); err == nil {
			var pt PricePoint
			if jsonErr := json.Unmarshal([]byte(raw), &pt); jsonErr == nil {
				return pt, nil
			}
		}
	}

	pt, err := s.fetchFromPolygon(ctx, ticker, asOf)
	if err != nil {
		return PricePoint{}, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(pt); err == nil {
			s.cache.Set(ctx, key, raw, s.cacheTTL)
		}
	}
	return pt, nil
}

func (s *Store) fetchFromPolygon(ctx context.Context, ticker string, asOf time.Time) (PricePoint, error) {
	from := models.Millis(asOf.AddDate(0, 0, -10))
	to := models.Millis(asOf)
	params := models.ListAggsParams{
		Ticker:     ticker,
		Multiplier: 1,
		Timespan:   models.Timespan("day"),
		From:       from,
		To:         to,
	}.WithOrder(models.Desc).WithLimit(10)

	iter := s.client.ListAggs(ctx, params)
	if !iter.Next() {
		if err := iter.Err(); err != nil {
			return PricePoint{}, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
		}
		return PricePoint{}, ErrPriceUnavailable
	}
	agg := iter.Item()
	return PricePoint{
		Date:      time.Time(agg.Timestamp),
		Price:     decimal.NewFromFloat(agg.Close),
		FetchedAt: asOf,
	}, nil
}
