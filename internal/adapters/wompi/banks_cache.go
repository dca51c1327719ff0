package wompi

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/korefit/kore-payments/internal/core/domain"
	"github.com/korefit/kore-payments/internal/core/ports"
)

const banksCacheKey = "wompi:financial_institutions"

// bankStore is the minimal cache surface backed by Redis.
type bankStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// CachedTokenizer wraps a gateway client and caches the financial institutions
// list. Bank lists change rarely; tokenization is always passed through.
type CachedTokenizer struct {
	inner ports.CardTokenizer
	store bankStore
	ttl   time.Duration
	log   zerolog.Logger
}

// NewCachedTokenizer wraps inner with a bank-list cache.
func NewCachedTokenizer(inner ports.CardTokenizer, store bankStore, ttl time.Duration, log zerolog.Logger) *CachedTokenizer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedTokenizer{inner: inner, store: store, ttl: ttl, log: log}
}

// TokenizeCard delegates to the wrapped client. Tokens are single-use and are
// never cached.
func (c *CachedTokenizer) TokenizeCard(ctx context.Context, fields domain.CardFields) (domain.CardToken, error) {
	return c.inner.TokenizeCard(ctx, fields)
}

// FinancialInstitutions serves the bank list from cache when fresh.
func (c *CachedTokenizer) FinancialInstitutions(ctx context.Context) ([]domain.FinancialInstitution, error) {
	if cached, err := c.store.Get(ctx, banksCacheKey); err == nil && cached != "" {
		var banks []domain.FinancialInstitution
		if json.Unmarshal([]byte(cached), &banks) == nil {
			return banks, nil
		}
	}

	banks, err := c.inner.FinancialInstitutions(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(banks); err == nil {
		if err := c.store.Set(ctx, banksCacheKey, data, c.ttl); err != nil {
			c.log.Debug().Err(err).Msg("bank list cache write failed")
		}
	}
	return banks, nil
}
