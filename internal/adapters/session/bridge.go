// Package session implements the SessionBridge port. Sessions established from
// auto-login bundles are stored in Redis, keyed by a digest of the access token
// so the token itself never appears in storage keys.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/korefit/kore-payments/internal/core/domain"
)

const defaultTTL = 24 * time.Hour

// sessionStore is the minimal storage surface backed by Redis.
type sessionStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// record is the stored session shape.
type record struct {
	RefreshToken  string             `json:"refresh_token"`
	User          domain.UserSummary `json:"user"`
	Fresh         bool               `json:"fresh"`
	EstablishedAt time.Time          `json:"established_at"`
}

// Bridge establishes authenticated sessions from auto-login bundles.
type Bridge struct {
	store sessionStore
	log   zerolog.Logger
	now   func() time.Time
}

// NewBridge creates a Redis-backed session bridge.
func NewBridge(store sessionStore, log zerolog.Logger) *Bridge {
	return &Bridge{
		store: store,
		log:   log.With().Str("component", "session_bridge").Logger(),
		now:   time.Now,
	}
}

// Establish stores the bundle's credentials and marks the session freshly
// elevated. The session TTL follows the access token's exp claim when one can
// be read, with a one-day fallback.
func (b *Bridge) Establish(ctx context.Context, bundle domain.AutoLoginBundle) error {
	if bundle.AccessToken == "" {
		return fmt.Errorf("auto-login bundle carries no access token")
	}

	rec := record{
		RefreshToken:  bundle.RefreshToken,
		User:          bundle.User,
		Fresh:         true,
		EstablishedAt: b.now(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}

	ttl := b.ttlFromToken(bundle.AccessToken)
	if err := b.store.Set(ctx, sessionKey(bundle.AccessToken), data, ttl); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	b.log.Info().Int("user_id", bundle.User.ID).Dur("ttl", ttl).Msg("session established from auto-login")
	return nil
}

// ConsumeFresh reports whether the session was just elevated and clears the
// mark, so the "just logged in" affordance shows exactly once.
func (b *Bridge) ConsumeFresh(ctx context.Context, accessToken string) (bool, error) {
	key := sessionKey(accessToken)
	raw, err := b.store.Get(ctx, key)
	if err != nil {
		return false, err
	}

	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return false, fmt.Errorf("decode session record: %w", err)
	}
	if !rec.Fresh {
		return false, nil
	}

	rec.Fresh = false
	data, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}
	if err := b.store.Set(ctx, key, data, b.ttlFromToken(accessToken)); err != nil {
		return false, err
	}
	return true, nil
}

// ttlFromToken derives the session TTL from the token's exp claim. The token
// is not verified here; Kore Core issued it and remains the verifier.
func (b *Bridge) ttlFromToken(accessToken string) time.Duration {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return defaultTTL
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return defaultTTL
	}
	ttl := time.Until(exp.Time)
	if ttl <= 0 {
		return defaultTTL
	}
	return ttl
}

func sessionKey(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return "kore:session:" + hex.EncodeToString(sum[:])
}
