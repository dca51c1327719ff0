package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korefit/kore-payments/internal/core/domain"
)

type fakeStore struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (s *fakeStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	s.values[key] = string(value.([]byte))
	s.ttls[key] = ttl
	return nil
}

func (s *fakeStore) Get(ctx context.Context, key string) (string, error) {
	v, ok := s.values[key]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func (s *fakeStore) Del(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(s.values, k)
	}
	return nil
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "42",
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func testBundle(accessToken string) domain.AutoLoginBundle {
	return domain.AutoLoginBundle{
		AccessToken:  accessToken,
		RefreshToken: "refresh-abc",
		User:         domain.UserSummary{ID: 42, Email: "maria@example.com"},
	}
}

func TestEstablishStoresFreshSession(t *testing.T) {
	store := newFakeStore()
	bridge := NewBridge(store, zerolog.Nop())
	accessToken := signedToken(t, time.Now().Add(time.Hour))

	require.NoError(t, bridge.Establish(context.Background(), testBundle(accessToken)))
	require.Len(t, store.values, 1)

	for key, raw := range store.values {
		assert.NotContains(t, key, accessToken, "storage key must not contain the raw token")
		assert.Contains(t, raw, `"fresh":true`)
		assert.Contains(t, raw, "refresh-abc")
	}
}

func TestEstablishTTLFollowsTokenExpiry(t *testing.T) {
	store := newFakeStore()
	bridge := NewBridge(store, zerolog.Nop())
	accessToken := signedToken(t, time.Now().Add(30*time.Minute))

	require.NoError(t, bridge.Establish(context.Background(), testBundle(accessToken)))

	for _, ttl := range store.ttls {
		assert.Greater(t, ttl, 25*time.Minute)
		assert.LessOrEqual(t, ttl, 30*time.Minute)
	}
}

func TestEstablishFallsBackToDefaultTTL(t *testing.T) {
	store := newFakeStore()
	bridge := NewBridge(store, zerolog.Nop())

	// Opaque token without readable claims.
	require.NoError(t, bridge.Establish(context.Background(), testBundle("not-a-jwt")))

	for _, ttl := range store.ttls {
		assert.Equal(t, defaultTTL, ttl)
	}
}

func TestEstablishRejectsEmptyToken(t *testing.T) {
	bridge := NewBridge(newFakeStore(), zerolog.Nop())
	err := bridge.Establish(context.Background(), domain.AutoLoginBundle{})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "access token"))
}

func TestConsumeFreshReportsOnce(t *testing.T) {
	store := newFakeStore()
	bridge := NewBridge(store, zerolog.Nop())
	accessToken := signedToken(t, time.Now().Add(time.Hour))
	require.NoError(t, bridge.Establish(context.Background(), testBundle(accessToken)))

	fresh, err := bridge.ConsumeFresh(context.Background(), accessToken)
	require.NoError(t, err)
	assert.True(t, fresh, "first read reports the fresh login")

	fresh, err = bridge.ConsumeFresh(context.Background(), accessToken)
	require.NoError(t, err)
	assert.False(t, fresh, "the fresh mark is consumed exactly once")
}

func TestConsumeFreshUnknownSession(t *testing.T) {
	bridge := NewBridge(newFakeStore(), zerolog.Nop())
	_, err := bridge.ConsumeFresh(context.Background(), "unknown-token")
	assert.Error(t, err)
}
