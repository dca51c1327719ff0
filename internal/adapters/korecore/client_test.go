package korecore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korefit/kore-payments/internal/core/domain"
)

func TestGetPackage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/packages/7/", r.URL.Path)
		assert.Equal(t, "secret-key", r.Header.Get("X-Internal-API-Key"))

		json.NewEncoder(w).Encode(domain.Package{ID: 7, Title: "Monthly Plan", Price: 120000, Currency: "COP"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-key", zerolog.Nop())
	pkg, err := client.GetPackage(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 7, pkg.ID)
	assert.Equal(t, "Monthly Plan", pkg.Title)
}

func TestGetPackageNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-key", zerolog.Nop())
	_, err := client.GetPackage(context.Background(), 99)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPackageNotFound))
}

func TestIntentStatusNotFoundIsNotAPackageError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-key", zerolog.Nop())
	_, err := client.IntentStatus(context.Background(), "unknown-ref", "", "", domain.Credentials{BearerToken: "jwt"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrPackageNotFound),
		"an unknown reference must not surface as a missing package")
}

func TestPrepareCheckoutForwardsRegistrationToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/payments/prepare-checkout/", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(7), body["package_id"])
		assert.Equal(t, "reg-abc", body["registration_token"])
		assert.Empty(t, r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(domain.CheckoutPreparation{
			Reference:     "kore-001",
			Signature:     "sig-abc",
			AmountInCents: 120000,
			Currency:      "COP",
			AccessToken:   "guest-jwt",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-key", zerolog.Nop())
	prep, err := client.PrepareCheckout(context.Background(), 7, domain.Credentials{RegistrationToken: "reg-abc"})
	require.NoError(t, err)
	assert.Equal(t, "kore-001", prep.Reference)
	assert.Equal(t, "guest-jwt", prep.AccessToken)
}

func TestPurchaseCardSendsBearerAndIdempotencyKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/payments/purchase/", r.URL.Path)
		assert.Equal(t, "Bearer jwt-abc", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tok_123", body["card_token"])
		assert.Equal(t, "key-1", body["idempotency_key"])

		json.NewEncoder(w).Encode(domain.PaymentIntent{
			ID:        "intent-1",
			Reference: "kore-001",
			Status:    domain.IntentPending,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-key", zerolog.Nop())
	intent, err := client.PurchaseCard(context.Background(), 7, "tok_123", "key-1",
		domain.Credentials{BearerToken: "jwt-abc"})
	require.NoError(t, err)
	assert.Equal(t, domain.IntentPending, intent.Status)
}

func TestPurchaseErrorSurfacesDetailVerbatim(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"detail": "You already have an active subscription for this package."})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-key", zerolog.Nop())
	_, err := client.PurchaseCard(context.Background(), 7, "tok_123", "key-1", domain.Credentials{BearerToken: "jwt"})
	require.Error(t, err)

	var flow *domain.FlowError
	require.True(t, errors.As(err, &flow))
	assert.True(t, errors.Is(err, domain.ErrPurchaseFailed))
	assert.Equal(t, domain.CodePurchase, flow.Code)
	assert.Equal(t, "You already have an active subscription for this package.", flow.Message)
}

func TestPurchaseErrorWithoutDetailUsesGenericMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-key", zerolog.Nop())
	_, err := client.PurchaseAlternative(context.Background(), 7,
		domain.NequiPayload{Phone: "3001234567"}, "key-1", domain.Credentials{BearerToken: "jwt"})

	var flow *domain.FlowError
	require.True(t, errors.As(err, &flow))
	assert.Equal(t, "the request was rejected, please try again", flow.Message)
}

func TestPurchaseAlternativeEncodesMethodAndPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "PSE", body["method"])

		payload, ok := body["payload"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "1007", payload["bank_code"])
		assert.Equal(t, "0", payload["user_type"])

		json.NewEncoder(w).Encode(domain.PaymentIntent{ID: "intent-1", Status: domain.IntentPending})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-key", zerolog.Nop())
	_, err := client.PurchaseAlternative(context.Background(), 7, domain.PSEPayload{
		BankCode: "1007", UserType: "0", LegalID: "1099888777",
		FullName: "Maria Gomez", Phone: "3001234567",
	}, "key-1", domain.Credentials{BearerToken: "jwt"})
	require.NoError(t, err)
}

func TestIntentStatusQueryParameters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/payments/intent-status/kore-001/", r.URL.Path)
		assert.Equal(t, "guest-jwt", r.URL.Query().Get("access_token"))
		assert.Equal(t, "txn-9901", r.URL.Query().Get("transaction_id"))

		json.NewEncoder(w).Encode(domain.PaymentIntent{
			Reference: "kore-001",
			Status:    domain.IntentApproved,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-key", zerolog.Nop())
	intent, err := client.IntentStatus(context.Background(), "kore-001", "guest-jwt", "txn-9901", domain.Credentials{})
	require.NoError(t, err)
	assert.Equal(t, domain.IntentApproved, intent.Status)
}
