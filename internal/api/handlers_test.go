package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korefit/kore-payments/internal/core/domain"
	"github.com/korefit/kore-payments/internal/core/service"
)

type stubBackend struct {
	purchaseAlt  func(ctx context.Context, packageID int, payload domain.MethodPayload, idempotencyKey string, creds domain.Credentials) (*domain.PaymentIntent, error)
	intentStatus func(ctx context.Context, reference, accessToken, transactionID string, creds domain.Credentials) (*domain.PaymentIntent, error)
}

func (s *stubBackend) GetPackage(ctx context.Context, id int) (*domain.Package, error) {
	return &domain.Package{ID: id, Title: "Monthly Plan", Price: 120000, Currency: "COP"}, nil
}

func (s *stubBackend) GetGatewayConfig(ctx context.Context) (*domain.GatewayConfig, error) {
	return &domain.GatewayConfig{PublicKey: "pub_test_key", Environment: "test"}, nil
}

func (s *stubBackend) PrepareCheckout(ctx context.Context, packageID int, creds domain.Credentials) (*domain.CheckoutPreparation, error) {
	return &domain.CheckoutPreparation{Reference: "kore-001", Signature: "sig", AmountInCents: 120000, Currency: "COP"}, nil
}

func (s *stubBackend) PurchaseCard(ctx context.Context, packageID int, token domain.CardToken, idempotencyKey string, creds domain.Credentials) (*domain.PaymentIntent, error) {
	return &domain.PaymentIntent{ID: "intent-1", Reference: "kore-001", Status: domain.IntentPending}, nil
}

func (s *stubBackend) PurchaseAlternative(ctx context.Context, packageID int, payload domain.MethodPayload, idempotencyKey string, creds domain.Credentials) (*domain.PaymentIntent, error) {
	if s.purchaseAlt != nil {
		return s.purchaseAlt(ctx, packageID, payload, idempotencyKey, creds)
	}
	return &domain.PaymentIntent{ID: "intent-1", Reference: "kore-001", Status: domain.IntentPending}, nil
}

func (s *stubBackend) IntentStatus(ctx context.Context, reference, accessToken, transactionID string, creds domain.Credentials) (*domain.PaymentIntent, error) {
	if s.intentStatus != nil {
		return s.intentStatus(ctx, reference, accessToken, transactionID, creds)
	}
	return &domain.PaymentIntent{ID: "intent-1", Reference: reference, Status: domain.IntentApproved}, nil
}

type stubTokenizer struct{}

func (s *stubTokenizer) TokenizeCard(ctx context.Context, fields domain.CardFields) (domain.CardToken, error) {
	return "tok_test_1", nil
}

func (s *stubTokenizer) FinancialInstitutions(ctx context.Context) ([]domain.FinancialInstitution, error) {
	return []domain.FinancialInstitution{{Code: "1007", Name: "Bancolombia"}}, nil
}

type stubBridge struct {
	fresh bool
}

func (s *stubBridge) Establish(ctx context.Context, bundle domain.AutoLoginBundle) error {
	s.fresh = true
	return nil
}

func (s *stubBridge) ConsumeFresh(ctx context.Context, accessToken string) (bool, error) {
	was := s.fresh
	s.fresh = false
	return was, nil
}

func testRouter(t *testing.T, backend *stubBackend) (*gin.Engine, *Registry) {
	t.Helper()
	if backend == nil {
		backend = &stubBackend{}
	}
	tokenizer := &stubTokenizer{}
	bridge := &stubBridge{}
	log := zerolog.Nop()

	sessions := NewRegistry(func() *service.Session {
		return service.NewSession(backend, tokenizer, bridge,
			service.Config{PollAttempts: 2, PollInterval: time.Millisecond}, log)
	}, time.Hour, log)

	handler := NewHandler(sessions, backend, tokenizer, bridge, log)
	return SetupRouter(handler, gin.TestMode), sessions
}

func doJSON(t *testing.T, router *gin.Engine, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateCheckoutRequiresCredentials(t *testing.T) {
	router, _ := testRouter(t, nil)

	w := doJSON(t, router, http.MethodPost, "/api/v1/checkout", "", gin.H{"package_id": 7})
	assert.Equal(t, http.StatusForbidden, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.CodeAccessDenied, resp.Code)
}

func TestCreateCheckoutAuthenticated(t *testing.T) {
	router, sessions := testRouter(t, nil)

	w := doJSON(t, router, http.MethodPost, "/api/v1/checkout", "jwt-abc", gin.H{"package_id": 7})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp CreateCheckoutResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, service.StatusIdle, resp.State.Status)
	require.NotNil(t, resp.State.Package)
	assert.Equal(t, 7, resp.State.Package.ID)
	assert.True(t, resp.State.Authenticated)

	_, ok := sessions.Get(resp.SessionID)
	assert.True(t, ok)
}

func TestCreateCheckoutGuestWithRegistrationToken(t *testing.T) {
	router, _ := testRouter(t, nil)

	w := doJSON(t, router, http.MethodPost, "/api/v1/checkout", "", gin.H{
		"package_id":         7,
		"registration_token": "reg-abc",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp CreateCheckoutResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, service.AccessGuest, resp.State.Access)
	assert.False(t, resp.State.Authenticated)
}

func TestUnknownSessionIs404(t *testing.T) {
	router, _ := testRouter(t, nil)

	w := doJSON(t, router, http.MethodGet, "/api/v1/checkout/nope", "jwt-abc", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCardPurchaseFlow(t *testing.T) {
	router, _ := testRouter(t, nil)

	w := doJSON(t, router, http.MethodPost, "/api/v1/checkout", "jwt-abc", gin.H{"package_id": 7})
	require.Equal(t, http.StatusCreated, w.Code)
	var created CreateCheckoutResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	base := "/api/v1/checkout/" + created.SessionID

	w = doJSON(t, router, http.MethodPost, base+"/tokenize", "jwt-abc", gin.H{
		"number":      "4242424242424242",
		"cvc":         "123",
		"exp_month":   "12",
		"exp_year":    "29",
		"holder_name": "Maria Gomez",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var tokenized struct {
		Token domain.CardToken `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tokenized))
	assert.Equal(t, domain.CardToken("tok_test_1"), tokenized.Token)

	w = doJSON(t, router, http.MethodPost, base+"/purchase", "jwt-abc", gin.H{
		"method": "CARD",
		"token":  tokenized.Token,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var purchased struct {
		Intent domain.PaymentIntent `json:"intent"`
		State  service.State        `json:"state"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &purchased))
	assert.Equal(t, domain.IntentPending, purchased.Intent.Status)
	assert.Equal(t, service.StatusPolling, purchased.State.Status)

	w = doJSON(t, router, http.MethodPost, base+"/poll", "jwt-abc", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var settled struct {
		State service.State `json:"state"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &settled))
	assert.Equal(t, service.StatusSuccess, settled.State.Status)
}

func TestPurchaseSurfacesRedirectURLBeforeSettlement(t *testing.T) {
	backend := &stubBackend{
		purchaseAlt: func(ctx context.Context, packageID int, payload domain.MethodPayload, idempotencyKey string, creds domain.Credentials) (*domain.PaymentIntent, error) {
			return &domain.PaymentIntent{
				ID:          "intent-1",
				Reference:   "kore-001",
				Status:      domain.IntentPending,
				RedirectURL: "https://bank.example/redirect/abc",
			}, nil
		},
		intentStatus: func(ctx context.Context, reference, accessToken, transactionID string, creds domain.Credentials) (*domain.PaymentIntent, error) {
			t.Error("purchase response must not wait on settlement")
			return nil, nil
		},
	}
	router, _ := testRouter(t, backend)

	w := doJSON(t, router, http.MethodPost, "/api/v1/checkout", "jwt-abc", gin.H{"package_id": 7})
	require.Equal(t, http.StatusCreated, w.Code)
	var created CreateCheckoutResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = doJSON(t, router, http.MethodPost, "/api/v1/checkout/"+created.SessionID+"/purchase", "jwt-abc", gin.H{
		"method":    "PSE",
		"bank_code": "1007",
		"user_type": "0",
		"legal_id":  "1099888777",
		"full_name": "Maria Gomez",
		"phone":     "3001234567",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Intent domain.PaymentIntent `json:"intent"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "https://bank.example/redirect/abc", resp.Intent.RedirectURL)
	assert.Equal(t, domain.IntentPending, resp.Intent.Status)
}

func TestPollRejectionMapsToUnprocessable(t *testing.T) {
	backend := &stubBackend{
		intentStatus: func(ctx context.Context, reference, accessToken, transactionID string, creds domain.Credentials) (*domain.PaymentIntent, error) {
			return &domain.PaymentIntent{Reference: reference, Status: domain.IntentFailed}, nil
		},
	}
	router, _ := testRouter(t, backend)

	w := doJSON(t, router, http.MethodPost, "/api/v1/checkout", "jwt-abc", gin.H{"package_id": 7})
	require.Equal(t, http.StatusCreated, w.Code)
	var created CreateCheckoutResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = doJSON(t, router, http.MethodPost, "/api/v1/checkout/"+created.SessionID+"/purchase", "jwt-abc", gin.H{
		"method": "NEQUI",
		"phone":  "3001234567",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodPost, "/api/v1/checkout/"+created.SessionID+"/poll", "jwt-abc", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.CodePollRejected, resp.Code)
}

func TestPurchaseUnsupportedMethod(t *testing.T) {
	router, _ := testRouter(t, nil)

	w := doJSON(t, router, http.MethodPost, "/api/v1/checkout", "jwt-abc", gin.H{"package_id": 7})
	require.Equal(t, http.StatusCreated, w.Code)
	var created CreateCheckoutResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = doJSON(t, router, http.MethodPost, "/api/v1/checkout/"+created.SessionID+"/purchase", "jwt-abc", gin.H{
		"method": "CASH",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWidgetFlow(t *testing.T) {
	router, _ := testRouter(t, nil)

	w := doJSON(t, router, http.MethodPost, "/api/v1/checkout", "jwt-abc", gin.H{"package_id": 7})
	require.Equal(t, http.StatusCreated, w.Code)
	var created CreateCheckoutResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	base := "/api/v1/checkout/" + created.SessionID

	w = doJSON(t, router, http.MethodGet, base+"/widget", "jwt-abc", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var opened struct {
		Widget domain.WidgetCheckout `json:"widget"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &opened))
	assert.Equal(t, "pub_test_key", opened.Widget.PublicKey)
	assert.Equal(t, "kore-001", opened.Widget.Reference)

	w = doJSON(t, router, http.MethodPost, base+"/widget-callback", "jwt-abc", gin.H{
		"transaction_id": "txn-9901",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var settled struct {
		State service.State `json:"state"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &settled))
	assert.Equal(t, service.StatusSuccess, settled.State.Status)
}

func TestWidgetCallbackRequiresTransactionID(t *testing.T) {
	router, _ := testRouter(t, nil)

	w := doJSON(t, router, http.MethodPost, "/api/v1/checkout", "jwt-abc", gin.H{"package_id": 7})
	require.Equal(t, http.StatusCreated, w.Code)
	var created CreateCheckoutResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = doJSON(t, router, http.MethodPost, "/api/v1/checkout/"+created.SessionID+"/widget-callback", "jwt-abc", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResetEndpoint(t *testing.T) {
	router, _ := testRouter(t, nil)

	w := doJSON(t, router, http.MethodPost, "/api/v1/checkout", "jwt-abc", gin.H{"package_id": 7})
	require.Equal(t, http.StatusCreated, w.Code)
	var created CreateCheckoutResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = doJSON(t, router, http.MethodPost, "/api/v1/checkout/"+created.SessionID+"/reset", "jwt-abc", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		State service.State `json:"state"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, service.StatusIdle, resp.State.Status)
	assert.Nil(t, resp.State.Package)
}

func TestGetBanks(t *testing.T) {
	router, _ := testRouter(t, nil)

	w := doJSON(t, router, http.MethodGet, "/api/v1/banks", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Banks []domain.FinancialInstitution `json:"banks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Banks, 1)
	assert.Equal(t, "Bancolombia", resp.Banks[0].Name)
}

func TestConsumeFreshRequiresBearer(t *testing.T) {
	router, _ := testRouter(t, nil)

	w := doJSON(t, router, http.MethodGet, "/api/v1/session/fresh", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealth(t *testing.T) {
	router, _ := testRouter(t, nil)

	w := doJSON(t, router, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "kore-payments")
}
