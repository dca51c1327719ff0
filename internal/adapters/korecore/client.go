// Package korecore implements the BackendClient port by communicating with the
// Kore Core API over JSON HTTP.
package korecore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/korefit/kore-payments/internal/core/domain"
)

// Client makes HTTP requests to the Kore Core API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a new Kore Core client.
func NewClient(baseURL, apiKey string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log.With().Str("component", "korecore").Logger(),
	}
}

// errorResponse is Kore Core's error envelope. The detail field, when present,
// is surfaced verbatim to the buyer.
type errorResponse struct {
	Detail string `json:"detail"`
}

// GetPackage fetches a subscription package.
// GET /api/v1/packages/:id/
func (c *Client) GetPackage(ctx context.Context, id int) (*domain.Package, error) {
	var pkg domain.Package
	path := fmt.Sprintf("/api/v1/packages/%d/", id)
	notFound := domain.NewFlowError(domain.ErrPackageNotFound, "package not found", domain.CodeNotFound)
	if err := c.get(ctx, path, nil, domain.Credentials{}, notFound, &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// GetGatewayConfig fetches the public gateway configuration.
// GET /api/v1/payments/gateway-config/
func (c *Client) GetGatewayConfig(ctx context.Context) (*domain.GatewayConfig, error) {
	var cfg domain.GatewayConfig
	if err := c.get(ctx, "/api/v1/payments/gateway-config/", nil, domain.Credentials{}, nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PrepareCheckout requests a fresh signed checkout descriptor.
// POST /api/v1/payments/prepare-checkout/
func (c *Client) PrepareCheckout(ctx context.Context, packageID int, creds domain.Credentials) (*domain.CheckoutPreparation, error) {
	body := map[string]any{"package_id": packageID}
	if creds.RegistrationToken != "" {
		body["registration_token"] = creds.RegistrationToken
	}

	var prep domain.CheckoutPreparation
	if err := c.post(ctx, "/api/v1/payments/prepare-checkout/", body, creds,
		domain.ErrPreparationFailed, domain.CodePreparation, &prep); err != nil {
		return nil, err
	}
	return &prep, nil
}

// PurchaseCard submits a tokenized card purchase.
// POST /api/v1/payments/purchase/
func (c *Client) PurchaseCard(ctx context.Context, packageID int, token domain.CardToken, idempotencyKey string, creds domain.Credentials) (*domain.PaymentIntent, error) {
	body := map[string]any{
		"package_id":      packageID,
		"card_token":      string(token),
		"idempotency_key": idempotencyKey,
	}
	if creds.RegistrationToken != "" {
		body["registration_token"] = creds.RegistrationToken
	}

	var intent domain.PaymentIntent
	if err := c.post(ctx, "/api/v1/payments/purchase/", body, creds,
		domain.ErrPurchaseFailed, domain.CodePurchase, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// PurchaseAlternative submits a non-card purchase with its method payload.
// POST /api/v1/payments/purchase-alternative/
func (c *Client) PurchaseAlternative(ctx context.Context, packageID int, payload domain.MethodPayload, idempotencyKey string, creds domain.Credentials) (*domain.PaymentIntent, error) {
	body := map[string]any{
		"package_id":      packageID,
		"method":          string(payload.Method()),
		"payload":         payload,
		"idempotency_key": idempotencyKey,
	}
	if creds.RegistrationToken != "" {
		body["registration_token"] = creds.RegistrationToken
	}

	var intent domain.PaymentIntent
	if err := c.post(ctx, "/api/v1/payments/purchase-alternative/", body, creds,
		domain.ErrPurchaseFailed, domain.CodePurchase, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// IntentStatus fetches the current intent state by reference. Guests pass the
// access token issued with the preparation or purchase; the widget flow adds
// the gateway transaction id as a correlation parameter.
// GET /api/v1/payments/intent-status/:reference/
func (c *Client) IntentStatus(ctx context.Context, reference, accessToken, transactionID string, creds domain.Credentials) (*domain.PaymentIntent, error) {
	query := url.Values{}
	if accessToken != "" {
		query.Set("access_token", accessToken)
	}
	if transactionID != "" {
		query.Set("transaction_id", transactionID)
	}

	var intent domain.PaymentIntent
	path := fmt.Sprintf("/api/v1/payments/intent-status/%s/", url.PathEscape(reference))
	if err := c.get(ctx, path, query, creds, nil, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// get fetches and decodes a JSON resource. notFound, when non-nil, is returned
// for a 404; endpoints without a dedicated not-found meaning pass nil and get
// the generic status error instead.
func (c *Client) get(ctx context.Context, path string, query url.Values, creds domain.Credentials, notFound error, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req, creds)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("kore core request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && notFound != nil {
		return notFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("kore core returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// post sends a JSON body and maps non-2xx responses to the given flow error,
// surfacing the backend's detail message verbatim when present.
func (c *Client) post(ctx context.Context, path string, body any, creds domain.Credentials, sentinel error, code string, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req, creds)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.NewFlowError(sentinel, "could not reach the payment service, please try again", code)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		message := "the request was rejected, please try again"
		var envelope errorResponse
		if json.Unmarshal(raw, &envelope) == nil && envelope.Detail != "" {
			message = envelope.Detail
		}
		c.log.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("kore core rejected request")
		return domain.NewFlowError(sentinel, message, code)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, creds domain.Credentials) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Internal-API-Key", c.apiKey)
	}
	if creds.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+creds.BearerToken)
	}
}
