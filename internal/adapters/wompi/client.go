// Package wompi implements the CardTokenizer port against the payment gateway
// using direct HTTP calls. Card data flows straight from here to the gateway
// and never transits Kore Core.
package wompi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/korefit/kore-payments/internal/core/domain"
	"github.com/korefit/kore-payments/internal/metrics"
)

const (
	sandboxBaseURL    = "https://sandbox.wompi.co/v1"
	productionBaseURL = "https://production.wompi.co/v1"
)

// Client is a direct gateway client authenticated with the merchant public key.
type Client struct {
	baseURL    string
	publicKey  string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a gateway client. sandbox selects the test environment.
func NewClient(publicKey string, sandbox bool, log zerolog.Logger) *Client {
	baseURL := productionBaseURL
	if sandbox {
		baseURL = sandboxBaseURL
	}
	return &Client{
		baseURL:   baseURL,
		publicKey: publicKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log.With().Str("component", "wompi").Logger(),
	}
}

// NewClientWithBaseURL creates a client against an explicit base URL. Used by tests.
func NewClientWithBaseURL(publicKey, baseURL string, log zerolog.Logger) *Client {
	c := NewClient(publicKey, false, log)
	c.baseURL = baseURL
	return c
}

// tokenizeRequest is the gateway's card tokenization payload.
type tokenizeRequest struct {
	Number     string `json:"number"`
	CVC        string `json:"cvc"`
	ExpMonth   string `json:"exp_month"`
	ExpYear    string `json:"exp_year"`
	CardHolder string `json:"card_holder"`
}

// tokenizeResponse is the gateway's tokenization envelope.
type tokenizeResponse struct {
	Status string `json:"status"`
	Data   struct {
		ID string `json:"id"`
	} `json:"data"`
	Error struct {
		Type     string              `json:"type"`
		Reason   string              `json:"reason"`
		Messages map[string][]string `json:"messages"`
	} `json:"error"`
}

// TokenizeCard exchanges raw card fields for a single-use token. Local
// validation runs first and short-circuits without touching the network.
// Per-field gateway errors are aggregated into one readable message.
func (c *Client) TokenizeCard(ctx context.Context, fields domain.CardFields) (domain.CardToken, error) {
	if err := fields.Validate(); err != nil {
		metrics.IncTokenization("validation")
		return "", err
	}

	payload := tokenizeRequest{
		Number:     strings.ReplaceAll(fields.Number, " ", ""),
		CVC:        fields.CVC,
		ExpMonth:   fields.ExpMonth,
		ExpYear:    fields.ExpYear,
		CardHolder: strings.TrimSpace(fields.HolderName),
	}
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal tokenize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tokens/cards", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.publicKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.IncTokenization("gateway")
		return "", domain.NewFlowError(domain.ErrGatewayRejected,
			"could not reach the payment gateway, please try again", domain.CodeGateway)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.IncTokenization("gateway")
		return "", fmt.Errorf("failed to read gateway response: %w", err)
	}

	var parsed tokenizeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		metrics.IncTokenization("gateway")
		return "", domain.NewFlowError(domain.ErrGatewayRejected,
			"the card could not be processed, please try again", domain.CodeGateway)
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		metrics.IncTokenization("gateway")
		c.log.Warn().Int("status", resp.StatusCode).Msg("gateway rejected tokenization")
		return "", domain.NewFlowError(domain.ErrGatewayRejected,
			gatewayMessage(parsed), domain.CodeGateway)
	}
	if parsed.Data.ID == "" {
		metrics.IncTokenization("gateway")
		return "", domain.NewFlowError(domain.ErrGatewayRejected,
			"the card could not be processed, please try again", domain.CodeGateway)
	}

	metrics.IncTokenization("ok")
	return domain.CardToken(parsed.Data.ID), nil
}

// gatewayMessage aggregates the gateway's per-field validation messages into a
// single readable string, falling back to a generic message.
func gatewayMessage(resp tokenizeResponse) string {
	if len(resp.Error.Messages) == 0 {
		return "the card could not be processed, please try again"
	}
	fields := make([]string, 0, len(resp.Error.Messages))
	for field := range resp.Error.Messages {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var parts []string
	for _, field := range fields {
		for _, msg := range resp.Error.Messages[field] {
			parts = append(parts, field+": "+msg)
		}
	}
	return strings.Join(parts, "; ")
}

// institutionsResponse is the gateway's bank list envelope.
type institutionsResponse struct {
	Data []struct {
		Code string `json:"financial_institution_code"`
		Name string `json:"financial_institution_name"`
	} `json:"data"`
}

// FinancialInstitutions lists the banks selectable for redirect-based methods.
func (c *Client) FinancialInstitutions(ctx context.Context) ([]domain.FinancialInstitution, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/pse/financial_institutions", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.publicKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewFlowError(domain.ErrGatewayRejected,
			"could not load the bank list, please try again", domain.CodeGateway)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewFlowError(domain.ErrGatewayRejected,
			"could not load the bank list, please try again", domain.CodeGateway)
	}

	var parsed institutionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode bank list: %w", err)
	}

	banks := make([]domain.FinancialInstitution, 0, len(parsed.Data))
	for _, b := range parsed.Data {
		banks = append(banks, domain.FinancialInstitution{Code: b.Code, Name: b.Name})
	}
	return banks, nil
}
