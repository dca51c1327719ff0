// Package ports defines the interfaces (ports) for the checkout service.
// These are contracts that adapters must implement.
package ports

import (
	"context"

	"github.com/korefit/kore-payments/internal/core/domain"
)

// BackendClient is the port to the Kore Core backend. Authenticated calls carry
// creds.BearerToken; guest calls carry creds.RegistrationToken in the request
// body instead, and guests poll intent status with the access token issued by
// the preparation or purchase response.
type BackendClient interface {
	// GetPackage retrieves a subscription package by id.
	// Returns ErrPackageNotFound when the package does not exist.
	GetPackage(ctx context.Context, id int) (*domain.Package, error)

	// GetGatewayConfig retrieves the public gateway configuration.
	GetGatewayConfig(ctx context.Context) (*domain.GatewayConfig, error)

	// PrepareCheckout requests a fresh signed single-use checkout descriptor.
	// A reference is never reused; every call yields a new one.
	PrepareCheckout(ctx context.Context, packageID int, creds domain.Credentials) (*domain.CheckoutPreparation, error)

	// PurchaseCard submits a tokenized card purchase and returns the created intent.
	PurchaseCard(ctx context.Context, packageID int, token domain.CardToken, idempotencyKey string, creds domain.Credentials) (*domain.PaymentIntent, error)

	// PurchaseAlternative submits a non-card purchase (Nequi, PSE, Bancolombia).
	// Redirect-based methods return an intent carrying a RedirectURL.
	PurchaseAlternative(ctx context.Context, packageID int, payload domain.MethodPayload, idempotencyKey string, creds domain.Credentials) (*domain.PaymentIntent, error)

	// IntentStatus fetches the current state of an intent by reference.
	// accessToken is the guest polling credential (empty for bearer callers);
	// transactionID is the optional widget correlation parameter.
	IntentStatus(ctx context.Context, reference, accessToken, transactionID string, creds domain.Credentials) (*domain.PaymentIntent, error)
}

// CardTokenizer talks directly to the payment gateway, bypassing Kore Core, so
// raw card data never transits application servers.
type CardTokenizer interface {
	// TokenizeCard exchanges raw card fields for a single-use gateway token.
	// Local validation runs first; the network is touched only when it passes.
	TokenizeCard(ctx context.Context, fields domain.CardFields) (domain.CardToken, error)

	// FinancialInstitutions lists the banks selectable for redirect-based methods.
	FinancialInstitutions(ctx context.Context) ([]domain.FinancialInstitution, error)
}

// SessionBridge establishes authenticated sessions from auto-login bundles
// issued alongside successful guest purchases.
type SessionBridge interface {
	// Establish stores the bundle's session credentials and marks the session
	// freshly elevated. It must complete before the checkout reports success.
	Establish(ctx context.Context, bundle domain.AutoLoginBundle) error

	// ConsumeFresh reports and clears the one-time "just logged in" mark for
	// the session identified by accessToken.
	ConsumeFresh(ctx context.Context, accessToken string) (bool, error)
}
