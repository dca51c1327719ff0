// Package domain contains the core business entities for the checkout service.
// This is the innermost layer of the Clean Architecture - it has no dependencies on
// external frameworks or infrastructure.
package domain

// Package represents a purchasable subscription package, sourced from Kore Core.
type Package struct {
	ID            int    `json:"id"`
	Title         string `json:"title"`
	Price         int64  `json:"price"` // in minor units (COP cents)
	Currency      string `json:"currency"`
	ValidityDays  int    `json:"validity_days"`
	SessionsCount int    `json:"sessions_count"`
}

// GatewayConfig is the public gateway configuration served to rendering surfaces.
type GatewayConfig struct {
	PublicKey   string `json:"public_key"`
	Environment string `json:"environment"` // "test" or "production"
}

// CheckoutPreparation is a signed, single-use checkout descriptor. It is created
// per attempt and discarded once a purchase consumes it; a reference is never
// reused across attempts.
type CheckoutPreparation struct {
	Reference     string `json:"reference"`
	Signature     string `json:"signature"`
	AmountInCents int64  `json:"amount_in_cents"`
	Currency      string `json:"currency"`
	// AccessToken is the guest polling credential, present only for guest attempts.
	AccessToken string `json:"access_token,omitempty"`
}

// CardToken is a gateway-issued, single-use, short-lived card reference.
// It must never be logged.
type CardToken string

// IntentStatus is the settlement status of a payment intent as reported by
// Kore Core. Transitions are monotone: pending -> approved | failed.
type IntentStatus string

const (
	IntentPending  IntentStatus = "pending"
	IntentApproved IntentStatus = "approved"
	IntentFailed   IntentStatus = "failed"
)

// Terminal reports whether the status admits no further transition.
func (s IntentStatus) Terminal() bool {
	return s == IntentApproved || s == IntentFailed
}

// PaymentIntent tracks one purchase attempt's external settlement status.
// It is created by the purchase call and only ever refreshed by status reads.
type PaymentIntent struct {
	ID                   string       `json:"id"`
	Reference            string       `json:"reference"`
	GatewayTransactionID string       `json:"gateway_transaction_id,omitempty"`
	Status               IntentStatus `json:"status"`
	Amount               int64        `json:"amount"`
	Currency             string       `json:"currency"`
	PackageTitle         string       `json:"package_title"`
	// AccessToken lets guests poll intent status before they hold a session.
	AccessToken string `json:"access_token,omitempty"`
	// RedirectURL is present for redirect-based bank methods (PSE, Bancolombia).
	RedirectURL string `json:"redirect_url,omitempty"`
	// AutoLogin is issued alongside a successful guest purchase.
	AutoLogin *AutoLoginBundle `json:"auto_login,omitempty"`
}

// UserSummary is the minimal user projection carried by an auto-login bundle.
type UserSummary struct {
	ID        int    `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// AutoLoginBundle holds session credentials issued alongside a successful guest
// purchase. It is consumed exactly once, before the checkout reports success.
type AutoLoginBundle struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	User         UserSummary `json:"user"`
}

// RegistrationToken is a short-lived credential scoped to exactly one package,
// letting a not-yet-registered prospect complete a single purchase.
type RegistrationToken struct {
	Token     string `json:"token"`
	PackageID int    `json:"package_id"`
}

// FinancialInstitution is a bank selectable for redirect-based methods.
type FinancialInstitution struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// WidgetCheckout is the configuration handed to the host-controlled embedded
// checkout widget. The widget reports back a gateway transaction id via callback.
type WidgetCheckout struct {
	PublicKey     string `json:"public_key"`
	Currency      string `json:"currency"`
	AmountInCents int64  `json:"amount_in_cents"`
	Reference     string `json:"reference"`
	Signature     string `json:"signature"`
}

// Credentials carries the caller identity for backend requests. Authenticated
// callers set BearerToken; guests set RegistrationToken instead.
type Credentials struct {
	BearerToken       string
	RegistrationToken string
}

// Guest reports whether the caller purchases without an authenticated session.
func (c Credentials) Guest() bool {
	return c.BearerToken == "" && c.RegistrationToken != ""
}
