// Package domain contains the core business entities for the checkout service.
package domain

import "errors"

// Domain errors represent business rule violations and collaborator failures.
var (
	// ErrAccessDenied is returned when neither an authenticated session nor a
	// registration token scoped to the current package is present.
	ErrAccessDenied = errors.New("checkout access denied")

	// ErrValidation is returned for locally rejected input; it never reaches the network.
	ErrValidation = errors.New("validation failed")

	// ErrGatewayRejected is returned when the payment gateway rejects tokenization.
	ErrGatewayRejected = errors.New("payment gateway rejected the request")

	// ErrPreparationFailed is returned when Kore Core refuses to prepare a checkout.
	ErrPreparationFailed = errors.New("checkout preparation failed")

	// ErrPurchaseFailed is returned when Kore Core rejects a purchase request.
	ErrPurchaseFailed = errors.New("purchase request failed")

	// ErrPollTimeout is returned when the attempt budget is exhausted with the
	// intent still pending. The outcome is uncertain, not a definite failure.
	ErrPollTimeout = errors.New("payment outcome still pending")

	// ErrPollRejected is returned when the intent settles as failed.
	ErrPollRejected = errors.New("payment was declined")

	// ErrAttemptInFlight is returned when a purchase is submitted while another
	// attempt is processing or polling.
	ErrAttemptInFlight = errors.New("a purchase attempt is already in flight")

	// ErrCardTokenReused is returned when a card token is submitted a second time.
	ErrCardTokenReused = errors.New("card token already consumed")

	// ErrPackageNotFound is returned when the requested package does not exist.
	ErrPackageNotFound = errors.New("package not found")
)

// Error codes surfaced to API consumers alongside messages.
const (
	CodeValidation    = "VALIDATION_ERROR"
	CodeAccessDenied  = "ACCESS_DENIED"
	CodeGateway       = "GATEWAY_ERROR"
	CodePreparation   = "PREPARATION_ERROR"
	CodePurchase      = "PURCHASE_ERROR"
	CodePollTimeout   = "POLL_TIMEOUT"
	CodePollRejected  = "POLL_REJECTED"
	CodeDuplicate     = "DUPLICATE_ATTEMPT"
	CodeNotFound      = "NOT_FOUND"
	CodeInternal      = "INTERNAL_ERROR"
)

// FlowError wraps a domain error with a caller-facing message and code.
type FlowError struct {
	Err     error
	Message string
	Code    string
}

// Error implements the error interface.
func (e *FlowError) Error() string {
	if e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

// Unwrap allows errors.Is and errors.As to work with FlowError.
func (e *FlowError) Unwrap() error {
	return e.Err
}

// NewFlowError creates a new FlowError with the given error, message and code.
func NewFlowError(err error, message, code string) *FlowError {
	return &FlowError{Err: err, Message: message, Code: code}
}
