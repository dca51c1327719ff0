// Package service implements the checkout orchestration state machine.
// One Session is constructed per checkout attempt context, owned by its caller;
// there is no process-wide store.
package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/korefit/kore-payments/internal/core/domain"
	"github.com/korefit/kore-payments/internal/core/ports"
	"github.com/korefit/kore-payments/internal/metrics"
)

// Status is the observable checkout state.
// Progression is linear: idle -> processing -> polling -> success | error.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusProcessing Status = "processing"
	StatusPolling    Status = "polling"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// State is an immutable snapshot of a checkout session. Writers publish whole
// replacement snapshots; readers never observe a partially mutated transition.
type State struct {
	Status        Status                      `json:"status"`
	Access        Access                      `json:"access"`
	Package       *domain.Package             `json:"package,omitempty"`
	Gateway       *domain.GatewayConfig       `json:"gateway,omitempty"`
	Preparation   *domain.CheckoutPreparation `json:"preparation,omitempty"`
	Intent        *domain.PaymentIntent       `json:"intent,omitempty"`
	Authenticated bool                        `json:"authenticated"`
	ErrorCode     string                      `json:"error_code,omitempty"`
	ErrorMessage  string                      `json:"error_message,omitempty"`
}

// Config bounds the polling loop. Attempts x Interval is the watch window
// after which the outcome is reported as uncertain.
type Config struct {
	PollAttempts int
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollAttempts <= 0 {
		c.PollAttempts = 30
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	return c
}

// Session drives one buyer's checkout. All transitions are serialized by a
// single writer lock; Snapshot is a lock-free read of the latest state.
type Session struct {
	id        string
	backend   ports.BackendClient
	tokenizer ports.CardTokenizer
	bridge    ports.SessionBridge
	cfg       Config
	log       zerolog.Logger
	sleep     SleepFunc

	mu         sync.Mutex
	state      atomic.Pointer[State]
	epoch      uint64 // bumped per attempt; stale poll loops stop publishing
	bearer     string
	regToken   *domain.RegistrationToken
	guestToken string
	usedTokens map[domain.CardToken]struct{}
}

// NewSession creates an idle checkout session.
func NewSession(backend ports.BackendClient, tokenizer ports.CardTokenizer, bridge ports.SessionBridge, cfg Config, log zerolog.Logger) *Session {
	s := &Session{
		id:         uuid.NewString(),
		backend:    backend,
		tokenizer:  tokenizer,
		bridge:     bridge,
		cfg:        cfg.withDefaults(),
		sleep:      sleepWithContext,
		usedTokens: make(map[domain.CardToken]struct{}),
	}
	s.log = log.With().Str("checkout_session", s.id).Logger()
	s.state.Store(&State{Status: StatusIdle, Access: AccessDenied})
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Snapshot returns the latest published state.
func (s *Session) Snapshot() State { return *s.state.Load() }

// SetBearerToken attaches an authenticated caller's bearer token.
func (s *Session) SetBearerToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bearer = token
	s.publish(func(st *State) {})
}

// SetRegistrationToken attaches a guest registration token and the package id
// it is scoped to, as issued by the external pre-registration step.
func (s *Session) SetRegistrationToken(token string, packageID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regToken = &domain.RegistrationToken{Token: token, PackageID: packageID}
	s.publish(func(st *State) {})
}

// Access resolves the current access level against the selected package.
func (s *Session) Access() Access {
	return s.Snapshot().Access
}

// Begin loads the package and public gateway configuration for the session.
// It does not start a purchase attempt.
func (s *Session) Begin(ctx context.Context, packageID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if access := resolveAccess(s.bearer, s.regToken, packageID); access == AccessDenied {
		return domain.NewFlowError(domain.ErrAccessDenied,
			"sign in or complete pre-registration to purchase this package",
			domain.CodeAccessDenied)
	}

	pkg, err := s.backend.GetPackage(ctx, packageID)
	if err != nil {
		return err
	}
	gw, err := s.backend.GetGatewayConfig(ctx)
	if err != nil {
		return err
	}

	s.publish(func(st *State) {
		st.Package = pkg
		st.Gateway = gw
	})
	s.log.Info().Int("package_id", packageID).Msg("checkout session started")
	return nil
}

// PrepareCheckout requests a fresh signed single-use checkout descriptor.
// Failures are retryable and never mutate the payment intent.
func (s *Session) PrepareCheckout(ctx context.Context) (*domain.CheckoutPreparation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prepareLocked(ctx)
}

func (s *Session) prepareLocked(ctx context.Context) (*domain.CheckoutPreparation, error) {
	st := s.state.Load()
	if st.Package == nil {
		return nil, domain.NewFlowError(domain.ErrValidation, "no package selected", domain.CodeValidation)
	}
	if st.Access == AccessDenied {
		return nil, domain.NewFlowError(domain.ErrAccessDenied,
			"sign in or complete pre-registration to purchase this package",
			domain.CodeAccessDenied)
	}

	prep, err := s.backend.PrepareCheckout(ctx, st.Package.ID, s.creds())
	if err != nil {
		s.failLocked(err)
		return nil, err
	}
	if prep.AccessToken != "" {
		s.guestToken = prep.AccessToken
	}
	s.publish(func(st *State) {
		st.Preparation = prep
		st.ErrorCode, st.ErrorMessage = "", ""
	})
	s.log.Debug().Str("reference", prep.Reference).Msg("checkout prepared")
	return prep, nil
}

// TokenizeCard exchanges raw card fields for a single-use gateway token.
// The exchange goes straight to the gateway; card data never reaches Kore Core.
func (s *Session) TokenizeCard(ctx context.Context, fields domain.CardFields) (domain.CardToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state.Load()
	if st.Access == AccessDenied {
		return "", domain.NewFlowError(domain.ErrAccessDenied,
			"sign in or complete pre-registration to purchase this package",
			domain.CodeAccessDenied)
	}
	if st.Status == StatusProcessing || st.Status == StatusPolling {
		return "", domain.NewFlowError(domain.ErrAttemptInFlight,
			"a purchase attempt is already in flight", domain.CodeDuplicate)
	}

	token, err := s.tokenizer.TokenizeCard(ctx, fields)
	if err != nil {
		s.failLocked(err)
		return "", err
	}
	return token, nil
}

// Purchase submits one purchase attempt. Status flips to processing before the
// network round trip so callers can suppress duplicate submissions. Purchase
// failures are never auto-retried; retrying after an error starts a brand-new
// attempt with a freshly generated reference.
func (s *Session) Purchase(ctx context.Context, payload domain.MethodPayload) (*domain.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state.Load()
	switch st.Status {
	case StatusProcessing, StatusPolling:
		return nil, domain.NewFlowError(domain.ErrAttemptInFlight,
			"a purchase attempt is already in flight", domain.CodeDuplicate)
	case StatusSuccess:
		return nil, domain.NewFlowError(domain.ErrAttemptInFlight,
			"checkout already completed; reset to start another purchase", domain.CodeDuplicate)
	}
	if st.Package == nil {
		return nil, domain.NewFlowError(domain.ErrValidation, "no package selected", domain.CodeValidation)
	}
	if st.Access == AccessDenied {
		return nil, domain.NewFlowError(domain.ErrAccessDenied,
			"sign in or complete pre-registration to purchase this package",
			domain.CodeAccessDenied)
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	// A card token is consumed by its first submission, successful or not.
	if card, ok := payload.(domain.CardPayload); ok {
		if _, used := s.usedTokens[card.Token]; used {
			return nil, domain.NewFlowError(domain.ErrCardTokenReused,
				"tokenize the card again to retry", domain.CodeValidation)
		}
		s.usedTokens[card.Token] = struct{}{}
	}

	// Flip before the round trip; the previous attempt's artifacts are discarded.
	s.epoch++
	s.publish(func(st *State) {
		st.Status = StatusProcessing
		st.Intent = nil
		st.ErrorCode, st.ErrorMessage = "", ""
	})

	packageID := st.Package.ID
	idempotencyKey := uuid.NewString()

	var intent *domain.PaymentIntent
	var err error
	if card, ok := payload.(domain.CardPayload); ok {
		intent, err = s.backend.PurchaseCard(ctx, packageID, card.Token, idempotencyKey, s.creds())
	} else {
		intent, err = s.backend.PurchaseAlternative(ctx, packageID, payload, idempotencyKey, s.creds())
	}
	if err != nil {
		metrics.IncPurchase(string(payload.Method()), "rejected")
		s.failLocked(err)
		return nil, err
	}

	if intent.AccessToken != "" {
		s.guestToken = intent.AccessToken
	}
	s.publish(func(st *State) {
		st.Status = StatusPolling
		st.Intent = intent
		st.Preparation = nil // consumed; a reference is never reused
	})
	metrics.IncPurchase(string(payload.Method()), "accepted")
	s.log.Info().
		Str("method", string(payload.Method())).
		Str("reference", intent.Reference).
		Msg("purchase accepted, polling for settlement")
	return intent, nil
}

// OpenWidget prepares a widget-driven charge: it fetches a fresh checkout
// descriptor, flips the session to processing and returns the configuration the
// host opens the embedded checkout with. The widget reports a gateway
// transaction id via callback, which PollStatus accepts as correlation input.
func (s *Session) OpenWidget(ctx context.Context) (*domain.WidgetCheckout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state.Load()
	switch st.Status {
	case StatusProcessing, StatusPolling:
		return nil, domain.NewFlowError(domain.ErrAttemptInFlight,
			"a purchase attempt is already in flight", domain.CodeDuplicate)
	case StatusSuccess:
		return nil, domain.NewFlowError(domain.ErrAttemptInFlight,
			"checkout already completed; reset to start another purchase", domain.CodeDuplicate)
	}
	if st.Gateway == nil {
		return nil, domain.NewFlowError(domain.ErrValidation, "no package selected", domain.CodeValidation)
	}

	prep, err := s.prepareLocked(ctx)
	if err != nil {
		return nil, err
	}
	s.epoch++
	s.publish(func(st *State) {
		st.Status = StatusProcessing
		st.Intent = nil
	})

	gw := s.state.Load().Gateway
	return &domain.WidgetCheckout{
		PublicKey:     gw.PublicKey,
		Currency:      prep.Currency,
		AmountInCents: prep.AmountInCents,
		Reference:     prep.Reference,
		Signature:     prep.Signature,
	}, nil
}

// Reset unconditionally returns the session to idle, discarding package,
// gateway config, preparation, intent and error. Credentials survive so the
// buyer can start over without re-authenticating.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.guestToken = ""
	s.publish(func(st *State) {
		*st = State{Status: StatusIdle}
	})
	s.log.Debug().Msg("checkout session reset")
}

// creds must be called with s.mu held.
func (s *Session) creds() domain.Credentials {
	c := domain.Credentials{BearerToken: s.bearer}
	if s.regToken != nil {
		c.RegistrationToken = s.regToken.Token
	}
	return c
}

// publish replaces the state snapshot after applying fn and recomputing the
// derived access fields. Must be called with s.mu held.
func (s *Session) publish(fn func(*State)) {
	next := *s.state.Load()
	fn(&next)
	packageID := 0
	if next.Package != nil {
		packageID = next.Package.ID
	}
	next.Access = resolveAccess(s.bearer, s.regToken, packageID)
	next.Authenticated = s.bearer != ""
	s.state.Store(&next)
}

// failLocked flips the session to error with the code and message carried by
// the flow error. Must be called with s.mu held.
func (s *Session) failLocked(err error) {
	code, message := domain.CodeInternal, "something went wrong, please try again"
	var flow *domain.FlowError
	if errors.As(err, &flow) {
		code, message = flow.Code, flow.Message
	}
	s.publish(func(st *State) {
		st.Status = StatusError
		st.ErrorCode = code
		st.ErrorMessage = message
	})
}
