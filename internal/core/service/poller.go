package service

import (
	"context"
	"time"

	"github.com/korefit/kore-payments/internal/core/domain"
	"github.com/korefit/kore-payments/internal/metrics"
)

// SleepFunc suspends between poll attempts. Tests inject an instant variant so
// no test ever depends on wall-clock timers.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// PollStatus watches the current attempt's intent until it settles or the
// attempt budget runs out. Transient fetch errors count against the budget but
// never abort the loop; a failed settlement halts immediately. Re-entry with
// the same reference after a timeout resumes watching with no side effects
// beyond additional fetches. transactionID is the optional widget correlation
// parameter and may be empty.
func (s *Session) PollStatus(ctx context.Context, transactionID string) (*domain.PaymentIntent, error) {
	s.mu.Lock()
	st := s.state.Load()

	if st.Status == StatusSuccess {
		s.mu.Unlock()
		return nil, domain.NewFlowError(domain.ErrAttemptInFlight,
			"checkout already completed; reset to start another purchase", domain.CodeDuplicate)
	}

	reference := ""
	if st.Intent != nil {
		reference = st.Intent.Reference
	} else if st.Preparation != nil {
		reference = st.Preparation.Reference
	}
	if reference == "" {
		s.mu.Unlock()
		return nil, domain.NewFlowError(domain.ErrValidation,
			"no purchase attempt to poll", domain.CodeValidation)
	}

	epoch := s.epoch
	creds := s.creds()
	guestToken := s.guestToken
	s.publish(func(st *State) {
		st.Status = StatusPolling
		st.ErrorCode, st.ErrorMessage = "", ""
	})
	s.mu.Unlock()

	log := s.log.With().Str("reference", reference).Logger()

	for attempt := 1; attempt <= s.cfg.PollAttempts; attempt++ {
		metrics.IncPollAttempt()

		intent, err := s.backend.IntentStatus(ctx, reference, guestToken, transactionID, creds)
		if err != nil {
			// Transient fetch errors are absorbed; only the budget ends the loop.
			log.Debug().Err(err).Int("attempt", attempt).Msg("status fetch failed")
		} else {
			switch intent.Status {
			case domain.IntentApproved:
				return s.settleApproved(ctx, epoch, intent, creds)
			case domain.IntentFailed:
				metrics.IncPollSettlement("rejected")
				flowErr := domain.NewFlowError(domain.ErrPollRejected,
					"the payment was declined, try a different payment method", domain.CodePollRejected)
				s.settle(epoch, func(st *State) {
					st.Status = StatusError
					st.Intent = intent
					st.ErrorCode = domain.CodePollRejected
					st.ErrorMessage = flowErr.Message
				})
				log.Info().Int("attempt", attempt).Msg("payment rejected")
				return nil, flowErr
			default:
				s.settle(epoch, func(st *State) {
					st.Intent = intent
				})
			}
		}

		if attempt < s.cfg.PollAttempts {
			if err := s.sleep(ctx, s.cfg.PollInterval); err != nil {
				return nil, err
			}
		}
	}

	// The watch window closed with the intent still pending. The purchase may
	// yet resolve out-of-band, so this is uncertainty, not failure.
	metrics.IncPollSettlement("timeout")
	flowErr := domain.NewFlowError(domain.ErrPollTimeout,
		"we could not confirm the payment yet, check back in a few minutes", domain.CodePollTimeout)
	s.settle(epoch, func(st *State) {
		st.Status = StatusError
		st.ErrorCode = domain.CodePollTimeout
		st.ErrorMessage = flowErr.Message
	})
	log.Warn().Int("attempts", s.cfg.PollAttempts).Msg("polling window exhausted")
	return nil, flowErr
}

// settleApproved consumes the auto-login bundle, when present, strictly before
// success becomes observable.
func (s *Session) settleApproved(ctx context.Context, epoch uint64, intent *domain.PaymentIntent, creds domain.Credentials) (*domain.PaymentIntent, error) {
	if intent.AutoLogin != nil && creds.BearerToken == "" {
		bundle := *intent.AutoLogin
		if err := s.bridge.Establish(ctx, bundle); err != nil {
			flowErr := domain.NewFlowError(domain.ErrPurchaseFailed,
				"payment approved but the session could not be established, please sign in", domain.CodeInternal)
			s.settle(epoch, func(st *State) {
				st.Status = StatusError
				st.ErrorCode = flowErr.Code
				st.ErrorMessage = flowErr.Message
			})
			return nil, err
		}
		s.mu.Lock()
		if s.epoch == epoch {
			s.bearer = bundle.AccessToken
		}
		s.mu.Unlock()
		s.log.Info().Int("user_id", bundle.User.ID).Msg("guest session auto-established")
	}

	metrics.IncPollSettlement("success")
	settled := *intent
	settled.AutoLogin = nil // consumed exactly once, never republished
	s.settle(epoch, func(st *State) {
		st.Status = StatusSuccess
		st.Intent = &settled
	})
	s.log.Info().Str("reference", intent.Reference).Msg("payment approved")
	return &settled, nil
}

// settle publishes a poll-loop transition unless the attempt was superseded by
// a reset or a newer purchase while the loop was off the lock.
func (s *Session) settle(epoch uint64, fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return
	}
	s.publish(fn)
}
