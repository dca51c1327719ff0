package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		purchasesTotal,
		pollAttemptsTotal,
		pollSettlementsTotal,
		tokenizationsTotal,
	)
}

var (
	purchasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_purchases_total",
			Help: "Purchase submissions by payment method and outcome (accepted/rejected).",
		},
		[]string{"method", "outcome"},
	)

	pollAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_poll_attempts_total",
			Help: "Individual intent-status fetches performed by the poller.",
		},
	)

	pollSettlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_poll_settlements_total",
			Help: "Polling loop outcomes (success/rejected/timeout).",
		},
		[]string{"result"},
	)

	tokenizationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_card_tokenizations_total",
			Help: "Card tokenization attempts by outcome (ok/validation/gateway).",
		},
		[]string{"outcome"},
	)
)

// IncPurchase records a purchase submission outcome.
func IncPurchase(method, outcome string) {
	purchasesTotal.WithLabelValues(norm(method), norm(outcome)).Inc()
}

// IncPollAttempt records one status fetch.
func IncPollAttempt() {
	pollAttemptsTotal.Inc()
}

// IncPollSettlement records how a polling loop ended.
func IncPollSettlement(result string) {
	pollSettlementsTotal.WithLabelValues(norm(result)).Inc()
}

// IncTokenization records a card tokenization outcome.
func IncTokenization(outcome string) {
	tokenizationsTotal.WithLabelValues(norm(outcome)).Inc()
}

func norm(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.ToLower(s)
}
