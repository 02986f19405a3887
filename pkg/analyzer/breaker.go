package analyzer

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/pario-ai/lens/pkg/logging"
	"github.com/pario-ai/lens/pkg/models"
)

// Breaker fails fast while the wrapped Analyzer keeps failing.
type Breaker struct {
	next Analyzer
	cb   *gobreaker.CircuitBreaker[models.AnalysisResult]
}

// NewBreaker wraps next with a circuit breaker that opens after threshold
// consecutive failures and half-opens after openTimeout.
func NewBreaker(next Analyzer, threshold uint32, openTimeout time.Duration) *Breaker {
	log := logging.Component("analyzer")
	settings := gobreaker.Settings{
		Name:        "analyzer",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}
	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker[models.AnalysisResult](settings)}
}

// Analyze implements Analyzer.
func (b *Breaker) Analyze(ctx context.Context, in Input) (models.AnalysisResult, error) {
	return b.cb.Execute(func() (models.AnalysisResult, error) {
		return b.next.Analyze(ctx, in)
	})
}

// State reports the breaker state for diagnostics.
func (b *Breaker) State() string {
	return b.cb.State().String()
}
