package live

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aadash/internal/aa"
	"aadash/internal/core"
	"aadash/internal/log"
	"aadash/internal/metrics"

	"github.com/sony/gobreaker"
)

// BreakerConfig controls when the live backend is considered down.
type BreakerConfig struct {
	Name string
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// Cooldown is how long the breaker stays open before probing again.
	Cooldown time.Duration
	// HalfOpenRequests is the number of probes allowed while half-open.
	HalfOpenRequests uint32
}

// DefaultBreakerConfig trips after five consecutive failures and probes
// again after thirty seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:                "aa-live",
		ConsecutiveFailures: 5,
		Cooldown:            30 * time.Second,
		HalfOpenRequests:    1,
	}
}

// Breaker fast-fails calls to a backend that keeps failing. Rejected calls
// surface the same error kinds as real failures, wrapping
// core.ErrBackendUnavailable.
type Breaker struct {
	next    aa.Backend
	cb      *gobreaker.CircuitBreaker
	logger  *log.Logger
	metrics metrics.Collector
}

var _ aa.Backend = (*Breaker)(nil)

func NewBreaker(next aa.Backend, config BreakerConfig, logger *log.Logger, collector metrics.Collector) *Breaker {
	if logger == nil {
		logger = log.Discard()
	}
	if collector == nil {
		collector = metrics.NoOp{}
	}
	if config.Name == "" {
		config.Name = DefaultBreakerConfig().Name
	}
	if config.ConsecutiveFailures == 0 {
		config.ConsecutiveFailures = DefaultBreakerConfig().ConsecutiveFailures
	}

	b := &Breaker{
		next:    next,
		logger:  logger.WithComponent(log.ComponentAA),
		metrics: collector,
	}

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.HalfOpenRequests,
		Timeout:     config.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.ConsecutiveFailures
		},
		// A caller giving up says nothing about the backend.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("Circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
			b.metrics.RecordBreakerState(name, breakerState(to))
		},
	})
	b.metrics.RecordBreakerState(config.Name, metrics.BreakerClosed)

	return b
}

func (b *Breaker) RequestConsent(ctx context.Context, userID string) (core.Consent, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.RequestConsent(ctx, userID)
	})
	if err != nil {
		return core.Consent{}, b.translate(err, core.ErrConsentRequestFailed, PathConsent)
	}
	return res.(core.Consent), nil
}

func (b *Breaker) FetchAccounts(ctx context.Context, consent core.Consent) ([]core.Account, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.FetchAccounts(ctx, consent)
	})
	if err != nil {
		return nil, b.translate(err, core.ErrAccountsFetchFailed, PathFetch)
	}
	return res.([]core.Account), nil
}

func (b *Breaker) FetchTransactions(ctx context.Context, consent core.Consent, accountID string) ([]core.Transaction, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.FetchTransactions(ctx, consent, accountID)
	})
	if err != nil {
		return nil, b.translate(err, core.ErrTransactionsFetchFailed, PathTransactions)
	}
	return res.([]core.Transaction), nil
}

// State reports the current breaker state.
func (b *Breaker) State() metrics.BreakerState {
	return breakerState(b.cb.State())
}

func (b *Breaker) translate(err, kind error, endpoint string) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.logger.Warn("Circuit breaker open, request rejected", log.FieldEndpoint, endpoint)
		return &core.BackendError{
			Kind:     kind,
			Endpoint: endpoint,
			Err:      fmt.Errorf("%w: %v", core.ErrBackendUnavailable, err),
		}
	}
	return err
}

func breakerState(s gobreaker.State) metrics.BreakerState {
	switch s {
	case gobreaker.StateOpen:
		return metrics.BreakerOpen
	case gobreaker.StateHalfOpen:
		return metrics.BreakerHalfOpen
	default:
		return metrics.BreakerClosed
	}
}
