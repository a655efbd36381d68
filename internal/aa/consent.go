package aa

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"aadash/internal/core"
	"aadash/internal/log"
	"aadash/internal/metrics"
)

// ConsentManager obtains consents and holds the single active one for a
// session. A successful request replaces the active consent; a failed one
// leaves it untouched.
type ConsentManager struct {
	mode    Mode
	issuer  ConsentIssuer
	logger  *log.Logger
	metrics metrics.Collector

	mu        sync.RWMutex
	active    core.Consent
	hasActive bool

	observers []ConsentObserver
}

// NewConsentManager creates a manager issuing consents through issuer.
// A nil logger or collector disables logging or metrics respectively.
func NewConsentManager(mode Mode, issuer ConsentIssuer, logger *log.Logger, collector metrics.Collector) (*ConsentManager, error) {
	if !mode.IsValid() {
		return nil, fmt.Errorf("invalid mode: %q", mode)
	}
	if issuer == nil {
		return nil, errors.New("consent issuer is nil")
	}
	if logger == nil {
		logger = log.Discard()
	}
	if collector == nil {
		collector = metrics.NoOp{}
	}
	return &ConsentManager{
		mode:    mode,
		issuer:  issuer,
		logger:  logger.WithComponent(log.ComponentConsent),
		metrics: collector,
	}, nil
}

// AddObserver registers o to be notified of every newly active consent.
func (m *ConsentManager) AddObserver(o ConsentObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

func (m *ConsentManager) Mode() Mode {
	return m.mode
}

// Active returns the consent recorded by the last successful request.
func (m *ConsentManager) Active() (core.Consent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active, m.hasActive
}

// RequestConsent asks the backend for a consent covering userID and makes it
// the active one. In mock mode it never fails for a non-empty user.
func (m *ConsentManager) RequestConsent(ctx context.Context, userID string) (core.Consent, error) {
	if userID == "" {
		return core.Consent{}, core.ErrEmptyUserID
	}

	start := time.Now()
	consent, err := m.issuer.RequestConsent(ctx, userID)
	m.metrics.ObserveCall(log.OpRequestConsent, m.mode.String(), outcome(err), time.Since(start))
	if err != nil {
		m.logger.WarnContext(ctx, "Consent request failed",
			log.NewFields().
				WithOperation(log.OpRequestConsent).
				WithError(err).
				ToSlice()...)
		if !errors.Is(err, core.ErrConsentRequestFailed) {
			err = &core.BackendError{Kind: core.ErrConsentRequestFailed, Endpoint: "/consent", Err: err}
		}
		return core.Consent{}, err
	}

	consent.Mock = m.mode == ModeMock
	if consent.UserID == "" {
		consent.UserID = userID
	}
	if consent.GrantedAt.IsZero() {
		consent.GrantedAt = time.Now().UTC()
	}

	m.mu.Lock()
	m.active = consent
	m.hasActive = true
	observers := append([]ConsentObserver(nil), m.observers...)
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "Consent recorded",
		log.NewFields().
			WithOperation(log.OpRequestConsent).
			WithConsent(consent.Handle, consent.Status.String(), consent.Mock).
			ToSlice()...)

	for _, o := range observers {
		if err := o.ConsentGranted(ctx, consent); err != nil {
			m.logger.ErrorContext(ctx, "Consent observer failed",
				log.NewFields().
					WithConsent(consent.Handle, consent.Status.String(), consent.Mock).
					WithError(err).
					ToSlice()...)
		}
	}

	return consent, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, core.ErrBackendUnavailable):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeFailure
	}
}
