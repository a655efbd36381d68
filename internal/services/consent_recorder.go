package services

import (
	"context"
	"errors"
	"fmt"

	"aadash/internal/aa"
	"aadash/internal/core"
	"aadash/internal/log"
)

type (
	// ConsentStore persists the consent audit log.
	ConsentStore interface {
		RecordConsent(ctx context.Context, c core.Consent) (int64, error)
		Close() error
	}

	// ConsentPublisher announces newly granted consents.
	ConsentPublisher interface {
		PublishConsentGranted(ctx context.Context, c core.Consent) error
		Close() error
	}
)

// ConsentRecorder writes every new consent to the audit log and then
// publishes an event about it. Either collaborator may be nil.
type ConsentRecorder struct {
	store     ConsentStore
	publisher ConsentPublisher
	logger    *log.Logger
}

var _ aa.ConsentObserver = (*ConsentRecorder)(nil)

func NewConsentRecorder(store ConsentStore, publisher ConsentPublisher, logger *log.Logger) *ConsentRecorder {
	if logger == nil {
		logger = log.Discard()
	}
	return &ConsentRecorder{
		store:     store,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentConsent),
	}
}

// ConsentGranted saves c locally and publishes a consent.granted event.
// Only the local write can fail the call.
func (s *ConsentRecorder) ConsentGranted(ctx context.Context, c core.Consent) error {
	if s.store != nil {
		if _, err := s.store.RecordConsent(ctx, c); err != nil {
			return fmt.Errorf("record consent: %w", err)
		}
	}

	if s.publisher == nil {
		s.logger.DebugContext(ctx, "AMQP client not available, skipping consent event")
		return nil
	}
	if err := s.publisher.PublishConsentGranted(ctx, c); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish consent event",
			log.NewFields().
				WithOperation(log.OpPublish).
				WithConsent(c.Handle, c.Status.String(), c.Mock).
				WithError(err).
				ToSlice()...)
		// The consent is already recorded locally
	}
	return nil
}

// Close releases the store and the publisher.
func (s *ConsentRecorder) Close() error {
	var errs []error
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close AMQP client: %w", err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close SQLite repository: %w", err))
		}
	}
	return errors.Join(errs...)
}
