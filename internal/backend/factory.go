package backend

import (
	"context"
	"fmt"

	"aadash/internal/aa"
	"aadash/internal/aa/live"
	"aadash/internal/aa/mock"
	"aadash/internal/amqp"
	"aadash/internal/log"
	"aadash/internal/metrics"
	"aadash/internal/services"
	"aadash/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger  *log.Logger
	metrics metrics.Collector
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger, collector metrics.Collector) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	if collector == nil {
		collector = metrics.NoOp{}
	}
	return &DefaultFactory{
		logger:  logger.WithComponent(log.ComponentBackend),
		metrics: collector,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	demo := mock.New(mock.WithTransactionCount(config.MockTransactionCount))

	var (
		issuer      aa.ConsentIssuer = demo
		liveBackend aa.Backend
	)
	if config.Type == LiveBackend {
		lb, err := f.createLiveBackend(config)
		if err != nil {
			return nil, err
		}
		issuer = lb
		liveBackend = lb
	}

	mode := config.Type.Mode()
	manager, err := aa.NewConsentManager(mode, issuer, f.logger, f.metrics)
	if err != nil {
		return nil, fmt.Errorf("create consent manager: %w", err)
	}

	fetcher, err := aa.NewDataFetcher(manager, demo, liveBackend, aa.FetcherOptions{
		DemoFallback:         config.DemoFallback,
		SortLiveTransactions: config.SortLiveTransactions,
	}, f.logger, f.metrics)
	if err != nil {
		return nil, fmt.Errorf("create data fetcher: %w", err)
	}

	result := &BackendResult{
		Manager: manager,
		Fetcher: fetcher,
		Mode:    mode,
		Demo:    demo,
		Live:    liveBackend,
	}

	if err := f.attachRecorder(config, result); err != nil {
		return nil, err
	}

	f.logger.InfoContext(ctx, "Initialized AA backend",
		log.FieldMode, mode.String(),
		"demo_fallback", config.DemoFallback,
		"audit_enabled", result.Audit != nil)

	return result, nil
}

func (f *DefaultFactory) createLiveBackend(config Config) (aa.Backend, error) {
	client, err := live.NewClient(config.BaseURL, config.Timeout, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AA client: %w", err)
	}
	if config.BreakerFailures == 0 {
		f.logger.Warn("Circuit breaker disabled for live AA backend")
		return client, nil
	}

	breaker := live.DefaultBreakerConfig()
	breaker.ConsecutiveFailures = uint32(config.BreakerFailures)
	if config.BreakerCooldown > 0 {
		breaker.Cooldown = config.BreakerCooldown
	}
	return live.NewBreaker(client, breaker, f.logger, f.metrics), nil
}

// attachRecorder wires the optional audit log and event publisher as a
// consent observer.
func (f *DefaultFactory) attachRecorder(config Config, result *BackendResult) error {
	var (
		store     services.ConsentStore
		publisher services.ConsentPublisher
	)

	if config.SQLiteDBPath != "" {
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		repo.WithLogger(f.logger)
		store = repo
		result.Audit = repo
	}

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without consent events", log.FieldError, err)
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			publisher = client.WithLogger(f.logger)
		}
	}

	if store == nil && publisher == nil {
		return nil
	}

	recorder := services.NewConsentRecorder(store, publisher, f.logger)
	result.Manager.AddObserver(recorder)
	result.Cleanup = recorder.Close
	return nil
}
