package aa

import (
	"context"
	"errors"
	"time"

	"aadash/internal/core"
	"aadash/internal/log"
	"aadash/internal/metrics"
)

// FetcherOptions tune how the DataFetcher treats missing consents and live
// results.
type FetcherOptions struct {
	// DemoFallback serves mock data in live mode while no consent is active.
	// When false such calls fail with core.ErrNoConsent.
	DemoFallback bool

	// SortLiveTransactions orders live transaction lists newest first.
	// Mock lists are always sorted.
	SortLiveTransactions bool
}

// DefaultFetcherOptions keeps the demo fallback and sorts live results.
func DefaultFetcherOptions() FetcherOptions {
	return FetcherOptions{
		DemoFallback:         true,
		SortLiveTransactions: true,
	}
}

// DataFetcher reads accounts and transactions under the active consent of
// its ConsentManager.
type DataFetcher struct {
	consents *ConsentManager
	mock     Backend
	live     Backend
	opts     FetcherOptions
	logger   *log.Logger
	metrics  metrics.Collector
}

// NewDataFetcher builds a fetcher over consents. live may be nil in mock
// mode; mock is used for mock consents and the demo fallback.
func NewDataFetcher(consents *ConsentManager, mock, live Backend, opts FetcherOptions, logger *log.Logger, collector metrics.Collector) (*DataFetcher, error) {
	if consents == nil {
		return nil, errors.New("consent manager is nil")
	}
	if mock == nil {
		return nil, errors.New("mock backend is nil")
	}
	if consents.Mode() == ModeLive && live == nil {
		return nil, errors.New("live backend is required in live mode")
	}
	if logger == nil {
		logger = log.Discard()
	}
	if collector == nil {
		collector = metrics.NoOp{}
	}
	return &DataFetcher{
		consents: consents,
		mock:     mock,
		live:     live,
		opts:     opts,
		logger:   logger.WithComponent(log.ComponentAA),
		metrics:  collector,
	}, nil
}

// Consents returns the manager the fetcher reads the active consent from.
func (f *DataFetcher) Consents() *ConsentManager {
	return f.consents
}

// source picks the backend serving the current call together with the
// consent to present to it.
func (f *DataFetcher) source() (Backend, core.Consent, Mode, error) {
	consent, ok := f.consents.Active()
	switch {
	case ok && !consent.Mock:
		return f.live, consent, ModeLive, nil
	case !ok && f.consents.Mode() == ModeLive && !f.opts.DemoFallback:
		return nil, core.Consent{}, ModeLive, core.ErrNoConsent
	default:
		return f.mock, consent, ModeMock, nil
	}
}

// FetchAccounts returns the accounts under the active consent, or the demo
// accounts when the consent is a mock one or none is active.
func (f *DataFetcher) FetchAccounts(ctx context.Context) ([]core.Account, error) {
	src, consent, mode, err := f.source()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	accounts, err := src.FetchAccounts(ctx, consent)
	f.metrics.ObserveCall(log.OpFetchAccounts, mode.String(), outcome(err), time.Since(start))
	if err != nil {
		f.logFailure(ctx, log.OpFetchAccounts, "", err)
		return nil, err
	}
	if err := core.ValidateAccounts(accounts); err != nil {
		f.logger.WarnContext(ctx, "Backend returned duplicate account ids",
			log.NewFields().WithOperation(log.OpFetchAccounts).WithError(err).ToSlice()...)
	}

	f.logger.DebugContext(ctx, "Accounts fetched",
		log.FieldOperation, log.OpFetchAccounts,
		log.FieldMode, mode.String(),
		log.FieldCount, len(accounts))
	return accounts, nil
}

// FetchTransactions returns the transactions of accountID. Mock lists are
// sorted newest first; live lists are sorted when SortLiveTransactions is set.
func (f *DataFetcher) FetchTransactions(ctx context.Context, accountID string) ([]core.Transaction, error) {
	src, consent, mode, err := f.source()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	txns, err := src.FetchTransactions(ctx, consent, accountID)
	f.metrics.ObserveCall(log.OpFetchTransactions, mode.String(), outcome(err), time.Since(start))
	if err != nil {
		f.logFailure(ctx, log.OpFetchTransactions, accountID, err)
		return nil, err
	}
	if mode == ModeMock || f.opts.SortLiveTransactions {
		core.SortByDateDesc(txns)
	}

	f.logger.DebugContext(ctx, "Transactions fetched",
		log.FieldOperation, log.OpFetchTransactions,
		log.FieldMode, mode.String(),
		log.FieldAccountID, accountID,
		log.FieldCount, len(txns))
	return txns, nil
}

func (f *DataFetcher) logFailure(ctx context.Context, op, accountID string, err error) {
	fields := log.NewFields().WithOperation(op).WithError(err)
	if accountID != "" {
		fields.WithAccount(accountID)
	}
	f.logger.WarnContext(ctx, "AA fetch failed", fields.ToSlice()...)
}
