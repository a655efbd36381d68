// Package worker exports the transactions behind newly granted consents to a
// spreadsheet, driven by consent.granted events and a periodic retry sweep.
package worker

import (
	"context"
	"errors"
	"fmt"

	"aadash/internal/aa"
	"aadash/internal/amqp"
	"aadash/internal/core"
	"aadash/internal/log"
	"aadash/internal/storage"
)

// startupBatchFactor widens the first sweep after a restart.
const startupBatchFactor = 5

var errNoLiveBackend = errors.New("live consent but no live AA backend configured")

type (
	// ExportStore tracks the export state of every recorded consent.
	ExportStore interface {
		GetConsent(ctx context.Context, handle string) (storage.ConsentRecord, error)
		GetPendingExports(ctx context.Context, limit int) ([]storage.ConsentRecord, error)
		MarkExported(ctx context.Context, handle string, rows int) error
		MarkExportError(ctx context.Context, handle string) error
		MarkExportSkipped(ctx context.Context, handle string) error
	}

	// TransactionExporter appends the transactions of one account somewhere
	// outside the service.
	TransactionExporter interface {
		Export(ctx context.Context, accountID string, txns []core.Transaction) (string, error)
	}
)

// ExportWorker fetches every account and transaction a consent grants access
// to and hands them to the exporter. Mock consents are always served by the
// demo backend.
type ExportWorker struct {
	store     ExportStore
	demo      aa.Backend
	live      aa.Backend
	exporter  TransactionExporter
	batchSize int
	logger    *log.Logger
}

func NewExportWorker(store ExportStore, demo, live aa.Backend, exporter TransactionExporter, batchSize int, logger *log.Logger) *ExportWorker {
	if logger == nil {
		logger = log.Discard()
	}
	if batchSize < 1 {
		batchSize = 1
	}
	return &ExportWorker{
		store:     store,
		demo:      demo,
		live:      live,
		exporter:  exporter,
		batchSize: batchSize,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// HandleConsentGranted processes a single consent event from AMQP. Export
// failures are recorded and left to the retry sweep, so only a failing store
// makes the message go back to the queue.
func (w *ExportWorker) HandleConsentGranted(ctx context.Context, msg *amqp.ConsentGrantedMessage) error {
	rec, err := w.store.GetConsent(ctx, msg.Handle)
	if errors.Is(err, storage.ErrConsentNotFound) {
		// Published by a server that does not share this audit log
		w.logger.WarnContext(ctx, "Consent not found in audit log, dropping event",
			log.FieldConsentHandle, log.Truncate(msg.Handle, 24))
		return nil
	}
	if err != nil {
		return fmt.Errorf("get consent from storage: %w", err)
	}

	switch rec.Export.Status {
	case storage.ExportDone, storage.ExportSkipped:
		w.logger.InfoContext(ctx, "Consent already processed, ignoring event",
			log.FieldConsentHandle, log.Truncate(msg.Handle, 24),
			"export_status", string(rec.Export.Status))
		return nil
	}

	_, err = w.process(ctx, rec)
	return err
}

// ProcessPendingExports exports consents whose event was lost or whose last
// export failed. This is a backup mechanism in case AMQP messages are lost.
func (w *ExportWorker) ProcessPendingExports(ctx context.Context) error {
	_, _, err := w.sweep(ctx, w.batchSize)
	return err
}

// StartupExportCheck runs a wider sweep to catch up after worker downtime.
func (w *ExportWorker) StartupExportCheck(ctx context.Context) error {
	exported, failed, err := w.sweep(ctx, w.batchSize*startupBatchFactor)
	if err != nil {
		return fmt.Errorf("get pending exports for startup check: %w", err)
	}
	if exported+failed == 0 {
		w.logger.InfoContext(ctx, "No pending exports found on startup")
		return nil
	}

	w.logger.InfoContext(ctx, "Startup export check completed",
		"exported", exported,
		"errors", failed)
	return nil
}

func (w *ExportWorker) sweep(ctx context.Context, limit int) (exported, failed int, err error) {
	pending, err := w.store.GetPendingExports(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending exports: %w", err)
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	w.logger.InfoContext(ctx, "Processing pending exports", log.FieldCount, len(pending))

	for _, rec := range pending {
		if err := ctx.Err(); err != nil {
			return exported, failed, err
		}
		ok, err := w.process(ctx, rec)
		if err != nil {
			w.logger.ErrorContext(ctx, "Failed to process pending export",
				log.FieldConsentHandle, log.Truncate(rec.Consent.Handle, 24),
				log.FieldError, err)
		}
		if ok {
			exported++
		} else {
			failed++
		}
	}
	return exported, failed, nil
}

// process exports rec and records the outcome. It reports whether the export
// succeeded; the error is only non-nil when the outcome could not be stored.
func (w *ExportWorker) process(ctx context.Context, rec storage.ConsentRecord) (bool, error) {
	consent := rec.Consent
	if !consent.IsGranted() {
		w.logger.WarnContext(ctx, "Skipping export of consent that is not granted",
			log.NewFields().WithConsent(consent.Handle, consent.Status.String(), consent.Mock).ToSlice()...)
		return false, w.store.MarkExportSkipped(ctx, consent.Handle)
	}

	rows, err := w.export(ctx, consent)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to export consent data",
			log.NewFields().
				WithOperation(log.OpExport).
				WithConsent(consent.Handle, consent.Status.String(), consent.Mock).
				WithError(err).
				ToSlice()...)
		if markErr := w.store.MarkExportError(ctx, consent.Handle); markErr != nil {
			return false, fmt.Errorf("mark export error: %w", markErr)
		}
		return false, nil
	}

	if err := w.store.MarkExported(ctx, consent.Handle, rows); err != nil {
		return true, fmt.Errorf("mark exported: %w", err)
	}
	return true, nil
}

// export sends the transactions of every account under consent to the
// exporter, newest first, and returns the number of rows written. Everything
// is fetched before the first row is written.
func (w *ExportWorker) export(ctx context.Context, consent core.Consent) (int, error) {
	source := w.demo
	if !consent.Mock {
		source = w.live
	}
	if source == nil {
		return 0, errNoLiveBackend
	}

	accounts, err := source.FetchAccounts(ctx, consent)
	if err != nil {
		return 0, fmt.Errorf("fetch accounts: %w", err)
	}

	ledgers := make([][]core.Transaction, len(accounts))
	for i, account := range accounts {
		txns, err := source.FetchTransactions(ctx, consent, account.ID)
		if err != nil {
			return 0, fmt.Errorf("fetch transactions of %s: %w", account.ID, err)
		}
		core.SortByDateDesc(txns)
		ledgers[i] = txns
	}

	rows := 0
	for i, account := range accounts {
		if _, err := w.exporter.Export(ctx, account.ID, ledgers[i]); err != nil {
			return rows, fmt.Errorf("export transactions of %s: %w", account.ID, err)
		}
		rows += len(ledgers[i])
	}

	w.logger.InfoContext(ctx, "Consent data exported",
		append([]any{"accounts", len(accounts)},
			log.NewFields().
				WithOperation(log.OpExport).
				WithConsent(consent.Handle, consent.Status.String(), consent.Mock).
				ToSlice()...)...)
	return rows, nil
}
