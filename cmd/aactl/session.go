package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"aadash/internal/backend"
	"aadash/internal/core"
	csvexport "aadash/internal/export/csv"
)

// session is one command run: a backend and the consent requested for it.
// Consents live only as long as the process.
type session struct {
	result  *backend.BackendResult
	consent core.Consent
}

func withSession(cmd *cobra.Command, open openBackend, opts *options, run func(ctx context.Context, s *session) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	result, err := open(ctx)
	if err != nil {
		return err
	}
	defer closeResult(result)

	consent, err := result.Manager.RequestConsent(ctx, opts.userID)
	if err != nil {
		return err
	}
	return run(ctx, &session{result: result, consent: consent})
}

func closeResult(result *backend.BackendResult) {
	if result.Cleanup != nil {
		if err := result.Cleanup(); err != nil {
			fmt.Fprintln(os.Stderr, "cleanup:", err)
		}
	}
}

func runTransactions(ctx context.Context, out io.Writer, s *session, opts *options) error {
	filter := core.Filter{Category: opts.category, Search: opts.search}
	if opts.category != "" && opts.category != core.CategoryAll {
		c, ok := core.ParseCategory(opts.category)
		if !ok {
			return fmt.Errorf("unknown category %q", opts.category)
		}
		filter.Category = string(c)
	}

	txns, err := s.result.Fetcher.FetchTransactions(ctx, opts.account)
	if err != nil {
		return err
	}
	txns = core.FilterTransactions(txns, filter)

	if opts.csvPath == "" {
		return printTransactions(out, txns)
	}

	f, err := os.Create(opts.csvPath)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	if err := csvexport.Write(f, txns); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close csv file: %w", err)
	}
	fmt.Fprintf(out, "Wrote %d transactions to %s\n", len(txns), opts.csvPath)
	return nil
}
