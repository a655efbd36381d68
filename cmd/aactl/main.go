package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"aadash/internal/backend"
	"aadash/internal/cli"
	"aadash/internal/config"
	"aadash/internal/log"
)

// openBackend builds the consent manager and data fetcher for one command run.
type openBackend func(ctx context.Context) (*backend.BackendResult, error)

type options struct {
	userID   string
	account  string
	category string
	search   string
	csvPath  string
	limit    int
	timeout  time.Duration
}

func newRootCmd(open openBackend) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "aactl",
		Short:         "Account aggregator command-line client",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(&opts.userID, "user", "u", "demo-user", "User the consent is requested for")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", time.Minute, "Overall command timeout")

	consentCmd := &cobra.Command{
		Use:   "consent",
		Short: "Request a consent and print it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, open, opts, func(ctx context.Context, s *session) error {
				return printConsent(cmd.OutOrStdout(), s.consent)
			})
		},
	}

	accountsCmd := &cobra.Command{
		Use:   "accounts",
		Short: "List linked accounts with the balance summary and alerts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, open, opts, func(ctx context.Context, s *session) error {
				accounts, err := s.result.Fetcher.FetchAccounts(ctx)
				if err != nil {
					return err
				}
				return printAccounts(cmd.OutOrStdout(), accounts)
			})
		},
	}

	transactionsCmd := &cobra.Command{
		Use:   "transactions",
		Short: "List the transactions of one account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, open, opts, func(ctx context.Context, s *session) error {
				return runTransactions(ctx, cmd.OutOrStdout(), s, opts)
			})
		},
	}
	transactionsCmd.Flags().StringVarP(&opts.account, "account", "a", "", "Account id (required)")
	transactionsCmd.Flags().StringVar(&opts.category, "category", "", "Only show this category")
	transactionsCmd.Flags().StringVarP(&opts.search, "search", "s", "", "Case-insensitive description filter")
	transactionsCmd.Flags().StringVar(&opts.csvPath, "csv", "", "Write the filtered list to this CSV file")
	_ = transactionsCmd.MarkFlagRequired("account")

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show consents recorded in the audit log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			result, err := open(ctx)
			if err != nil {
				return err
			}
			defer closeResult(result)

			if result.Audit == nil {
				return fmt.Errorf("consent audit log is not configured (set SQLITE_DB_PATH)")
			}
			records, err := result.Audit.ListConsents(ctx, opts.userID, opts.limit)
			if err != nil {
				return err
			}
			return printHistory(cmd.OutOrStdout(), records)
		},
	}
	historyCmd.Flags().IntVar(&opts.limit, "limit", 20, "Maximum number of records")

	root.AddCommand(consentCmd, accountsCmd, transactionsCmd, historyCmd, newSheetsLoginCmd())
	return root
}

// openFromEnv loads the same configuration as the server.
func openFromEnv(ctx context.Context) (*backend.BackendResult, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cli.SetupLogger(cfg).WithComponent(log.ComponentCLI)

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	return backend.NewFactory(logger, nil).CreateBackend(ctx, backendConfig)
}

func main() {
	cli.LoadEnvFile()
	if err := newRootCmd(openFromEnv).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
