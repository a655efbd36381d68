// Package mock synthesizes consents, accounts and transactions for demo use
// when no account aggregator is configured.
package mock

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"aadash/internal/core"

	"github.com/shopspring/decimal"
)

// DefaultTransactionCount is the size of a synthesized transaction batch.
const DefaultTransactionCount = 20

const (
	debitProbability = 0.6
	minAmount        = 10
	amountSpread     = 5000
	balanceSpread    = 200000
	historyDays      = 30
)

// consentSeq disambiguates handles issued within the same clock reading.
var consentSeq atomic.Uint64

// Backend serves demo data. It never performs I/O and never fails.
type Backend struct {
	now      func() time.Time
	txnCount int

	mu  sync.Mutex
	rng *rand.Rand
}

type Option func(*Backend)

// WithRand sets the random source used for transaction synthesis.
func WithRand(rng *rand.Rand) Option {
	return func(b *Backend) { b.rng = rng }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// WithTransactionCount sets the batch size; values below one are ignored.
func WithTransactionCount(n int) Option {
	return func(b *Backend) {
		if n > 0 {
			b.txnCount = n
		}
	}
}

func New(opts ...Option) *Backend {
	b := &Backend{
		now:      time.Now,
		txnCount: DefaultTransactionCount,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.rng == nil {
		b.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return b
}

// RequestConsent issues a granted mock consent whose handle embeds userID.
func (b *Backend) RequestConsent(_ context.Context, userID string) (core.Consent, error) {
	now := b.now()
	return core.Consent{
		Handle:    fmt.Sprintf("mock-consent-%s-%d-%d", userID, now.UnixNano(), consentSeq.Add(1)),
		Status:    core.StatusGranted,
		Mock:      true,
		UserID:    userID,
		GrantedAt: now.UTC(),
	}, nil
}

// FetchAccounts returns the three demo accounts stamped with the current time.
func (b *Backend) FetchAccounts(_ context.Context, _ core.Consent) ([]core.Account, error) {
	return Accounts(b.now().UTC()), nil
}

// FetchTransactions synthesizes a batch for accountID, newest first.
func (b *Backend) FetchTransactions(_ context.Context, _ core.Consent, accountID string) ([]core.Transaction, error) {
	return b.Transactions(accountID), nil
}

// Accounts returns a fresh copy of the demo accounts.
func Accounts(lastUpdated time.Time) []core.Account {
	return []core.Account{
		{
			ID:           "sbi-001",
			Bank:         "SBI",
			AccountType:  core.AccountSavings,
			MaskedNumber: "XXXX 4321",
			Balance:      decimal.RequireFromString("142350.75"),
			Currency:     "INR",
			LastUpdated:  lastUpdated,
		},
		{
			ID:           "icici-001",
			Bank:         "ICICI",
			AccountType:  core.AccountSavings,
			MaskedNumber: "XXXX 8765",
			Balance:      decimal.RequireFromString("87620.00"),
			Currency:     "INR",
			LastUpdated:  lastUpdated,
		},
		{
			ID:           "icici-cc-001",
			Bank:         "ICICI",
			AccountType:  core.AccountCreditCard,
			MaskedNumber: "XXXX 3322",
			Balance:      decimal.RequireFromString("-12400.00"),
			Currency:     "INR",
			LastUpdated:  lastUpdated,
		},
	}
}

// Transactions synthesizes the configured number of transactions.
//
// Balance is an independent random figure per row, not a running total.
func (b *Backend) Transactions(accountID string) []core.Transaction {
	now := b.now().UTC()

	b.mu.Lock()
	defer b.mu.Unlock()

	txns := make([]core.Transaction, b.txnCount)
	for i := range txns {
		debit := b.rng.Float64() < debitProbability
		amount := decimal.NewFromFloat(b.rng.Float64()*amountSpread + minAmount).Round(2)
		if debit {
			amount = amount.Neg()
		}
		date := now.AddDate(0, 0, -b.rng.IntN(historyDays))
		category := core.Categories[b.rng.IntN(len(core.Categories))]

		var app *core.UPIApp
		description := fmt.Sprintf("Transaction %d", i+1)
		if category == core.CategoryUPI {
			a := core.UPIApps[b.rng.IntN(len(core.UPIApps))]
			app = &a
			description = fmt.Sprintf("%s payment to merchant", a)
		}
		balance := decimal.NewFromFloat(b.rng.Float64() * balanceSpread).Round(2)

		txns[i] = core.Transaction{
			ID:          fmt.Sprintf("%s-txn-%d", accountID, i),
			AccountID:   accountID,
			Date:        date,
			Description: description,
			Amount:      amount,
			Category:    category,
			UPIApp:      app,
			Balance:     &balance,
		}
	}
	core.SortByDateDesc(txns)
	return txns
}
