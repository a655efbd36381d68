package aa

import (
	"context"

	"aadash/internal/core"
)

// Ports implemented by the mock and live backends.
type (
	ConsentIssuer interface {
		RequestConsent(ctx context.Context, userID string) (core.Consent, error)
	}

	AccountSource interface {
		// FetchAccounts lists the accounts visible under consent.
		FetchAccounts(ctx context.Context, consent core.Consent) ([]core.Account, error)
	}

	TransactionSource interface {
		// FetchTransactions lists the transactions of one account.
		FetchTransactions(ctx context.Context, consent core.Consent, accountID string) ([]core.Transaction, error)
	}

	Backend interface {
		ConsentIssuer
		AccountSource
		TransactionSource
	}

	// ConsentObserver is told about every consent after it became active.
	ConsentObserver interface {
		ConsentGranted(ctx context.Context, consent core.Consent) error
	}
)

// ConsentObserverFunc adapts a function to ConsentObserver.
type ConsentObserverFunc func(ctx context.Context, consent core.Consent) error

func (f ConsentObserverFunc) ConsentGranted(ctx context.Context, consent core.Consent) error {
	return f(ctx, consent)
}
