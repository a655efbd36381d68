package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	lowBalanceThreshold = decimal.NewFromInt(10000)
	highDueThreshold    = decimal.NewFromInt(-10000)
)

type AlertLevel string

const (
	AlertWarning AlertLevel = "warning"
	AlertError   AlertLevel = "error"
)

// Summary aggregates balances across every account visible under a consent.
type Summary struct {
	TotalAssets decimal.Decimal `json:"totalAssets"`
	TotalDue    decimal.Decimal `json:"totalDue"`
	NetWorth    decimal.Decimal `json:"netWorth"`
}

// Alert flags an account that needs the user's attention.
type Alert struct {
	ID        string     `json:"id"`
	Level     AlertLevel `json:"type"`
	AccountID string     `json:"accountId"`
	Message   string     `json:"message"`
}

// Summarize sums positive balances as assets and negative ones as dues.
// TotalDue is reported as a positive amount.
func Summarize(accounts []Account) Summary {
	assets := decimal.Zero
	due := decimal.Zero
	for _, a := range accounts {
		switch {
		case a.Balance.IsPositive():
			assets = assets.Add(a.Balance)
		case a.Balance.IsNegative():
			due = due.Add(a.Balance)
		}
	}
	return Summary{
		TotalAssets: assets,
		TotalDue:    due.Abs(),
		NetWorth:    assets.Add(due),
	}
}

// BuildAlerts returns a low-balance warning for savings accounts under 10000
// and a high-due error for credit cards owing more than 10000.
func BuildAlerts(accounts []Account) []Alert {
	var alerts []Alert
	for _, a := range accounts {
		if a.AccountType == AccountSavings && a.Balance.LessThan(lowBalanceThreshold) {
			alerts = append(alerts, Alert{
				ID:        "low-balance-" + a.ID,
				Level:     AlertWarning,
				AccountID: a.ID,
				Message:   fmt.Sprintf("Low balance in %s %s: %s", a.Bank, a.MaskedNumber, a.Balance.StringFixed(2)),
			})
		}
		if a.AccountType == AccountCreditCard && a.Balance.LessThan(highDueThreshold) {
			alerts = append(alerts, Alert{
				ID:        "high-due-" + a.ID,
				Level:     AlertError,
				AccountID: a.ID,
				Message:   fmt.Sprintf("High credit card due on %s %s: %s", a.Bank, a.MaskedNumber, a.Balance.Abs().StringFixed(2)),
			})
		}
	}
	return alerts
}

// FilterDismissed drops alerts whose id is in dismissed.
func FilterDismissed(alerts []Alert, dismissed []string) []Alert {
	if len(dismissed) == 0 {
		return alerts
	}
	skip := make(map[string]struct{}, len(dismissed))
	for _, id := range dismissed {
		skip[id] = struct{}{}
	}
	out := make([]Alert, 0, len(alerts))
	for _, a := range alerts {
		if _, ok := skip[a.ID]; ok {
			continue
		}
		out = append(out, a)
	}
	return out
}
