package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func demoAccounts() []Account {
	return []Account{
		{ID: "sbi-001", Bank: "SBI", AccountType: AccountSavings, MaskedNumber: "XXXX 4321", Balance: decimal.RequireFromString("142350.75")},
		{ID: "icici-001", Bank: "ICICI", AccountType: AccountSavings, MaskedNumber: "XXXX 8765", Balance: decimal.RequireFromString("87620")},
		{ID: "icici-cc-001", Bank: "ICICI", AccountType: AccountCreditCard, MaskedNumber: "XXXX 3322", Balance: decimal.RequireFromString("-12400")},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(demoAccounts())
	if !s.TotalAssets.Equal(decimal.RequireFromString("229970.75")) {
		t.Fatalf("assets = %s", s.TotalAssets)
	}
	if !s.TotalDue.Equal(decimal.RequireFromString("12400")) {
		t.Fatalf("due = %s", s.TotalDue)
	}
	if !s.NetWorth.Equal(decimal.RequireFromString("217570.75")) {
		t.Fatalf("net worth = %s", s.NetWorth)
	}

	empty := Summarize(nil)
	if !empty.TotalAssets.IsZero() || !empty.TotalDue.IsZero() || !empty.NetWorth.IsZero() {
		t.Fatalf("expected zero summary, got %+v", empty)
	}
}

func TestBuildAlerts(t *testing.T) {
	accounts := demoAccounts()
	accounts = append(accounts, Account{
		ID: "hdfc-001", Bank: "HDFC", AccountType: AccountSavings, MaskedNumber: "XXXX 1111",
		Balance: decimal.RequireFromString("9999.99"),
	})
	alerts := BuildAlerts(accounts)
	if len(alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %d: %+v", len(alerts), alerts)
	}
	if alerts[0].ID != "high-due-icici-cc-001" || alerts[0].Level != AlertError {
		t.Fatalf("unexpected first alert %+v", alerts[0])
	}
	if alerts[1].ID != "low-balance-hdfc-001" || alerts[1].Level != AlertWarning {
		t.Fatalf("unexpected second alert %+v", alerts[1])
	}

	// Exactly at the thresholds nothing fires.
	edge := []Account{
		{ID: "s", AccountType: AccountSavings, Balance: decimal.NewFromInt(10000)},
		{ID: "c", AccountType: AccountCreditCard, Balance: decimal.NewFromInt(-10000)},
	}
	if got := BuildAlerts(edge); len(got) != 0 {
		t.Fatalf("expected no alerts at thresholds, got %+v", got)
	}
}

func TestFilterDismissed(t *testing.T) {
	alerts := []Alert{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	got := FilterDismissed(alerts, []string{"b"})
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Fatalf("unexpected %+v", got)
	}
	if got := FilterDismissed(alerts, nil); len(got) != 3 {
		t.Fatalf("nil dismissed should keep everything")
	}
}
