package csv

import (
	"bytes"
	stdcsv "encoding/csv"
	"strings"
	"testing"
	"time"

	"aadash/internal/core"

	"github.com/shopspring/decimal"
)

func upi(a core.UPIApp) *core.UPIApp { return &a }

var sample = []core.Transaction{
	{
		ID:          "txn-1",
		Date:        time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
		Description: "Grocery Store",
		Category:    core.CategoryFood,
		Amount:      decimal.RequireFromString("-450.5"),
	},
	{
		ID:          "txn-2",
		Date:        time.Date(2024, 1, 14, 8, 0, 0, 0, time.UTC),
		Description: "GPay payment to merchant",
		Category:    core.CategoryUPI,
		UPIApp:      upi(core.UPIGPay),
		Amount:      decimal.NewFromInt(-200),
	},
	{
		ID:          "txn-3",
		Date:        time.Date(2024, 1, 13, 16, 0, 0, 0, time.UTC),
		Description: "Salary credit",
		Category:    core.CategoryTransfer,
		Amount:      decimal.NewFromInt(50000),
	},
	{
		ID:          "txn-4",
		Date:        time.Date(2024, 1, 12, 12, 0, 0, 0, time.UTC),
		Description: `Description with "quotes", and a comma`,
		Category:    core.CategoryOther,
		Amount:      decimal.NewFromInt(-100),
	},
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sample); err != nil {
		t.Fatalf("Write: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if lines[0] != "Date,Description,Category,UPI App,Amount (INR)" {
		t.Fatalf("header = %q", lines[0])
	}
	if len(lines) != len(sample)+1 {
		t.Fatalf("got %d lines", len(lines))
	}

	tests := []struct {
		line int
		want string
	}{
		{1, "15/01/2024,Grocery Store,Food,,-450.50"},
		{2, "14/01/2024,GPay payment to merchant,UPI,GPay,-200.00"},
		{3, "13/01/2024,Salary credit,Transfer,,50000.00"},
		{4, `12/01/2024,"Description with ""quotes"", and a comma",Other,,-100.00`},
	}
	for _, tt := range tests {
		if lines[tt.line] != tt.want {
			t.Errorf("line %d = %q, want %q", tt.line, lines[tt.line], tt.want)
		}
	}

	records, err := stdcsv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if records[4][1] != sample[3].Description {
		t.Errorf("description did not survive a round trip: %q", records[4][1])
	}
}

func TestWriteEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if buf.String() != "Date,Description,Category,UPI App,Amount (INR)\n" {
		t.Fatalf("got %q", buf.String())
	}
}

func TestFormatDateUsesIST(t *testing.T) {
	// 20:00 UTC is already the next day in India.
	d := time.Date(2024, 3, 31, 20, 0, 0, 0, time.UTC)
	if got := FormatDate(d); got != "01/04/2024" {
		t.Fatalf("FormatDate = %q", got)
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		bank string
		want string
	}{
		{"SBI", "transactions-SBI.csv"},
		{"", "transactions-all.csv"},
		{"  ", "transactions-all.csv"},
		{"HDFC Bank/NRE", "transactions-HDFC_Bank_NRE.csv"},
	}
	for _, tt := range tests {
		if got := FileName(tt.bank); got != tt.want {
			t.Errorf("FileName(%q) = %q, want %q", tt.bank, got, tt.want)
		}
	}
}

func TestCell(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Grocery Store", "Grocery Store"},
		{"", ""},
		{"=SUM(A1:A9)", "'=SUM(A1:A9)"},
		{"+91 transfer", "'+91 transfer"},
		{"-refund", "'-refund"},
		{"@cmd", "'@cmd"},
		{"\tindented", "'\tindented"},
		{"Paid = 100", "Paid = 100"},
	}
	for _, tt := range tests {
		if got := Cell(tt.in); got != tt.want {
			t.Errorf("Cell(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriteEscapesFormulaDescriptions(t *testing.T) {
	txns := []core.Transaction{{
		ID:          "txn-9",
		Date:        time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
		Description: "=1+1",
		Category:    core.CategoryOther,
		Amount:      decimal.NewFromInt(-5),
	}}
	var buf bytes.Buffer
	if err := Write(&buf, txns); err != nil {
		t.Fatalf("Write: %v", err)
	}
	records, err := stdcsv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if records[1][1] != "'=1+1" {
		t.Fatalf("description = %q", records[1][1])
	}
}
