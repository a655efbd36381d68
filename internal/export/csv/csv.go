// Package csv writes transaction ledgers as CSV downloads.
package csv

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"aadash/internal/core"
)

// ContentType is the media type served for CSV downloads.
const ContentType = "text/csv; charset=utf-8"

// Header is the first row of every export.
var Header = []string{"Date", "Description", "Category", "UPI App", "Amount (INR)"}

// ist renders dates the way Indian bank statements show them.
var ist = time.FixedZone("IST", 5*60*60+30*60)

// Write encodes txns as CSV. Dates are dd/mm/yyyy in Indian Standard Time
// and amounts carry two decimals.
func Write(w io.Writer, txns []core.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, t := range txns {
		if err := cw.Write(Row(t)); err != nil {
			return fmt.Errorf("write transaction %s: %w", t.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Row returns the CSV fields of t in Header order.
func Row(t core.Transaction) []string {
	return []string{
		FormatDate(t.Date),
		Cell(t.Description),
		string(t.Category),
		t.UPIAppName(),
		t.Amount.StringFixed(2),
	}
}

// Cell makes free text safe to open in a spreadsheet. Text starting with a
// formula trigger gets a leading apostrophe so it is shown, not evaluated.
func Cell(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + s
	}
	return s
}

// FormatDate renders d as dd/mm/yyyy in Indian Standard Time.
func FormatDate(d time.Time) string {
	return d.In(ist).Format("02/01/2006")
}

// FileName returns the download name for an account's export, or for all
// accounts when bank is empty.
func FileName(bank string) string {
	bank = strings.TrimSpace(bank)
	if bank == "" {
		bank = "all"
	}
	return "transactions-" + sanitize(bank) + ".csv"
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
