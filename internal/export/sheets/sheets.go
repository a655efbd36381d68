// Package sheets appends transaction ledgers to a Google spreadsheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"aadash/internal/core"
	csvexport "aadash/internal/export/csv"
	"aadash/internal/log"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Config locates the target sheet and its credentials. A service account is
// used unless OAuthTokenFile is set.
type Config struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string

	OAuthClientJSON string
	OAuthClientFile string
	OAuthTokenFile  string
}

// Exporter writes one row per transaction:
// date, description, category, UPI app, amount, account id.
type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger
}

// New creates an exporter authenticated with the configured service account
// or OAuth token.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Exporter, error) {
	if cfg.UsesOAuth() {
		ts, err := oauthTokenSource(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewWithOptions(ctx, cfg, logger, goption.WithTokenSource(ts))
	}

	credentialsJSON, err := credentials(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithOptions(ctx, cfg, logger,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
}

// NewWithOptions creates an exporter with explicit client options, e.g. a
// custom endpoint.
func NewWithOptions(ctx context.Context, cfg Config, logger *log.Logger, opts ...goption.ClientOption) (*Exporter, error) {
	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	sheetName := strings.TrimSpace(cfg.SheetName)
	if sheetName == "" {
		sheetName = "Transactions"
	}
	if logger == nil {
		logger = log.Discard()
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Exporter{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        logger.WithComponent(log.ComponentExport),
	}, nil
}

func credentials(cfg Config) ([]byte, error) {
	switch {
	case strings.TrimSpace(cfg.ServiceAccountJSON) != "":
		return []byte(cfg.ServiceAccountJSON), nil
	case strings.TrimSpace(cfg.ServiceAccountFile) != "":
		data, err := os.ReadFile(cfg.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
}

// Rows converts txns to sheet rows.
func Rows(accountID string, txns []core.Transaction) [][]interface{} {
	rows := make([][]interface{}, 0, len(txns))
	for _, t := range txns {
		amount, _ := t.Amount.Round(2).Float64()
		rows = append(rows, []interface{}{
			csvexport.FormatDate(t.Date),
			csvexport.Cell(t.Description),
			string(t.Category),
			t.UPIAppName(),
			amount,
			accountID,
		})
	}
	return rows
}

// Export appends txns of account to the sheet and returns the updated range.
// An empty list is a no-op.
func (e *Exporter) Export(ctx context.Context, account string, txns []core.Transaction) (string, error) {
	if len(txns) == 0 {
		return "", nil
	}

	vr := &gsheet.ValueRange{Values: Rows(account, txns)}
	rng := fmt.Sprintf("%s!A:F", e.sheetName)
	resp, err := e.svc.Spreadsheets.Values.Append(e.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("append transactions: %w", err)
	}

	updated := ""
	if resp.Updates != nil {
		updated = resp.Updates.UpdatedRange
	}
	e.logger.InfoContext(ctx, "Transactions exported to Google Sheets",
		log.FieldOperation, log.OpExport,
		log.FieldAccountID, account,
		log.FieldCount, len(txns),
		"range", updated)

	return updated, nil
}
