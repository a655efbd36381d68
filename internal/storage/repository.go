package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"aadash/internal/core"
	"aadash/internal/log"

	_ "modernc.org/sqlite"
)

// timeLayout has a fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DefaultListLimit caps ListConsents when the caller passes no limit.
const DefaultListLimit = 50

// MaxExportAttempts bounds how often a failed export is retried.
const MaxExportAttempts = 3

const (
	ExportPending ExportStatus = "pending"
	ExportDone    ExportStatus = "exported"
	ExportError   ExportStatus = "error"
	ExportSkipped ExportStatus = "skipped"
)

var (
	// ErrDuplicateConsent is returned when a handle was already recorded.
	ErrDuplicateConsent = errors.New("consent already recorded")
	ErrConsentNotFound  = errors.New("consent not found")
)

// ExportStatus tracks whether the transactions behind a consent reached the
// spreadsheet.
type ExportStatus string

type ExportState struct {
	Status     ExportStatus `json:"status"`
	Attempts   int          `json:"attempts"`
	Rows       int          `json:"rows"`
	ExportedAt *time.Time   `json:"exportedAt,omitempty"`
}

// ConsentRecord is one row of the consent audit log.
type ConsentRecord struct {
	ID         int64
	Consent    core.Consent
	RecordedAt time.Time
	Export     ExportState
}

// SQLiteRepository keeps an audit log of granted consents. It never stores
// account or transaction data.
type SQLiteRepository struct {
	db     *sql.DB
	logger *log.Logger
	now    func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dbPath == "" {
		return nil, errors.New("sqlite database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:     db,
		logger: log.FromContext(context.Background()).WithComponent(log.ComponentStorage),
		now:    time.Now,
	}, nil
}

// WithLogger sets the logger used for audit messages.
func (r *SQLiteRepository) WithLogger(logger *log.Logger) *SQLiteRepository {
	if logger != nil {
		r.logger = logger.WithComponent(log.ComponentStorage)
	}
	return r
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks that the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// RecordConsent appends c to the audit log.
func (r *SQLiteRepository) RecordConsent(ctx context.Context, c core.Consent) (int64, error) {
	if c.Handle == "" {
		return 0, errors.New("consent handle is empty")
	}
	grantedAt := c.GrantedAt
	if grantedAt.IsZero() {
		grantedAt = r.now()
	}

	var exists int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM consents WHERE handle = ?`, c.Handle).Scan(&exists)
	switch {
	case err == nil:
		return 0, fmt.Errorf("%w: %s", ErrDuplicateConsent, log.Truncate(c.Handle, 24))
	case !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("check consent: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO consents (handle, user_id, status, mock, granted_at, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.Handle,
		c.UserID,
		string(c.Status),
		boolToInt(c.Mock),
		grantedAt.UTC().Format(timeLayout),
		r.now().UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("insert consent: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read consent id: %w", err)
	}

	r.logger.InfoContext(ctx, "Consent saved to SQLite",
		append([]any{"id", id},
			log.NewFields().
				WithOperation(log.OpRecord).
				WithConsent(c.Handle, c.Status.String(), c.Mock).
				ToSlice()...)...)

	return id, nil
}

// ListConsents returns the most recent consents of userID, newest first.
// An empty userID lists every user.
func (r *SQLiteRepository) ListConsents(ctx context.Context, userID string, limit int) ([]ConsentRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT ` + consentColumns + ` FROM consents`
	args := []any{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY granted_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	return r.queryConsents(ctx, query, args...)
}

// GetConsent returns the audit record of handle.
func (r *SQLiteRepository) GetConsent(ctx context.Context, handle string) (ConsentRecord, error) {
	rec, err := scanConsent(r.db.QueryRowContext(ctx,
		`SELECT `+consentColumns+` FROM consents WHERE handle = ?`, handle))
	if errors.Is(err, sql.ErrNoRows) {
		return ConsentRecord{}, fmt.Errorf("%w: %s", ErrConsentNotFound, log.Truncate(handle, 24))
	}
	if err != nil {
		return ConsentRecord{}, fmt.Errorf("get consent: %w", err)
	}
	return rec, nil
}

// GetPendingExports returns the consents still waiting for an export, oldest
// first. Failed exports are retried until they reach MaxExportAttempts.
func (r *SQLiteRepository) GetPendingExports(ctx context.Context, limit int) ([]ConsentRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return r.queryConsents(ctx,
		`SELECT `+consentColumns+` FROM consents
		 WHERE export_status = ? OR (export_status = ? AND export_attempts < ?)
		 ORDER BY recorded_at ASC, id ASC LIMIT ?`,
		string(ExportPending), string(ExportError), MaxExportAttempts, limit)
}

// MarkExported records that rows transactions of handle reached the sheet.
func (r *SQLiteRepository) MarkExported(ctx context.Context, handle string, rows int) error {
	if err := r.updateExport(ctx,
		`UPDATE consents SET export_status = ?, exported_rows = ?, exported_at = ?, export_attempts = export_attempts + 1
		 WHERE handle = ?`,
		string(ExportDone), rows, r.now().UTC().Format(timeLayout), handle); err != nil {
		return fmt.Errorf("mark consent exported: %w", err)
	}

	r.logger.InfoContext(ctx, "Consent marked as exported",
		log.FieldConsentHandle, log.Truncate(handle, 24),
		log.FieldCount, rows)
	return nil
}

// MarkExportError counts a failed export attempt of handle.
func (r *SQLiteRepository) MarkExportError(ctx context.Context, handle string) error {
	if err := r.updateExport(ctx,
		`UPDATE consents SET export_status = ?, export_attempts = export_attempts + 1 WHERE handle = ?`,
		string(ExportError), handle); err != nil {
		return fmt.Errorf("mark consent export error: %w", err)
	}

	r.logger.WarnContext(ctx, "Consent marked with export error",
		log.FieldConsentHandle, log.Truncate(handle, 24))
	return nil
}

// MarkExportSkipped records that handle will never be exported, e.g. because
// the consent was not granted.
func (r *SQLiteRepository) MarkExportSkipped(ctx context.Context, handle string) error {
	if err := r.updateExport(ctx,
		`UPDATE consents SET export_status = ? WHERE handle = ?`,
		string(ExportSkipped), handle); err != nil {
		return fmt.Errorf("mark consent export skipped: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) updateExport(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConsentNotFound
	}
	return nil
}

func (r *SQLiteRepository) queryConsents(ctx context.Context, query string, args ...any) ([]ConsentRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	defer rows.Close()

	var records []ConsentRecord
	for rows.Next() {
		rec, err := scanConsent(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consents: %w", err)
	}

	return records, nil
}

const consentColumns = `id, handle, user_id, status, mock, granted_at, recorded_at,
	export_status, export_attempts, exported_rows, exported_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConsent(row rowScanner) (ConsentRecord, error) {
	var (
		rec                   ConsentRecord
		status, exportStatus  string
		mock                  int64
		grantedAt, recordedAt string
		exportedAt            sql.NullString
	)
	err := row.Scan(&rec.ID, &rec.Consent.Handle, &rec.Consent.UserID, &status, &mock, &grantedAt, &recordedAt,
		&exportStatus, &rec.Export.Attempts, &rec.Export.Rows, &exportedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, err
	}
	if err != nil {
		return rec, fmt.Errorf("scan consent: %w", err)
	}

	rec.Consent.Status = core.ConsentStatus(status)
	rec.Consent.Mock = mock != 0
	rec.Export.Status = ExportStatus(exportStatus)
	if rec.Consent.GrantedAt, err = time.Parse(timeLayout, grantedAt); err != nil {
		return rec, fmt.Errorf("parse granted_at: %w", err)
	}
	if rec.RecordedAt, err = time.Parse(timeLayout, recordedAt); err != nil {
		return rec, fmt.Errorf("parse recorded_at: %w", err)
	}
	if exportedAt.Valid {
		t, err := time.Parse(timeLayout, exportedAt.String)
		if err != nil {
			return rec, fmt.Errorf("parse exported_at: %w", err)
		}
		rec.Export.ExportedAt = &t
	}
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
