package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"aadash/internal/core"
)

func newTestRepository(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "audit", "aadash.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestNewSQLiteRepositoryRejectsEmptyPath(t *testing.T) {
	if _, err := NewSQLiteRepository(""); err == nil {
		t.Fatal("expected an error for an empty path")
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aadash.db")
	for i := 0; i < 2; i++ {
		repo, err := NewSQLiteRepository(path)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		if err := repo.Ping(context.Background()); err != nil {
			t.Fatalf("ping: %v", err)
		}
		repo.Close()
	}
}

func TestRecordAndListConsents(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	consents := []core.Consent{
		{Handle: "mock-consent-alice-1", Status: core.StatusGranted, Mock: true, UserID: "alice", GrantedAt: base},
		{Handle: "real-consent-bob", Status: "PENDING", UserID: "bob", GrantedAt: base.Add(time.Minute)},
		{Handle: "mock-consent-alice-2", Status: core.StatusGranted, Mock: true, UserID: "alice", GrantedAt: base.Add(2 * time.Minute)},
	}
	for _, c := range consents {
		id, err := repo.RecordConsent(ctx, c)
		if err != nil {
			t.Fatalf("RecordConsent(%s): %v", c.Handle, err)
		}
		if id <= 0 {
			t.Fatalf("RecordConsent(%s) id = %d", c.Handle, id)
		}
	}

	alice, err := repo.ListConsents(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("ListConsents: %v", err)
	}
	if len(alice) != 2 {
		t.Fatalf("got %d records for alice", len(alice))
	}
	if alice[0].Consent.Handle != "mock-consent-alice-2" {
		t.Errorf("records not newest first: %s", alice[0].Consent.Handle)
	}
	if !alice[0].Consent.Mock || alice[0].Consent.Status != core.StatusGranted {
		t.Errorf("unexpected record %+v", alice[0].Consent)
	}
	if !alice[0].Consent.GrantedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("granted_at = %v", alice[0].Consent.GrantedAt)
	}

	all, err := repo.ListConsents(ctx, "", 2)
	if err != nil {
		t.Fatalf("ListConsents: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("limit ignored: got %d records", len(all))
	}
	if all[1].Consent.Handle != "real-consent-bob" || all[1].Consent.Mock {
		t.Errorf("unexpected second record %+v", all[1].Consent)
	}
	if all[1].Consent.Status != "PENDING" {
		t.Errorf("status = %q", all[1].Consent.Status)
	}
}

func TestRecordConsentValidation(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	if _, err := repo.RecordConsent(ctx, core.Consent{UserID: "x"}); err == nil {
		t.Error("expected an error for an empty handle")
	}

	c := core.Consent{Handle: "h-1", Status: core.StatusGranted, UserID: "x"}
	if _, err := repo.RecordConsent(ctx, c); err != nil {
		t.Fatalf("RecordConsent: %v", err)
	}
	if _, err := repo.RecordConsent(ctx, c); !errors.Is(err, ErrDuplicateConsent) {
		t.Fatalf("expected ErrDuplicateConsent, got %v", err)
	}

	records, err := repo.ListConsents(ctx, "x", 10)
	if err != nil {
		t.Fatalf("ListConsents: %v", err)
	}
	if len(records) != 1 || records[0].Consent.GrantedAt.IsZero() {
		t.Fatalf("unexpected records %+v", records)
	}
}

func TestListConsentsUnknownUser(t *testing.T) {
	repo := newTestRepository(t)
	records, err := repo.ListConsents(context.Background(), "nobody", 5)
	if err != nil {
		t.Fatalf("ListConsents: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestExportLifecycle(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return base }

	for _, h := range []string{"h-done", "h-failing", "h-skipped"} {
		if _, err := repo.RecordConsent(ctx, core.Consent{Handle: h, Status: core.StatusGranted, UserID: "u", GrantedAt: base}); err != nil {
			t.Fatalf("RecordConsent(%s): %v", h, err)
		}
	}

	pending, err := repo.GetPendingExports(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingExports: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending exports, got %d", len(pending))
	}
	if pending[0].Export.Status != ExportPending || pending[0].Export.ExportedAt != nil {
		t.Errorf("fresh record has export state %+v", pending[0].Export)
	}

	if err := repo.MarkExported(ctx, "h-done", 12); err != nil {
		t.Fatalf("MarkExported: %v", err)
	}
	if err := repo.MarkExportSkipped(ctx, "h-skipped"); err != nil {
		t.Fatalf("MarkExportSkipped: %v", err)
	}

	done, err := repo.GetConsent(ctx, "h-done")
	if err != nil {
		t.Fatalf("GetConsent: %v", err)
	}
	if done.Export.Status != ExportDone || done.Export.Rows != 12 || done.Export.Attempts != 1 {
		t.Errorf("unexpected export state %+v", done.Export)
	}
	if done.Export.ExportedAt == nil || !done.Export.ExportedAt.Equal(base) {
		t.Errorf("exported_at = %v", done.Export.ExportedAt)
	}

	// Failed exports stay pending until they run out of attempts.
	for i := 1; i <= MaxExportAttempts; i++ {
		if err := repo.MarkExportError(ctx, "h-failing"); err != nil {
			t.Fatalf("MarkExportError: %v", err)
		}
		pending, err := repo.GetPendingExports(ctx, 10)
		if err != nil {
			t.Fatalf("GetPendingExports: %v", err)
		}
		want := 1
		if i == MaxExportAttempts {
			want = 0
		}
		if len(pending) != want {
			t.Fatalf("after %d failures: %d pending exports, want %d", i, len(pending), want)
		}
	}
}

func TestExportUnknownConsent(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	if _, err := repo.GetConsent(ctx, "missing"); !errors.Is(err, ErrConsentNotFound) {
		t.Errorf("GetConsent: expected ErrConsentNotFound, got %v", err)
	}
	if err := repo.MarkExported(ctx, "missing", 1); !errors.Is(err, ErrConsentNotFound) {
		t.Errorf("MarkExported: expected ErrConsentNotFound, got %v", err)
	}
	if err := repo.MarkExportError(ctx, "missing"); !errors.Is(err, ErrConsentNotFound) {
		t.Errorf("MarkExportError: expected ErrConsentNotFound, got %v", err)
	}
}
