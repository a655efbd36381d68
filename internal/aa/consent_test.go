package aa_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"aadash/internal/aa"
	"aadash/internal/aa/live"
	"aadash/internal/aa/mock"
	"aadash/internal/core"
	"aadash/internal/metrics"
)

// countingServer answers every request with status and body and counts hits.
func countingServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newLiveManager(t *testing.T, baseURL string) *aa.ConsentManager {
	t.Helper()
	client, err := live.NewClient(baseURL, time.Second, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	m, err := aa.NewConsentManager(aa.ModeFor(baseURL), client, nil, nil)
	if err != nil {
		t.Fatalf("NewConsentManager: %v", err)
	}
	return m
}

func newMockManager(t *testing.T) *aa.ConsentManager {
	t.Helper()
	m, err := aa.NewConsentManager(aa.ModeMock, mock.New(), nil, nil)
	if err != nil {
		t.Fatalf("NewConsentManager: %v", err)
	}
	return m
}

func TestModeFor(t *testing.T) {
	tests := []struct {
		baseURL string
		want    aa.Mode
	}{
		{"", aa.ModeMock},
		{"   ", aa.ModeMock},
		{"https://aa.example.com", aa.ModeLive},
	}
	for _, tt := range tests {
		if got := aa.ModeFor(tt.baseURL); got != tt.want {
			t.Errorf("ModeFor(%q) = %s, want %s", tt.baseURL, got, tt.want)
		}
	}
}

func TestNewConsentManagerValidates(t *testing.T) {
	if _, err := aa.NewConsentManager("other", mock.New(), nil, nil); err == nil {
		t.Error("expected an error for an invalid mode")
	}
	if _, err := aa.NewConsentManager(aa.ModeMock, nil, nil, nil); err == nil {
		t.Error("expected an error for a nil issuer")
	}
}

func TestMockConsentsAreDistinct(t *testing.T) {
	m := newMockManager(t)
	ctx := context.Background()

	for _, user := range []string{"alice", "bob-7", "user with spaces"} {
		first, err := m.RequestConsent(ctx, user)
		if err != nil {
			t.Fatalf("RequestConsent(%q): %v", user, err)
		}
		second, err := m.RequestConsent(ctx, user)
		if err != nil {
			t.Fatalf("RequestConsent(%q): %v", user, err)
		}
		if first.Handle == second.Handle {
			t.Errorf("repeated requests for %q returned the same handle", user)
		}
		for _, c := range []core.Consent{first, second} {
			if !strings.Contains(c.Handle, user) {
				t.Errorf("handle %q does not embed %q", c.Handle, user)
			}
			if c.Status != core.StatusGranted || !c.Mock {
				t.Errorf("got status=%s mock=%v", c.Status, c.Mock)
			}
		}
		active, ok := m.Active()
		if !ok || active.Handle != second.Handle {
			t.Errorf("active consent = %+v, want the latest", active)
		}
	}
}

func TestRequestConsentRejectsEmptyUser(t *testing.T) {
	m := newMockManager(t)
	if _, err := m.RequestConsent(context.Background(), ""); !errors.Is(err, core.ErrEmptyUserID) {
		t.Fatalf("expected ErrEmptyUserID, got %v", err)
	}
	if _, ok := m.Active(); ok {
		t.Fatal("empty user recorded a consent")
	}
}

func TestLiveConsentSuccess(t *testing.T) {
	srv, hits := countingServer(t, http.StatusOK, `{"consentHandle":"real-consent-abc","status":"GRANTED"}`)
	m := newLiveManager(t, srv.URL)

	consent, err := m.RequestConsent(context.Background(), "user-prod")
	if err != nil {
		t.Fatalf("RequestConsent: %v", err)
	}
	if consent.Handle != "real-consent-abc" || consent.Mock {
		t.Fatalf("unexpected consent %+v", consent)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one outbound request, got %d", hits.Load())
	}
	if active, ok := m.Active(); !ok || active.Handle != "real-consent-abc" {
		t.Fatalf("active consent = %+v", active)
	}
}

func TestLiveConsentFailureKeepsSlot(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"consentHandle":"first","status":"GRANTED"}`))
	}))
	t.Cleanup(srv.Close)
	m := newLiveManager(t, srv.URL)

	if _, err := m.RequestConsent(context.Background(), "user-ok"); err != nil {
		t.Fatalf("RequestConsent: %v", err)
	}

	fail.Store(true)
	_, err := m.RequestConsent(context.Background(), "user-fail")
	if !errors.Is(err, core.ErrConsentRequestFailed) {
		t.Fatalf("expected ErrConsentRequestFailed, got %v", err)
	}
	active, ok := m.Active()
	if !ok || active.Handle != "first" {
		t.Fatalf("failed request overwrote the active consent: %+v", active)
	}
}

func TestLiveConsentFailureWithNoPriorConsent(t *testing.T) {
	srv, _ := countingServer(t, http.StatusForbidden, ``)
	m := newLiveManager(t, srv.URL)

	if _, err := m.RequestConsent(context.Background(), "user-fail"); !errors.Is(err, core.ErrConsentRequestFailed) {
		t.Fatalf("expected ErrConsentRequestFailed, got %v", err)
	}
	if _, ok := m.Active(); ok {
		t.Fatal("failed request recorded a consent")
	}
}

func TestObserversSeeRecordedConsent(t *testing.T) {
	m := newMockManager(t)

	var mu sync.Mutex
	var seen []string
	m.AddObserver(aa.ConsentObserverFunc(func(ctx context.Context, c core.Consent) error {
		active, _ := m.Active()
		mu.Lock()
		defer mu.Unlock()
		if active.Handle != c.Handle {
			t.Errorf("observer ran before the consent became active")
		}
		seen = append(seen, c.Handle)
		return nil
	}))
	m.AddObserver(aa.ConsentObserverFunc(func(ctx context.Context, c core.Consent) error {
		return errors.New("audit store down")
	}))

	consent, err := m.RequestConsent(context.Background(), "carol")
	if err != nil {
		t.Fatalf("observer failure leaked into the request: %v", err)
	}
	if len(seen) != 1 || seen[0] != consent.Handle {
		t.Fatalf("observer saw %v", seen)
	}
}

type callRecorder struct {
	metrics.NoOp
	mu    sync.Mutex
	calls []string
}

func (r *callRecorder) ObserveCall(op, mode, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, op+"/"+mode+"/"+outcome)
}

func TestConsentMetrics(t *testing.T) {
	srv, _ := countingServer(t, http.StatusServiceUnavailable, ``)
	client, err := live.NewClient(srv.URL, time.Second, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	rec := &callRecorder{}
	m, err := aa.NewConsentManager(aa.ModeLive, client, nil, rec)
	if err != nil {
		t.Fatalf("NewConsentManager: %v", err)
	}

	_, _ = m.RequestConsent(context.Background(), "dave")
	if len(rec.calls) != 1 || rec.calls[0] != "request_consent/live/failure" {
		t.Fatalf("recorded %v", rec.calls)
	}
}

func TestConcurrentMockConsents(t *testing.T) {
	m := newMockManager(t)

	var wg sync.WaitGroup
	handles := make(chan string, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := m.RequestConsent(context.Background(), "same-user")
			if err != nil {
				t.Errorf("RequestConsent: %v", err)
				return
			}
			handles <- c.Handle
		}()
	}
	wg.Wait()
	close(handles)

	unique := make(map[string]struct{})
	for h := range handles {
		unique[h] = struct{}{}
	}
	if len(unique) != 64 {
		t.Fatalf("got %d unique handles out of 64", len(unique))
	}
}
