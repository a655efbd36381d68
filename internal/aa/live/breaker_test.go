package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"aadash/internal/core"
	"aadash/internal/metrics"
)

type failingBackend struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *failingBackend) hit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *failingBackend) RequestConsent(ctx context.Context, userID string) (core.Consent, error) {
	if err := f.hit(); err != nil {
		return core.Consent{}, err
	}
	return core.Consent{Handle: "h", Status: core.StatusGranted}, nil
}

func (f *failingBackend) FetchAccounts(ctx context.Context, c core.Consent) ([]core.Account, error) {
	if err := f.hit(); err != nil {
		return nil, err
	}
	return []core.Account{{ID: "a"}}, nil
}

func (f *failingBackend) FetchTransactions(ctx context.Context, c core.Consent, id string) ([]core.Transaction, error) {
	if err := f.hit(); err != nil {
		return nil, err
	}
	return []core.Transaction{}, nil
}

type stateRecorder struct {
	metrics.NoOp
	mu     sync.Mutex
	states []metrics.BreakerState
}

func (r *stateRecorder) RecordBreakerState(name string, s metrics.BreakerState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) last() metrics.BreakerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[len(r.states)-1]
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	backend := &failingBackend{err: &core.BackendError{Kind: core.ErrAccountsFetchFailed, Endpoint: PathFetch, StatusCode: 503}}
	rec := &stateRecorder{}
	b := NewBreaker(backend, BreakerConfig{ConsecutiveFailures: 3, Cooldown: time.Hour}, nil, rec)

	for i := 0; i < 3; i++ {
		if _, err := b.FetchAccounts(context.Background(), core.Consent{}); !errors.Is(err, core.ErrAccountsFetchFailed) {
			t.Fatalf("call %d: unexpected error %v", i, err)
		}
	}
	if b.State() != metrics.BreakerOpen || rec.last() != metrics.BreakerOpen {
		t.Fatalf("breaker state = %s", b.State())
	}

	_, err := b.FetchTransactions(context.Background(), core.Consent{}, "a")
	if !errors.Is(err, core.ErrTransactionsFetchFailed) {
		t.Fatalf("rejected call lost its kind: %v", err)
	}
	if !errors.Is(err, core.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
	if backend.calls != 3 {
		t.Fatalf("backend called %d times, want 3", backend.calls)
	}
}

func TestBreakerIgnoresCallerCancellation(t *testing.T) {
	backend := &failingBackend{err: context.Canceled}
	b := NewBreaker(backend, BreakerConfig{ConsecutiveFailures: 1, Cooldown: time.Hour}, nil, nil)

	for i := 0; i < 3; i++ {
		if _, err := b.RequestConsent(context.Background(), "u"); !errors.Is(err, context.Canceled) {
			t.Fatalf("unexpected error %v", err)
		}
	}
	if b.State() != metrics.BreakerClosed {
		t.Fatalf("breaker tripped on cancellations: %s", b.State())
	}
}

func TestBreakerRecovers(t *testing.T) {
	backend := &failingBackend{err: errors.New("boom")}
	b := NewBreaker(backend, BreakerConfig{ConsecutiveFailures: 1, Cooldown: 20 * time.Millisecond}, nil, nil)

	if _, err := b.RequestConsent(context.Background(), "u"); err == nil {
		t.Fatal("expected failure")
	}
	if b.State() != metrics.BreakerOpen {
		t.Fatalf("state = %s", b.State())
	}

	backend.mu.Lock()
	backend.err = nil
	backend.mu.Unlock()
	time.Sleep(40 * time.Millisecond)

	consent, err := b.RequestConsent(context.Background(), "u")
	if err != nil || consent.Handle != "h" {
		t.Fatalf("probe failed: %+v %v", consent, err)
	}
	if b.State() != metrics.BreakerClosed {
		t.Fatalf("state after probe = %s", b.State())
	}
}
