package backend

import (
	"context"

	"aadash/internal/aa"
	"aadash/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult is the wired consent manager and data fetcher together
// with the function that releases their resources.
type BackendResult struct {
	Manager *aa.ConsentManager
	Fetcher *aa.DataFetcher
	Mode    aa.Mode
	// Demo always serves synthetic data. Live is nil in mock mode.
	Demo    aa.Backend
	Live    aa.Backend
	// Audit is the consent audit log, nil when SQLITE_DB_PATH is unset.
	Audit   *storage.SQLiteRepository
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// BackendType selects where financial data comes from.
type BackendType string

const (
	MockBackend BackendType = "mock"
	LiveBackend BackendType = "live"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MockBackend, LiveBackend:
		return true
	default:
		return false
	}
}

// Mode maps the backend type to the aggregator mode.
func (bt BackendType) Mode() aa.Mode {
	if bt == LiveBackend {
		return aa.ModeLive
	}
	return aa.ModeMock
}
