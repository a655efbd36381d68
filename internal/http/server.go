package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"aadash/internal/aa"
	"aadash/internal/cache"
	"aadash/internal/core"
	"aadash/internal/log"
	"aadash/internal/middleware/ratelimit"
	"aadash/internal/middleware/security"
	"aadash/internal/middleware/trace"
	"aadash/internal/storage"
)

const (
	accountsCacheSize    = 32
	transactionCacheSize = 256
	cacheSweepInterval   = 5 * time.Minute
	fetchTimeout         = 20 * time.Second
)

type (
	// ConsentHistory lists recorded consents for a user.
	ConsentHistory interface {
		ListConsents(ctx context.Context, userID string, limit int) ([]storage.ConsentRecord, error)
	}

	// SheetExporter appends transactions to an external spreadsheet.
	SheetExporter interface {
		Export(ctx context.Context, accountID string, txns []core.Transaction) (string, error)
	}

	// ReadinessCheck reports whether a dependency can serve traffic.
	ReadinessCheck func(ctx context.Context) error
)

// Deps are the collaborators of the HTTP server. Manager and Fetcher are
// required; everything else is optional.
type Deps struct {
	Manager *aa.ConsentManager
	Fetcher *aa.DataFetcher

	History  ConsentHistory
	Exporter SheetExporter
	Metrics  http.Handler
	Ready    map[string]ReadinessCheck

	Logger *log.Logger
	// CacheTTL bounds how long fetched lists are reused; zero disables caching.
	CacheTTL  time.Duration
	RateLimit ratelimit.Config
}

type Server struct {
	http.Server

	manager  *aa.ConsentManager
	fetcher  *aa.DataFetcher
	history  ConsentHistory
	exporter SheetExporter
	ready    map[string]ReadinessCheck
	logger   *log.Logger

	accounts     *cache.Loader[[]core.Account]
	transactions *cache.Loader[[]core.Transaction]
	caches       *cache.Manager

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		manager:  deps.Manager,
		fetcher:  deps.Fetcher,
		history:  deps.History,
		exporter: deps.Exporter,
		ready:    deps.Ready,
		logger:   logger,
		caches:   cache.NewManager(logger),
		limiter:  ratelimit.NewLimiter(deps.RateLimit),
		detector: security.NewDetector(logger),
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, logger)

	if ttl := deps.CacheTTL; ttl > 0 {
		s.accounts = cache.NewLoader(cache.NewLRUCache[[]core.Account](accountsCacheSize, ttl)).WithLoadTimeout(fetchTimeout)
		s.transactions = cache.NewLoader(cache.NewLRUCache[[]core.Transaction](transactionCacheSize, ttl)).WithLoadTimeout(fetchTimeout)
		s.caches.Register(s.accounts.Cache())
		s.caches.Register(s.transactions.Cache())
		s.caches.StartCleanup(cacheSweepInterval)

		s.manager.AddObserver(aa.ConsentObserverFunc(func(ctx context.Context, c core.Consent) error {
			s.invalidate(ctx)
			return nil
		}))
	}

	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("not found").Write(w)
	})
	methodNotAllowed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "method not allowed").Write(w)
	})

	r := mux.NewRouter()
	r.NotFoundHandler = notFound
	r.MethodNotAllowedHandler = methodNotAllowed

	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics).Methods(http.MethodGet)
	}

	// Subrouters do not inherit the parent's error handlers.
	api := r.PathPrefix("/api").Subrouter()
	api.NotFoundHandler = notFound
	api.MethodNotAllowedHandler = methodNotAllowed
	api.Use(s.limiter.Middleware(s.detector.ExtractClientIP, writeRateLimited, http.MethodPost))
	api.HandleFunc("/consent", s.handleRequestConsent).Methods(http.MethodPost)
	api.HandleFunc("/consent", s.handleActiveConsent).Methods(http.MethodGet)
	api.HandleFunc("/consents", s.handleConsentHistory).Methods(http.MethodGet)
	api.HandleFunc("/accounts", s.handleAccounts).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}/transactions", s.handleTransactions).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}/transactions.csv", s.handleTransactionsCSV).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}/transactions/sheets", s.handleSheetsExport).Methods(http.MethodPost)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.tracer.Middleware(headers.Middleware(s.detector.Middleware(r))),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// invalidate drops every cached list. Keys embed the consent handle, so
// this only frees memory held for the previous consent.
func (s *Server) invalidate(ctx context.Context) {
	if s.accounts == nil {
		return
	}
	s.accounts.Cache().Purge()
	s.transactions.Cache().Purge()
	s.logger.DebugContext(ctx, "Cache invalidated after new consent")
}

// cacheScope names the data set visible right now: the active consent or
// the demo data.
func (s *Server) cacheScope() string {
	if c, ok := s.manager.Active(); ok {
		return c.Handle
	}
	return "demo"
}

// usingMockData reports whether fetched data is synthesized.
func (s *Server) usingMockData() bool {
	c, ok := s.manager.Active()
	return !ok || c.Mock
}

func (s *Server) getAccounts(ctx context.Context) ([]core.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	if s.accounts == nil {
		return s.fetcher.FetchAccounts(ctx)
	}
	key := s.cacheScope() + "|accounts"
	accounts, hit, err := s.accounts.Get(ctx, key, s.fetcher.FetchAccounts)
	if hit {
		log.FromContext(ctx).DebugContext(ctx, "Accounts cache hit", log.FieldCount, len(accounts))
	}
	return accounts, err
}

// getTransactions returns a copy callers may filter or reorder freely.
func (s *Server) getTransactions(ctx context.Context, accountID string) ([]core.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	if s.transactions == nil {
		return s.fetcher.FetchTransactions(ctx, accountID)
	}
	key := s.cacheScope() + "|transactions|" + accountID
	txns, hit, err := s.transactions.Get(ctx, key, func(ctx context.Context) ([]core.Transaction, error) {
		return s.fetcher.FetchTransactions(ctx, accountID)
	})
	if err != nil {
		return nil, err
	}
	if hit {
		log.FromContext(ctx).DebugContext(ctx, "Transactions cache hit",
			log.FieldAccountID, accountID,
			log.FieldCount, len(txns))
	}
	out := make([]core.Transaction, len(txns))
	copy(out, txns)
	return out, nil
}

func writeRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
}
