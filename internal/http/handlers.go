package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"aadash/internal/core"
	csvexport "aadash/internal/export/csv"
	"aadash/internal/log"
	"aadash/internal/storage"
)

const readyTimeout = 3 * time.Second

type (
	accountsResponse struct {
		Accounts []core.Account `json:"accounts"`
		Summary  core.Summary   `json:"summary"`
		Alerts   []core.Alert   `json:"alerts"`
		Mock     bool           `json:"mock"`
	}

	consentRecordResponse struct {
		ID         int64               `json:"id"`
		Consent    core.Consent        `json:"consent"`
		RecordedAt time.Time           `json:"recordedAt"`
		Export     storage.ExportState `json:"export"`
	}

	sheetsExportResponse struct {
		Status       string `json:"status"`
		AccountID    string `json:"accountId"`
		Count        int    `json:"count"`
		UpdatedRange string `json:"updatedRange,omitempty"`
	}
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}

// handleReady runs every readiness check and reports the failing ones.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	failed := make(map[string]string)
	for name, check := range s.ready {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	body := map[string]interface{}{
		"status": "ready",
		"mode":   s.manager.Mode().String(),
	}
	status := http.StatusOK
	if len(failed) > 0 {
		body["status"] = "not ready"
		body["failed"] = failed
		status = http.StatusServiceUnavailable
		s.logger.WarnContext(ctx, "Readiness check failed", "failed", failed)
	}
	NewJSONResponse().Status(status).Body(body).Write(w)
}

func (s *Server) handleRequestConsent(w http.ResponseWriter, r *http.Request) {
	userID, err := parseConsentRequest(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	consent, err := s.manager.RequestConsent(r.Context(), userID)
	if err != nil {
		AggregatorError(r, err).Write(w)
		return
	}

	NewJSONResponse().Body(consent).Write(w)
}

func (s *Server) handleActiveConsent(w http.ResponseWriter, r *http.Request) {
	consent, ok := s.manager.Active()
	if !ok {
		NotFoundError("no active consent").Write(w)
		return
	}
	NewJSONResponse().Body(consent).Write(w)
}

func (s *Server) handleConsentHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		NotFoundError("consent audit log is not configured").Write(w)
		return
	}

	query := r.URL.Query()
	userID := sanitizeInput(query.Get("userId"))
	if userID == "" {
		BadRequestError("userId is required").Write(w)
		return
	}
	limit, err := parseLimit(query, storage.DefaultListLimit)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	records, err := s.history.ListConsents(r.Context(), userID, limit)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "List consents failed",
			log.FieldUserID, userID,
			log.FieldError, err)
		InternalServerError("failed to list consents").Write(w)
		return
	}

	out := make([]consentRecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, consentRecordResponse{ID: rec.ID, Consent: rec.Consent, RecordedAt: rec.RecordedAt, Export: rec.Export})
	}
	NewJSONResponse().Body(out).Write(w)
}

// handleAccounts returns the accounts together with the balance summary and
// the alerts not listed in ?dismissed=.
func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.getAccounts(r.Context())
	if err != nil {
		AggregatorError(r, err).Write(w)
		return
	}

	alerts := core.FilterDismissed(core.BuildAlerts(accounts), parseDismissed(r.URL.Query()))
	if alerts == nil {
		alerts = []core.Alert{}
	}
	if accounts == nil {
		accounts = []core.Account{}
	}

	NewJSONResponse().Body(accountsResponse{
		Accounts: accounts,
		Summary:  core.Summarize(accounts),
		Alerts:   alerts,
		Mock:     s.usingMockData(),
	}).Write(w)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	txns, ok := s.filteredTransactions(w, r)
	if !ok {
		return
	}
	NewJSONResponse().Body(txns).Write(w)
}

func (s *Server) handleTransactionsCSV(w http.ResponseWriter, r *http.Request) {
	txns, ok := s.filteredTransactions(w, r)
	if !ok {
		return
	}

	accountID := mux.Vars(r)["id"]
	w.Header().Set("Content-Type", csvexport.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+csvexport.FileName(s.bankOf(r.Context(), accountID))+`"`)
	if err := csvexport.Write(w, txns); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "CSV export failed",
			log.FieldAccountID, accountID,
			log.FieldError, err)
	}
}

func (s *Server) handleSheetsExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		NotFoundError("sheets export is not configured").Write(w)
		return
	}

	txns, ok := s.filteredTransactions(w, r)
	if !ok {
		return
	}

	accountID := mux.Vars(r)["id"]
	updated, err := s.exporter.Export(r.Context(), accountID, txns)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Sheets export failed",
			log.NewFields().
				WithOperation(log.OpExport).
				WithAccount(accountID).
				WithError(err).
				ToSlice()...)
		ErrorResponse(http.StatusBadGateway, "failed to export transactions").Write(w)
		return
	}

	NewJSONResponse().Body(sheetsExportResponse{
		Status:       "ok",
		AccountID:    accountID,
		Count:        len(txns),
		UpdatedRange: updated,
	}).Write(w)
}

// filteredTransactions fetches the account's transactions and applies the
// query filter. On failure it writes the response and returns false.
func (s *Server) filteredTransactions(w http.ResponseWriter, r *http.Request) ([]core.Transaction, bool) {
	accountID := strings.TrimSpace(mux.Vars(r)["id"])
	if accountID == "" {
		BadRequestError("account id is required").Write(w)
		return nil, false
	}

	filter, err := parseTransactionFilter(r.URL.Query())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return nil, false
	}

	txns, err := s.getTransactions(r.Context(), accountID)
	if err != nil {
		AggregatorError(r, err).Write(w)
		return nil, false
	}
	return core.FilterTransactions(txns, filter), true
}

// bankOf looks the account up for the export file name. Lookup failures
// fall back to the generic name.
func (s *Server) bankOf(ctx context.Context, accountID string) string {
	accounts, err := s.getAccounts(ctx)
	if err != nil {
		return ""
	}
	for _, a := range accounts {
		if a.ID == accountID {
			return a.Bank
		}
	}
	return ""
}
