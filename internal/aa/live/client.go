// Package live talks to a real account aggregator over HTTP.
package live

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"aadash/internal/core"
)

// Endpoint paths relative to the configured base URL.
const (
	PathConsent      = "/consent"
	PathFetch        = "/fi/fetch"
	PathTransactions = "/fi/fetch/transactions"
)

// DefaultTimeout bounds a single call when the caller sets none.
const DefaultTimeout = 15 * time.Second

var (
	consentTypes    = []string{"PROFILE", "SUMMARY", "TRANSACTIONS"}
	consentFITypes  = []string{"DEPOSIT", "CREDIT_CARD", "RECURRING_DEPOSIT"}
	accountsFITypes = []string{"DEPOSIT", "CREDIT_CARD"}
)

type (
	consentRequest struct {
		UserID       string   `json:"userId"`
		ConsentTypes []string `json:"consentTypes"`
		FITypes      []string `json:"fiTypes"`
	}

	consentResponse struct {
		ConsentHandle string `json:"consentHandle"`
		Status        string `json:"status"`
	}

	accountsRequest struct {
		ConsentHandle string   `json:"consentHandle"`
		FITypes       []string `json:"fiTypes"`
	}

	transactionsRequest struct {
		ConsentHandle string `json:"consentHandle"`
		AccountID     string `json:"accountId"`
	}
)

// Client issues one POST per operation against the aggregator. It performs
// no retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for baseURL. A nil httpClient gets a pooled
// client with the given timeout.
func NewClient(baseURL string, timeout time.Duration, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("AA base URL is empty")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if httpClient == nil {
		httpClient = newHTTPClientWithPooling(timeout)
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}, nil
}

func newHTTPClientWithPooling(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// RequestConsent asks the aggregator for a consent covering profile, summary
// and transaction data. The status is kept as reported.
func (c *Client) RequestConsent(ctx context.Context, userID string) (core.Consent, error) {
	req := consentRequest{
		UserID:       userID,
		ConsentTypes: consentTypes,
		FITypes:      consentFITypes,
	}
	var resp consentResponse
	if err := c.post(ctx, PathConsent, req, &resp, core.ErrConsentRequestFailed); err != nil {
		return core.Consent{}, err
	}
	return core.Consent{
		Handle:    resp.ConsentHandle,
		Status:    core.ConsentStatus(resp.Status),
		UserID:    userID,
		GrantedAt: time.Now().UTC(),
	}, nil
}

func (c *Client) FetchAccounts(ctx context.Context, consent core.Consent) ([]core.Account, error) {
	req := accountsRequest{
		ConsentHandle: consent.Handle,
		FITypes:       accountsFITypes,
	}
	var accounts []core.Account
	if err := c.post(ctx, PathFetch, req, &accounts, core.ErrAccountsFetchFailed); err != nil {
		return nil, err
	}
	if accounts == nil {
		accounts = []core.Account{}
	}
	return accounts, nil
}

func (c *Client) FetchTransactions(ctx context.Context, consent core.Consent, accountID string) ([]core.Transaction, error) {
	req := transactionsRequest{
		ConsentHandle: consent.Handle,
		AccountID:     accountID,
	}
	var txns []core.Transaction
	if err := c.post(ctx, PathTransactions, req, &txns, core.ErrTransactionsFetchFailed); err != nil {
		return nil, err
	}
	if txns == nil {
		txns = []core.Transaction{}
	}
	return txns, nil
}

// post sends body as JSON and decodes a 2xx response into out. Every failure
// is reported as a *core.BackendError of the given kind.
func (c *Client) post(ctx context.Context, path string, body, out any, kind error) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &core.BackendError{Kind: kind, Endpoint: path, Err: fmt.Errorf("encode request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &core.BackendError{Kind: kind, Endpoint: path, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &core.BackendError{Kind: kind, Endpoint: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return &core.BackendError{Kind: kind, Endpoint: path, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &core.BackendError{Kind: kind, Endpoint: path, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
