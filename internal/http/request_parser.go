// Package http provides HTTP server and handler implementations.
//
// This file holds the helpers that turn request bodies and query strings
// into handler inputs.

package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"aadash/internal/core"
)

const (
	maxBodyBytes = 1 << 16

	maxUserIDLength = 128
	maxSearchLength = 200
	maxListLimit    = 500
)

// RequestBodyParser reads a JSON or form-encoded body once and exposes its
// fields as trimmed strings.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads at most maxBodyBytes of the body.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body == nil {
		return p
	}

	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if p.err == nil && len(p.body) > maxBodyBytes {
		p.err = fmt.Errorf("request body exceeds %d bytes", maxBodyBytes)
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.body[0] == '{' {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue converts a decoded JSON value to string.
func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// parseConsentRequest extracts the user id from a consent request body.
// An empty id is returned as is; the consent manager rejects it.
func parseConsentRequest(r *http.Request) (string, error) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		return "", fmt.Errorf("invalid request body: %w", err)
	}
	userID := p.Get("userId")
	if len(userID) > maxUserIDLength {
		return "", fmt.Errorf("userId longer than %d characters", maxUserIDLength)
	}
	return userID, nil
}

// parseTransactionFilter reads ?category= and ?q= into a core.Filter.
// Category names are matched case-insensitively; "All" or empty disables it.
func parseTransactionFilter(query url.Values) (core.Filter, error) {
	f := core.Filter{
		Search: sanitizeInput(query.Get("q")),
	}
	if len(f.Search) > maxSearchLength {
		return core.Filter{}, fmt.Errorf("search longer than %d characters", maxSearchLength)
	}

	category := strings.TrimSpace(query.Get("category"))
	if category == "" || strings.EqualFold(category, core.CategoryAll) {
		return f, nil
	}
	c, ok := core.ParseCategory(category)
	if !ok {
		return core.Filter{}, fmt.Errorf("unknown category %q", category)
	}
	f.Category = string(c)
	return f, nil
}

// parseLimit reads ?limit=, returning def when absent.
func parseLimit(query url.Values, def int) (int, error) {
	v := strings.TrimSpace(query.Get("limit"))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > maxListLimit {
		return 0, fmt.Errorf("limit must be between 1 and %d", maxListLimit)
	}
	return n, nil
}

// parseDismissed reads the comma separated ?dismissed= alert ids.
func parseDismissed(query url.Values) []string {
	var ids []string
	for _, raw := range query["dismissed"] {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}
