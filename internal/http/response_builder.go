// Package http provides HTTP server and handler implementations.
//
// This file implements a small builder for JSON responses so every handler
// shapes errors the same way.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"aadash/internal/core"
	"aadash/internal/log"
)

const contentTypeJSON = "application/json; charset=utf-8"

// errorBody is the payload of every non-2xx JSON response.
type errorBody struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       interface{}
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v interface{}) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(b.statusCode)
	if b.body != nil {
		_ = json.NewEncoder(w).Encode(b.body)
	}
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Body(errorBody{Status: "error", Error: message})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// statusFor maps aggregator failures onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrEmptyUserID):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNoConsent):
		return http.StatusConflict
	case errors.Is(err, core.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrConsentRequestFailed),
		errors.Is(err, core.ErrAccountsFetchFailed),
		errors.Is(err, core.ErrTransactionsFetchFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AggregatorError turns err into a JSON error response and logs it. The
// message is the failure kind only; backend details stay in the log.
func AggregatorError(r *http.Request, err error) *JSONResponseBuilder {
	status := statusFor(err)
	log.FromContext(r.Context()).ErrorContext(r.Context(), "Aggregator request failed",
		log.FieldStatusCode, status,
		log.FieldError, err)

	resp := ErrorResponse(status, publicMessage(err))
	if status == http.StatusServiceUnavailable {
		resp.Header("Retry-After", "30")
	}
	return resp
}

func publicMessage(err error) string {
	for _, kind := range []error{
		core.ErrEmptyUserID,
		core.ErrNoConsent,
		core.ErrBackendUnavailable,
		core.ErrConsentRequestFailed,
		core.ErrAccountsFetchFailed,
		core.ErrTransactionsFetchFailed,
	} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return "internal error"
}
