package core

import (
	"errors"
	"fmt"
	"net/http"
)

// Request-level failure kinds. Handlers wrap these with %w; the server maps
// them to status codes with errors.Is / errors.As.
var (
	ErrNotFound        = errors.New("not found")
	ErrBadRequest      = errors.New("bad request")
	ErrUpstream        = errors.New("upstream request failed")
	ErrUpstreamTimeout = errors.New("upstream request timed out")
)

// ConfigError reports a required configuration value that is absent.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s is not set", e.Field)
}

// UpstreamError carries a non-success response from the content store.
type UpstreamError struct {
	Op         string
	StatusCode int
	Status     string
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("store fetch failed (%s) | status: %s | body: %s", e.Op, e.Status, e.Body)
}

// Unwrap lets errors.Is(err, ErrUpstream) match status failures too.
func (e *UpstreamError) Unwrap() error {
	return ErrUpstream
}

// StatusCode maps an error to the HTTP status the router answers with.
func StatusCode(err error) int {
	var cfgErr *ConfigError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &cfgErr):
		return http.StatusInternalServerError
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
