package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrAPIKeyMissing = errors.New("API key missing")
	ErrEmptyBody     = errors.New("empty response body")
)

// StatusError is a non-2xx answer from the forecast API.
// Message is the server-provided text, verbatim.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("forecast API returned status %d: %s", e.Code, e.Message)
}

// TransportError is a fault below HTTP: DNS, refused connection, timeout.
type TransportError struct {
	Message string
	Err     error
}

func (e *TransportError) Error() string { return e.Message }

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError means a 2xx response whose body was absent or not a forecast.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "unable to read forecast response: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

const (
	genericParseMessage = "Unable to read the forecast data"
	genericFetchMessage = "Unable to load the forecast"
)

// Describe turns a fetch error into the human-readable text shown in the
// error state. It is never empty for a non-nil err.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var statusErr *StatusError
	var transportErr *TransportError
	var parseErr *ParseError
	switch {
	case errors.As(err, &statusErr):
		if statusErr.Message != "" {
			return statusErr.Message
		}
		if text := http.StatusText(statusErr.Code); text != "" {
			return text
		}
		return fmt.Sprintf("HTTP %d", statusErr.Code)
	case errors.As(err, &parseErr):
		return genericParseMessage
	case errors.Is(err, context.DeadlineExceeded):
		return "The forecast request timed out"
	case errors.As(err, &transportErr):
		if msg := strings.TrimSpace(transportErr.Message); msg != "" {
			return msg
		}
		return genericFetchMessage
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return genericFetchMessage
}
