package feed

import (
	"fmt"
	"net/http"
)

// ErrorType classifies feed poll failures. The value doubles as the result
// label on the polls_total metric.
type ErrorType string

const (
	// ErrTypeRateLimited is an HTTP 429 from the feed host.
	ErrTypeRateLimited ErrorType = "rate_limited"
	// ErrTypeForbidden is an HTTP 403, typically a blocked user agent.
	ErrTypeForbidden   ErrorType = "forbidden"
	// ErrTypeNotFound is an HTTP 404; the symbol may have been delisted.
	ErrTypeNotFound    ErrorType = "not_found"
	// ErrTypeGone is an HTTP 410.
	ErrTypeGone        ErrorType = "gone"
	// ErrTypeUpstream is any 5xx from the feed host.
	ErrTypeUpstream    ErrorType = "upstream_failure"
	// ErrTypeNetwork covers DNS, connect and timeout failures.
	ErrTypeNetwork     ErrorType = "network"
	// ErrTypeParse means the body was not a parseable RSS or Atom document.
	ErrTypeParse       ErrorType = "parse_error"
	// ErrTypeGateway means a gateway link could not be resolved and the entry
	// was keyed by the gateway link itself. It never abandons a cycle.
	ErrTypeGateway     ErrorType = "gateway_unresolved"
	// ErrTypeUnexpected is any other status; it is logged at ERROR.
	ErrTypeUnexpected  ErrorType = "unexpected"
)

// LogLevel determines whether a PollError is logged at WARN or ERROR.
type LogLevel int

const (
	// LevelWarn is for failures expected to clear by the next cycle.
	LevelWarn LogLevel = iota
	// LevelError is for failures that need an operator.
	LevelError
)

// PollError is a classified poll failure. Fetch and parse failures abandon one
// source's cycle and are retried on the next; gateway failures degrade a
// single entry.
type PollError struct {
	Type       ErrorType
	Level      LogLevel
	StatusCode int
	URL        string
	Cause      error
}

func (e *PollError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("feed poll %s: HTTP %d for %s", e.Type, e.StatusCode, e.URL)
	}

	return fmt.Sprintf("feed poll %s: %s for %s", e.Type, e.Cause, e.URL)
}

// Unwrap returns the underlying cause.
func (e *PollError) Unwrap() error { return e.Cause }

// ClassifyHTTPStatus creates a PollError from a non-200 status code.
func ClassifyHTTPStatus(statusCode int, url string) *PollError {
	e := &PollError{Level: LevelWarn, StatusCode: statusCode, URL: url, Cause: fmt.Errorf("HTTP %d", statusCode)}

	switch {
	case statusCode == http.StatusTooManyRequests:
		e.Type = ErrTypeRateLimited
	case statusCode == http.StatusForbidden:
		e.Type = ErrTypeForbidden
	case statusCode == http.StatusNotFound:
		e.Type = ErrTypeNotFound
	case statusCode == http.StatusGone:
		e.Type = ErrTypeGone
	case statusCode >= http.StatusInternalServerError:
		e.Type = ErrTypeUpstream
	default:
		e.Type = ErrTypeUnexpected
		e.Level = LevelError
	}

	return e
}

// ClassifyNetworkError creates a PollError for network-level failures (DNS, timeout, etc.).
func ClassifyNetworkError(cause error, url string) *PollError {
	return &PollError{Type: ErrTypeNetwork, Level: LevelWarn, URL: url, Cause: cause}
}

// ClassifyParseError creates a PollError for feed parsing failures.
func ClassifyParseError(cause error, url string) *PollError {
	return &PollError{Type: ErrTypeParse, Level: LevelWarn, URL: url, Cause: cause}
}

// ClassifyGatewayError creates a PollError for a gateway link that fell back
// to its original form. link is the gateway link, not the feed URL.
func ClassifyGatewayError(cause error, link string) *PollError {
	return &PollError{Type: ErrTypeGateway, Level: LevelWarn, URL: link, Cause: cause}
}
