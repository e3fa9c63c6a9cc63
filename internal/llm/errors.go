package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ErrorKind is the closed set of turn-level failure classes.
type ErrorKind int

const (
	// KindUnknown covers everything not otherwise classified.
	KindUnknown ErrorKind = iota
	// KindAuth is a rejected credential. It is the only fatal kind.
	KindAuth
	// KindRateLimit is a 429 from the service.
	KindRateLimit
	// KindNetwork is a transport failure: refused, reset, timed out.
	KindNetwork
	// KindMalformedToolArguments is an argument parse failure that got
	// past the dispatcher.
	KindMalformedToolArguments
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate_limit"
	case KindNetwork:
		return "network"
	case KindMalformedToolArguments:
		return "malformed_tool_arguments"
	default:
		return "unknown"
	}
}

// Fatal reports whether the loop must stop on this kind.
func (k ErrorKind) Fatal() bool {
	return k == KindAuth
}

// Error is the error type returned by completion clients.
type Error struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	Message    string
	RetryAfter *time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = "request failed"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s API error %d: %s", e.Provider, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s", e.Provider, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorFromHTTPStatus maps a non-2xx completion response to an *Error.
// Ambiguous 400s are refined by message text.
func ErrorFromHTTPStatus(provider string, status int, message string, retryAfter *time.Duration) *Error {
	e := &Error{
		Provider:   provider,
		StatusCode: status,
		Message:    message,
		RetryAfter: retryAfter,
	}
	switch status {
	case http.StatusUnauthorized:
		e.Kind = KindAuth
	case http.StatusTooManyRequests:
		e.Kind = KindRateLimit
	case http.StatusRequestTimeout, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		e.Kind = KindNetwork
	case http.StatusBadRequest:
		lower := strings.ToLower(message)
		switch {
		case strings.Contains(lower, "invalid api key") || strings.Contains(lower, "incorrect api key"):
			e.Kind = KindAuth
		case strings.Contains(lower, "tool_calls") && strings.Contains(lower, "arguments"):
			e.Kind = KindMalformedToolArguments
		default:
			e.Kind = KindUnknown
		}
	default:
		e.Kind = KindUnknown
	}
	return e
}

// ParseRetryAfter parses a Retry-After header in seconds or HTTP-date
// form.
func ParseRetryAfter(v string, now time.Time) *time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		d := time.Duration(secs) * time.Second
		return &d
	}
	if t, err := http.ParseTime(v); err == nil {
		d := max(t.Sub(now), 0)
		return &d
	}
	return nil
}

// Classify assigns err to an [ErrorKind]. It is the single place the
// turn loop asks what went wrong. An *Error has already been classified
// by the client; only a network cause can refine its Unknown kind.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		if apiErr.Kind == KindUnknown && isNetwork(apiErr.Err) {
			return KindNetwork
		}
		return apiErr.Kind
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return KindMalformedToolArguments
	}

	if isNetwork(err) {
		return KindNetwork
	}
	return KindUnknown
}

func isNetwork(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
