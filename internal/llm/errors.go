package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// APIError is a provider failure with its retry classification attached.
type APIError struct {
	Provider   string
	StatusCode int
	Transient  bool
	RetryAfter time.Duration
	Err        error
}

func (e *APIError) Error() string {
	kind := "terminal"
	if e.Transient {
		kind = "transient"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s error (status %d): %v", e.Provider, kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s error: %v", e.Provider, kind, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// TransientStatus reports whether an HTTP status is worth retrying.
func TransientStatus(code int) bool {
	switch {
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout, code == http.StatusTooEarly:
		return true
	case code >= 500 && code != http.StatusNotImplemented && code != http.StatusHTTPVersionNotSupported:
		return true
	}
	return false
}

// TransientCode is the grpc equivalent of TransientStatus.
func TransientCode(c codes.Code) bool {
	switch c {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted, codes.Internal:
		return true
	}
	return false
}

// FromStatus builds an APIError from an HTTP status and headers.
func FromStatus(provider string, code int, header http.Header, err error) *APIError {
	e := &APIError{
		Provider:   provider,
		StatusCode: code,
		Transient:  TransientStatus(code),
		Err:        err,
	}
	if header != nil {
		e.RetryAfter = ParseRetryAfter(header.Get("Retry-After"), time.Now())
		if ms := header.Get("Retry-After-Ms"); ms != "" {
			if v, perr := strconv.ParseFloat(ms, 64); perr == nil && v > 0 {
				e.RetryAfter = time.Duration(v * float64(time.Millisecond))
			}
		}
	}
	return e
}

// Classify turns any error from a provider call into an APIError. Errors
// that are already classified pass through unchanged.
func Classify(provider string, err error) *APIError {
	if err == nil {
		return nil
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae
	}
	e := &APIError{Provider: provider, Err: err}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		e.Transient = true
	case errors.Is(err, context.Canceled):
		e.Transient = false
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF),
		errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.EPIPE):
		e.Transient = true
	default:
		var netErr net.Error
		if errors.As(err, &netErr) {
			e.Transient = true
			break
		}
		if s, ok := status.FromError(err); ok && s.Code() != codes.Unknown && s.Code() != codes.OK {
			e.Transient = TransientCode(s.Code())
			break
		}
		if strings.Contains(strings.ToLower(err.Error()), "connection reset") {
			e.Transient = true
		}
	}
	return e
}

// ParseRetryAfter accepts delta-seconds or an HTTP date.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
