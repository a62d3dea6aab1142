package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// APIError is a provider business failure: the HTTP exchange succeeded but
// the provider reported status=false. Never retried; the message is shown
// to the user verbatim.
type APIError struct {
	Endpoint string
	Message  string
	Code     int
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("provider %s error: %s (code=%d)", e.Endpoint, e.Message, e.Code)
	}
	return fmt.Sprintf("provider %s error: %s", e.Endpoint, e.Message)
}

// HTTPError is a non-2xx HTTP response from the provider.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider error: status=%d body=%s", e.StatusCode, e.Body)
}

// isRetryable reports whether a failed attempt should be retried: connection
// reset, timeout, aborted request, HTTP 429 or HTTP >= 500.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	if errors.Is(err, syscall.EPIPE) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "unexpected eof") ||
		strings.Contains(msg, "request canceled while waiting") ||
		strings.Contains(msg, "timeout")
}

// ErrorKind is the small fixed taxonomy callers see instead of raw errors.
type ErrorKind string

const (
	KindUnauthorized    ErrorKind = "unauthorized"
	KindForbidden       ErrorKind = "forbidden"
	KindNotFound        ErrorKind = "not-found"
	KindRateLimited     ErrorKind = "rate-limited"
	KindServerError     ErrorKind = "server-error"
	KindTimeout         ErrorKind = "timeout"
	KindConnectionReset ErrorKind = "connection-reset"
	KindUnknown         ErrorKind = "unknown"
)

var kindMessages = map[ErrorKind]string{
	KindUnauthorized:    "Kredensial provider ditolak. Periksa API key.",
	KindForbidden:       "Akses ke endpoint provider ditolak.",
	KindNotFound:        "Data tidak ditemukan di provider.",
	KindRateLimited:     "Provider sedang membatasi permintaan. Coba lagi sebentar.",
	KindServerError:     "Provider sedang bermasalah. Coba lagi nanti.",
	KindTimeout:         "Permintaan ke provider timeout. Coba lagi nanti.",
	KindConnectionReset: "Koneksi ke provider terputus. Coba lagi nanti.",
	KindUnknown:         "Terjadi kesalahan saat menghubungi provider.",
}

// Classify maps a failure to the error taxonomy.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusUnauthorized:
			return KindUnauthorized
		case httpErr.StatusCode == http.StatusForbidden:
			return KindForbidden
		case httpErr.StatusCode == http.StatusNotFound:
			return KindNotFound
		case httpErr.StatusCode == http.StatusTooManyRequests:
			return KindRateLimited
		case httpErr.StatusCode >= 500:
			return KindServerError
		default:
			return KindUnknown
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNABORTED) {
		return KindConnectionReset
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return KindTimeout
	case strings.Contains(msg, "connection reset"):
		return KindConnectionReset
	default:
		return KindUnknown
	}
}

// ErrorMessage is the single place user-facing provider error text is
// produced. Business failures pass the provider message through verbatim;
// everything else maps through the taxonomy.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return kindMessages[Classify(err)]
}
