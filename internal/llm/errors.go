package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"
)

// ErrorKind is the classified category of an upstream failure.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindAuth
	KindRateLimit
	KindServerUnavailable
	KindInvalidRequest
	KindTooLarge
	KindConnection
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate_limit"
	case KindServerUnavailable:
		return "server_unavailable"
	case KindInvalidRequest:
		return "invalid_request"
	case KindTooLarge:
		return "too_large"
	case KindConnection:
		return "connection"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Severity grades how bad a classified failure is for operators.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "error"
	}
}

// ErrorInfo is the structured classification of one failed attempt.
// Constructed once by Classify and never mutated afterwards.
type ErrorInfo struct {
	Kind            ErrorKind
	Retryable       bool
	RetryAfter      time.Duration // suggested wait before retrying; zero when not retryable
	RetryAfterHint  bool          // true when RetryAfter came from the server, not a default
	Severity        Severity
	UserMessage     string
	TechnicalDetail string
}

// Degradable reports whether a locally synthesized fallback report is an
// acceptable substitute after retries are exhausted. Input-side failures
// (auth, invalid request, too large) must surface to the caller instead.
func (i ErrorInfo) Degradable() bool {
	switch i.Kind {
	case KindRateLimit, KindServerUnavailable, KindTimeout, KindConnection:
		return true
	default:
		return false
	}
}

// Default retry-after suggestions per kind, used when the server gives none.
const (
	defaultRateLimitWait  = 60 * time.Second
	defaultServerWait     = 300 * time.Second
	defaultConnectionWait = 30 * time.Second
	defaultTimeoutWait    = 120 * time.Second
)

// Classify maps a raw upstream failure into an ErrorInfo. The mapping is the
// complete retry policy: Retryable here is what bounds the executor's loop
// and what later decides degradation eligibility.
func Classify(err error) ErrorInfo {
	if err == nil {
		return ErrorInfo{Kind: KindUnknown, UserMessage: "unknown error", TechnicalDetail: "classify called with nil error"}
	}

	detail := err.Error()

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status > 0 {
		return classifyStatus(apiErr, detail)
	}

	// Timeouts: explicit deadline, net.Error timeout, or message heuristic.
	if errors.Is(err, context.DeadlineExceeded) || isNetTimeout(err) || strings.Contains(strings.ToLower(detail), "timeout") {
		return ErrorInfo{
			Kind:            KindTimeout,
			Retryable:       true,
			RetryAfter:      defaultTimeoutWait,
			Severity:        SeverityWarning,
			UserMessage:     "The analysis service took too long to respond. Please try again.",
			TechnicalDetail: detail,
		}
	}

	// Connection-level failures: refused, unreachable, unknown host.
	if isConnectionError(err, detail) {
		return ErrorInfo{
			Kind:            KindConnection,
			Retryable:       true,
			RetryAfter:      defaultConnectionWait,
			Severity:        SeverityError,
			UserMessage:     "Could not reach the analysis service. Please try again shortly.",
			TechnicalDetail: detail,
		}
	}

	return ErrorInfo{
		Kind:            KindUnknown,
		Retryable:       false,
		Severity:        SeverityError,
		UserMessage:     "An unexpected error occurred while generating the report.",
		TechnicalDetail: detail,
	}
}

func classifyStatus(apiErr *APIError, detail string) ErrorInfo {
	switch apiErr.Status {
	case 401:
		return ErrorInfo{
			Kind:            KindAuth,
			Retryable:       false,
			Severity:        SeverityCritical,
			UserMessage:     "The service is not authorized to generate reports. Contact support.",
			TechnicalDetail: detail,
		}
	case 429:
		wait := defaultRateLimitWait
		hinted := false
		if apiErr.RetryAfter > 0 {
			wait = apiErr.RetryAfter
			hinted = true
		}
		return ErrorInfo{
			Kind:            KindRateLimit,
			Retryable:       true,
			RetryAfter:      wait,
			RetryAfterHint:  hinted,
			Severity:        SeverityWarning,
			UserMessage:     "The analysis service is busy. Your request will be retried automatically.",
			TechnicalDetail: detail,
		}
	case 500, 502, 503:
		return ErrorInfo{
			Kind:            KindServerUnavailable,
			Retryable:       true,
			RetryAfter:      defaultServerWait,
			Severity:        SeverityError,
			UserMessage:     "The analysis service is temporarily unavailable. Please try again later.",
			TechnicalDetail: detail,
		}
	case 400:
		return ErrorInfo{
			Kind:            KindInvalidRequest,
			Retryable:       false,
			Severity:        SeverityError,
			UserMessage:     "The report request was rejected as invalid. Please review your input.",
			TechnicalDetail: detail,
		}
	case 413:
		return ErrorInfo{
			Kind:            KindTooLarge,
			Retryable:       false,
			Severity:        SeverityError,
			UserMessage:     "The report input is too large. Please reduce the amount of data and retry.",
			TechnicalDetail: detail,
		}
	default:
		return ErrorInfo{
			Kind:            KindUnknown,
			Retryable:       apiErr.Status >= 500,
			Severity:        SeverityError,
			UserMessage:     fmt.Sprintf("The analysis service returned an unexpected error (HTTP %d).", apiErr.Status),
			TechnicalDetail: detail,
		}
	}
}

func isNetTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isConnectionError(err error, detail string) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	lower := strings.ToLower(detail)
	return strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "connection reset")
}

// UpstreamError is the terminal failure returned when the retry executor
// gives up. It carries the final classification and the full attempt history.
type UpstreamError struct {
	Info     ErrorInfo
	Attempts []AttemptRecord
	Err      error // last raw upstream error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream call failed after %d attempt(s) (%s): %v", len(e.Attempts), e.Info.Kind, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
