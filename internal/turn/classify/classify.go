// Package classify maps LLM-call failures to the stable error codes the
// pipeline records under the llm.error attribute. It has no
// dependency on any concrete LlmPort adapter: an adapter's wrapped error
// only needs to satisfy codedError or httpStatusError below, or leave an
// embedded "[code]" prefix on its message, for the classifier to place it.
package classify

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Stable error codes recorded under llm.error.
const (
	CodeRateLimit       = "rate_limit"
	CodeAuthentication  = "authentication"
	CodeTimeout         = "timeout"
	CodeInternalServer  = "internal_server"
	CodeInvalidRequest  = "invalid_request"
	CodeHTTPError       = "http_error"
	CodeContentFiltered = "content_filtered"
	CodeModelNotFound   = "model_not_found"
	CodeUnsupported     = "unsupported_feature"
	CodeUnresolvedModel = "unresolved_model_server"
	CodeRetriable       = "retriable"
	CodeNonRetriable    = "non_retriable"
	CodeGenericLlm      = "generic_llm_error"
	CodeRequestAborted  = "request_aborted"
	CodeRequestTimeout  = "request_timeout"
	CodeUnknown         = "unknown"
)

// codedError is implemented by error types that carry an explicit stable
// code, bypassing message/status inspection.
type codedError interface {
	ErrorCode() string
}

// httpStatusError is implemented by error types that carry an HTTP status.
type httpStatusError interface {
	HTTPStatus() int
}

// ClassifyFromThrowable walks err's cause chain (via errors.As) and returns
// the first stable code it can determine, in precedence order:
// embedded bracketed code, coded error, HTTP status, transport/context
// class, domain message pattern, else unknown.
func ClassifyFromThrowable(err error) string {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := ExtractCode(err.Error()); ok {
		return code
	}

	var ce codedError
	if errors.As(err, &ce) {
		return ce.ErrorCode()
	}

	var he httpStatusError
	if errors.As(err, &he) {
		if status := he.HTTPStatus(); status != 0 {
			return classifyStatus(status)
		}
	}

	if errors.Is(err, context.Canceled) {
		return CodeRequestAborted
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeRequestTimeout
	}

	return classifyFromDiagnosticReason(err.Error())
}

// ClassifyFromDiagnostic classifies a bare diagnostic string, as used when an
// error has already been reduced to text (logs, stored attributes).
func ClassifyFromDiagnostic(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return CodeUnknown
	}
	if code, ok := ExtractCode(s); ok {
		return code
	}
	return classifyFromDiagnosticReason(s)
}

// classifyFromDiagnosticReason pattern-matches a diagnostic message against
// the known provider-failure vocabulary (rate limit,
// authentication, content filtered, ...), falling back to a transport-class
// guess and finally unknown.
func classifyFromDiagnosticReason(s string) string {
	lower := strings.ToLower(s)
	switch {
	case containsAny(lower, "timeout", "timed out", "deadline exceeded", "context deadline", "etimedout"):
		return CodeTimeout
	case containsAny(lower, "rate limit", "rate_limit", "too many requests", "429"):
		return CodeRateLimit
	case containsAny(lower, "unauthorized", "invalid api key", "invalid_api_key", "authentication", "401", "403"):
		return CodeAuthentication
	case containsAny(lower, "content_filter", "content policy", "content filtered", "safety", "blocked"):
		return CodeContentFiltered
	case containsAny(lower, "model not found", "model_not_found", "does not exist", "unavailable"):
		return CodeModelNotFound
	case containsAny(lower, "unsupported"):
		return CodeUnsupported
	case containsAny(lower, "no route", "unresolved"):
		return CodeUnresolvedModel
	case containsAny(lower, "internal server", "server error", "500", "502", "503", "504"):
		return CodeInternalServer
	case containsAny(lower, "invalid request", "bad request", "400"):
		return CodeInvalidRequest
	case containsAny(lower, "cancel", "interrupt"):
		return CodeRequestAborted
	default:
		return CodeUnknown
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func classifyStatus(status int) string {
	switch {
	case status == http.StatusTooManyRequests:
		return CodeRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return CodeAuthentication
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return CodeTimeout
	case status >= 500:
		return CodeInternalServer
	case status >= 400:
		return CodeInvalidRequest
	default:
		return CodeHTTPError
	}
}

// ExtractCode pulls a leading "[code]" prefix out of a diagnostic string.
// Returns ("", false) if s does not begin with a well-formed bracketed code.
func ExtractCode(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") {
		return "", false
	}
	end := strings.Index(s, "]")
	if end <= 1 {
		return "", false
	}
	code := s[1:end]
	if code == "" || strings.ContainsAny(code, "[]") {
		return "", false
	}
	return code, true
}

// WithCode prefixes msg with "[code]" unless msg already carries that exact
// bracketed code, making repeated application a no-op.
func WithCode(code, msg string) string {
	prefix := "[" + code + "]"
	if strings.Contains(msg, prefix) {
		return msg
	}
	if msg == "" {
		return prefix
	}
	return prefix + " " + msg
}
