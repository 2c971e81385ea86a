package adapters

import (
	"errors"
	"fmt"
	"strings"
)

// callError wraps an LLM provider call failure with the HTTP status (when
// known) so internal/turn/classify can assign a stable llm.error code
// without either package depending on the other's wire format. It also
// drives this adapter's own retry/backoff decision in Chat; ChatStream does
// not retry.
type callError struct {
	provider string
	model    string
	status   int
	message  string
	cause    error
}

func newCallError(provider, modelName string, cause error) *callError {
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	return &callError{provider: provider, model: modelName, message: message, cause: cause}
}

func (e *callError) withStatus(status int) *callError {
	e.status = status
	return e
}

func (e *callError) Error() string {
	parts := []string{e.provider}
	if e.model != "" {
		parts = append(parts, "model="+e.model)
	}
	if e.status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.status))
	}
	if e.message != "" {
		parts = append(parts, e.message)
	}
	return strings.Join(parts, " ")
}

func (e *callError) Unwrap() error { return e.cause }

// HTTPStatus satisfies classify's httpStatusError interface, letting the
// orchestrator's classifier map this failure to a stable code by status
// alone.
func (e *callError) HTTPStatus() int { return e.status }

func isCallError(err error) bool {
	var ce *callError
	return errors.As(err, &ce)
}

// isRetryable is this adapter's own retry policy: retry transient failures
// (timeouts, rate limits, server errors), never retry anything that looks
// like an auth, validation, or model-availability problem.
func isRetryable(err error) bool {
	var ce *callError
	if errors.As(err, &ce) && ce.status != 0 {
		switch {
		case ce.status == 429, ce.status == 408, ce.status == 504:
			return true
		case ce.status >= 500:
			return true
		default:
			return false
		}
	}
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "timeout"),
		strings.Contains(lower, "rate limit"),
		strings.Contains(lower, "too many requests"),
		strings.Contains(lower, "server error"),
		strings.Contains(lower, "502"),
		strings.Contains(lower, "503"):
		return true
	default:
		return false
	}
}
