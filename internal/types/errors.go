package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies execution failures so retry logic can branch on
// kind rather than message text.
type ErrorKind string

const (
	// KindValidation is a risk-gate rejection. Never retried, surfaced
	// synchronously to the caller.
	KindValidation ErrorKind = "VALIDATION"

	// KindTransientGateway is a network/timeout/broker-busy failure.
	// Retried with backoff up to the configured attempt limit.
	KindTransientGateway ErrorKind = "TRANSIENT_GATEWAY"

	// KindRejectedOrder is an explicit broker rejection. Never retried.
	KindRejectedOrder ErrorKind = "REJECTED_ORDER"

	// KindInsufficientPosition is a ledger invariant violation. Fatal to
	// the call, not the process.
	KindInsufficientPosition ErrorKind = "INSUFFICIENT_POSITION"

	// KindTradingHalted means the circuit breaker is active. Fails fast
	// without contacting the gateway.
	KindTradingHalted ErrorKind = "TRADING_HALTED"

	// KindOrderFailed is a transient failure that exhausted its retries.
	KindOrderFailed ErrorKind = "ORDER_FAILED"
)

// ExecError is the tagged error type used across the execution core.
type ExecError struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *ExecError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// NewValidationError reports a risk-gate rejection.
func NewValidationError(format string, args ...interface{}) *ExecError {
	return &ExecError{Kind: KindValidation, Reason: fmt.Sprintf(format, args...)}
}

// NewTransientGatewayError wraps a retryable transport failure.
func NewTransientGatewayError(err error) *ExecError {
	return &ExecError{Kind: KindTransientGateway, Reason: "gateway unavailable", Err: err}
}

// NewRejectedOrderError reports an explicit broker rejection.
func NewRejectedOrderError(reason string) *ExecError {
	return &ExecError{Kind: KindRejectedOrder, Reason: reason}
}

// NewInsufficientPositionError reports an attempt to close more than held.
func NewInsufficientPositionError(symbol string, requested, held int64) *ExecError {
	return &ExecError{
		Kind:   KindInsufficientPosition,
		Reason: fmt.Sprintf("symbol %s: requested %d, held %d", symbol, requested, held),
	}
}

// NewTradingHaltedError reports a circuit-breaker fast fail.
func NewTradingHaltedError(reason string) *ExecError {
	return &ExecError{Kind: KindTradingHalted, Reason: reason}
}

// NewOrderFailedError wraps a transient failure that exhausted retries.
func NewOrderFailedError(attempts int, err error) *ExecError {
	return &ExecError{
		Kind:   KindOrderFailed,
		Reason: fmt.Sprintf("gave up after %d attempts", attempts),
		Err:    err,
	}
}

// IsKind reports whether err carries the given error kind.
func IsKind(err error, kind ErrorKind) bool {
	var execErr *ExecError
	if errors.As(err, &execErr) {
		return execErr.Kind == kind
	}
	return false
}

// KindOf returns the error kind, or an empty kind for untagged errors.
func KindOf(err error) ErrorKind {
	var execErr *ExecError
	if errors.As(err, &execErr) {
		return execErr.Kind
	}
	return ""
}
