// Package errors provides the error taxonomy shared by the zoneagent runtimes.
// It includes error classification, the agent failure kinds, and helper functions
// for consistent error wrapping across publishers, subscribers and the orchestrator.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Agent failure kinds. Every error produced by the runtimes matches exactly one
// of these through errors.Is.
var (
	// ErrConfiguration marks a missing or invalid setting, an unknown entity
	// factory or a shared context that was never populated.
	ErrConfiguration = errors.New("configuration error")
	// ErrConnection marks a zone connect, assign or provision failure.
	ErrConnection = errors.New("connection error")
	// ErrMapping marks a failed mapping resolution.
	ErrMapping = errors.New("mapping error")
	// ErrProcessing marks a failure retrieving, building or handling one record.
	ErrProcessing = errors.New("processing error")
	// ErrDelivery marks a failure sending one event to one zone.
	ErrDelivery = errors.New("delivery error")
)

// Lifecycle and transport conditions
var (
	ErrAlreadyStarted = errors.New("already started")
	ErrNotStarted     = errors.New("not started")
	ErrShuttingDown   = errors.New("shutting down")

	ErrNoConnection      = errors.New("no connection available")
	ErrConnectionLost    = errors.New("connection lost")
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrCircuitOpen       = errors.New("circuit breaker open")
	ErrUnknownZone       = errors.New("unknown zone")

	ErrInvalidData    = errors.New("invalid data format")
	ErrParsingFailed  = errors.New("parsing failed")
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrMissingConfig  = errors.New("missing required configuration")
	ErrConfigNotFound = errors.New("configuration not found")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// IsTransient checks if an error is transient and should be retried
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	if errors.Is(err, ErrConnection) ||
		errors.Is(err, ErrConnectionTimeout) ||
		errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, ErrNoConnection) ||
		errors.Is(err, ErrCircuitOpen) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "connection", "network", "temporary", "unavailable"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsFatal checks if an error is fatal and should stop processing
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	if errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"fatal", "invalid config", "missing config"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsInvalid checks if an error is due to invalid input
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrInvalidData) ||
		errors.Is(err, ErrParsingFailed) ||
		errors.Is(err, ErrMapping) ||
		errors.Is(err, ErrProcessing) ||
		errors.Is(err, ErrDelivery)
}

// Kind returns the agent failure kind an error belongs to, or nil when the
// error does not carry one.
func Kind(err error) error {
	for _, kind := range []error{ErrConfiguration, ErrConnection, ErrMapping, ErrProcessing, ErrDelivery} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}

// kindError joins a failure kind with its cause so both satisfy errors.Is.
type kindError struct {
	kind  error
	cause error
}

func (e *kindError) Error() string {
	if e.cause == nil {
		return e.kind.Error()
	}
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *kindError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.cause}
}

func withKind(kind, cause error) error {
	return &kindError{kind: kind, cause: cause}
}

// Configuration builds a fatal ConfigurationError.
func Configuration(component, method, format string, args ...any) error {
	return WrapFatal(withKind(ErrConfiguration, fmt.Errorf(format, args...)), component, method, "configuration")
}

// WrapConfiguration marks err as a fatal ConfigurationError.
func WrapConfiguration(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return WrapFatal(withKind(ErrConfiguration, err), component, method, action)
}

// WrapConnection marks err as a transient ConnectionError.
func WrapConnection(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return WrapTransient(withKind(ErrConnection, err), component, method, action)
}

// WrapMapping marks err as a MappingError.
func WrapMapping(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return WrapInvalid(withKind(ErrMapping, err), component, method, action)
}

// WrapProcessing marks err as a per-record ProcessingError. A cause that is
// already classified fatal keeps its class so callers can stop iterating.
func WrapProcessing(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	if IsFatal(err) {
		return WrapFatal(withKind(ErrProcessing, err), component, method, action)
	}
	return WrapInvalid(withKind(ErrProcessing, err), component, method, action)
}

// WrapDelivery marks err as a per-zone DeliveryError.
func WrapDelivery(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return WrapInvalid(withKind(ErrDelivery, err), component, method, action)
}
