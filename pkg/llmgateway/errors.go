package llmgateway

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownModel is matched by every UnknownModelError
	ErrUnknownModel = errors.New("unknown model")

	// ErrNoAdapters is returned when a gateway is built without any adapter
	ErrNoAdapters = errors.New("no model adapters registered")
)

// UnknownModelError reports a model id with no registered adapter
type UnknownModelError struct {
	Model     string
	Available []string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown model %q (available: %s)", e.Model, strings.Join(e.Available, ", "))
}

func (e *UnknownModelError) Unwrap() error {
	return ErrUnknownModel
}

// ProviderError wraps a failure returned by a model adapter
type ProviderError struct {
	Model    string
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed for model %s: %v", e.Provider, e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ValidationError reports an invalid generation request
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %v", e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsProviderError reports whether err came from a model adapter
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
