package llm

import (
	"context"
	"errors"
)

// ErrMissingCredentials is returned by adapter constructors when no credentials are supplied
var ErrMissingCredentials = errors.New("missing credentials")

// Adapter converts normalized requests to one backing provider and back
type Adapter interface {
	// Name is the model id clients address the adapter by
	Name() string

	// Provider returns the provider name
	Provider() string

	// Description is a human readable summary
	Description() string

	// NativeTools reports whether structured tool declarations are honoured
	NativeTools() bool

	// Generate performs one provider call
	Generate(ctx context.Context, request Request) (*Response, error)

	// EstimateCost prices a call in USD
	EstimateCost(inputTokens, outputTokens int) float64
}

// Pricing holds USD prices per 1K tokens
type Pricing struct {
	InputPer1K  float64
	OutputPer1K float64
}

// Cost prices a token count
func (p Pricing) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1000*p.InputPer1K + float64(outputTokens)/1000*p.OutputPer1K
}

// Info describes a registered adapter
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	Description   string `json:"description"`
	SupportsTools bool   `json:"supports_tools"`
}

// Describe builds the Info for an adapter
func Describe(a Adapter) Info {
	return Info{
		Name:          a.Name(),
		Provider:      a.Provider(),
		Description:   a.Description(),
		SupportsTools: a.NativeTools(),
	}
}
