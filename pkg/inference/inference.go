// Package inference implements the external inference provider
// clients. Two providers exist behind one interface: "openai"
// (OpenAI-compatible chat completions, including self-hosted gateways
// via base_url) and "anthropic" (Messages API). Both make a single
// bounded attempt per call; retry policy belongs to the caller, and no
// caller retries.
package inference

import (
	"context"

	"github.com/responsa-ai/responsa/pkg/config"
	"github.com/responsa-ai/responsa/pkg/fault"
	"github.com/responsa-ai/responsa/pkg/models"
)

// Result is one completed inference call.
type Result struct {
	Text  string
	Usage models.Usage
}

// Provider is the capability surface the engine needs from an
// inference backend.
type Provider interface {
	// Complete synthesizes an answer from a system prompt and user
	// message. Unusable or refused output is KindInference; transport
	// failures and timeouts are KindUpstream.
	Complete(ctx context.Context, system, user string) (*Result, error)
	// Probe cheaply verifies reachability and credentials.
	Probe(ctx context.Context) error
	// Model returns the configured model identifier.
	Model() string
	// Name returns the provider type ("openai", "anthropic").
	Name() string
}

// New builds the configured provider.
func New(cfg config.InferenceConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return newOpenAI(cfg), nil
	case "anthropic":
		return newAnthropic(cfg), nil
	default:
		return nil, fault.Newf(fault.KindConfig, "inference.new", "unknown provider %q", cfg.Provider)
	}
}
