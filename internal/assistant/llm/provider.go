// Package llm provides the completion gateway: an abstract prompt-to-text
// function with a token-cost side channel, backed by any OpenAI-compatible
// completions endpoint.
//
// The orchestrator treats every failure here as terminal for the current
// message: no retries, no budget charge, no memory write.
package llm

import (
	"context"
	"errors"
)

// ErrAuth is returned when the upstream API rejects the configured
// credential (HTTP 401/403).
var ErrAuth = errors.New("llm: authentication failed")

// ErrRateLimit is returned when the upstream API reports a rate-limiting
// condition (HTTP 429). The orchestrator surfaces a "try again shortly"
// notice for this case specifically.
var ErrRateLimit = errors.New("llm: upstream rate limit exceeded")

// CompletionRequest carries the assembled prompt and per-call options.
type CompletionRequest struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Completion is the result of one gateway call.
type Completion struct {
	// Text is the cleaned response text.
	Text string
	// TokensUsed is the total token cost reported by the API. Zero when the
	// API omits usage accounting.
	TokensUsed int
}

// Provider is the completion gateway interface. Implementations must be safe
// for concurrent use and must honour ctx cancellation and deadlines.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}
