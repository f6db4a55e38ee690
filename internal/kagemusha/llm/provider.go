// Package llm provides the text-generation layer for Kagemusha.
//
// The generation service is a black box to the core: prompts go in, imitated
// text comes out. Errors are split into transient conditions (worth one
// bounded retry with backoff) and permanent failures (surfaced to the user as
// an apology). The core never inspects provider internals beyond that split.
package llm

import (
	"context"
	"errors"
)

// ErrRateLimit is returned when the upstream API reports a rate-limiting
// condition (HTTP 429). Rate limits are transient: callers may retry once
// after a backoff.
var ErrRateLimit = errors.New("llm: upstream rate limit exceeded")

// ErrTransient marks upstream failures that are worth a single retry
// (HTTP 5xx, truncated responses). Permanent API errors are returned
// unwrapped so callers fail fast.
var ErrTransient = errors.New("llm: transient upstream error")

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrRateLimit)
}

// Request is a single generation call: a system instruction plus the
// user-role prompt built by the prompt assembler.
type Request struct {
	System string
	User   string
	// MaxTokens caps the completion length. Zero means the provider default.
	MaxTokens int
}

// Provider generates text from a prompt.
//
// Implementations must be safe for concurrent use and must honour ctx
// cancellation so an abandoned chat never leaves a call dangling.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
}
