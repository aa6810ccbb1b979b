// Package llm provides clients for upstream completion APIs, the error
// classification that drives the retry policy, and the retry executor itself.
package llm

import (
	"context"
	"fmt"
	"time"
)

// Prompt is the formatted input for one completion call. It is produced by
// the report prompt builder; this package never inspects its contents.
type Prompt struct {
	System string
	User   string
}

// TokenUsage holds token counts for a single completion.
type TokenUsage struct {
	Prompt     int `json:"prompt_tokens"`
	Completion int `json:"completion_tokens"`
	Total      int `json:"total_tokens"`
}

// CompletionResult is the successful outcome of one upstream call.
type CompletionResult struct {
	RawText      string
	FinishReason string
	Model        string
	Usage        TokenUsage
}

// CallOptions are the per-call parameters passed through to the provider.
type CallOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// CompletionClient is the interface to an upstream completion API.
// Implementations must honor ctx cancellation and return an *APIError for
// HTTP-level failures so the classifier can read the status code.
type CompletionClient interface {
	Complete(ctx context.Context, prompt Prompt, opts CallOptions) (*CompletionResult, error)
}

// APIError carries upstream failure detail for classification.
// Constructed by provider clients, consumed by Classify.
type APIError struct {
	Status     int
	Code       string
	Message    string
	RetryAfter time.Duration // parsed from the Retry-After header when present
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("upstream API error (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("upstream API error: %s", e.Message)
}
