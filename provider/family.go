package provider

import (
	"context"

	"github.com/openrelay/gateway/types"
)

// StreamEvent is one event produced while consuming an upstream SSE stream.
// Raw is the exact payload to forward to the client after the "data: "
// prefix (never re-serialized, except for the Anthropic synthetic
// fallback, which constructs its own frames). Usage is set when this frame
// carried a non-null usage block; Done marks the terminal "[DONE]" frame.
type StreamEvent struct {
	Raw   string
	Usage *types.Usage
	Done  bool
	Err   error
}

// Family is the capability set a provider family exposes: dispatch through
// a capability set {to_native_request, from_native_response,
// chat_completions, chat_completions_stream?}.
//
// baseURL and apiKey are supplied per call because the dispatcher may pick
// a different key on each failover attempt.
type Family interface {
	// Name identifies the family for error messages and metrics labels,
	// e.g. "openai", "anthropic", "zhipu".
	Name() string

	// ChatCompletions performs one non-streaming upstream call.
	ChatCompletions(ctx context.Context, baseURL, apiKey string, req *types.ChatRequest) (*types.ChatResponse, error)

	// ChatCompletionsStream performs (or synthesizes) a streaming upstream
	// call. The returned channel is closed after the terminal event (Done
	// or Err) is sent.
	ChatCompletionsStream(ctx context.Context, baseURL, apiKey string, req *types.ChatRequest) (<-chan StreamEvent, error)

	// ListModels lists the provider's model catalog for cache refresh.
	ListModels(ctx context.Context, baseURL, apiKey, modelsEndpoint string) ([]types.Model, error)
}
