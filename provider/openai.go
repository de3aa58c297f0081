package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openrelay/gateway/types"
)

// OpenAIFamily talks to any OpenAI-compatible upstream by forwarding the
// request body unchanged ("OpenAI -> OpenAI (pass-through)").
// Grounded on llm/providers/openai/provider.go and llm/providers/common.go.
type OpenAIFamily struct {
	client *http.Client
}

// NewOpenAIFamily builds an OpenAIFamily with the proxy-aware shared client.
func NewOpenAIFamily(timeout time.Duration) *OpenAIFamily {
	return &OpenAIFamily{client: NewHTTPClient(timeout)}
}

func (f *OpenAIFamily) Name() string { return "openai" }

func (f *OpenAIFamily) ChatCompletions(ctx context.Context, baseURL, apiKey string, req *types.ChatRequest) (*types.ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, types.NewError(types.ErrInternal, "failed to encode request").WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, types.NewError(types.ErrInternal, "failed to build request").WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrNetwork, err.Error()).WithProvider(f.Name()).WithRetryable(true).WithCause(err)
	}
	defer SafeCloseBody(resp.Body)

	if resp.StatusCode >= 300 {
		return nil, MapHTTPError(resp.StatusCode, ReadErrorMessage(resp.Body), f.Name())
	}

	var out types.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, types.NewError(types.ErrUpstream, "failed to decode upstream response").WithProvider(f.Name()).WithCause(err)
	}
	return &out, nil
}

func (f *OpenAIFamily) ChatCompletionsStream(ctx context.Context, baseURL, apiKey string, req *types.ChatRequest) (<-chan StreamEvent, error) {
	streamReq := *req
	streamReq.Stream = true
	streamReq.StreamOptions = &types.StreamOptions{IncludeUsage: true}

	body, err := json.Marshal(streamReq)
	if err != nil {
		return nil, types.NewError(types.ErrInternal, "failed to encode request").WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, types.NewError(types.ErrInternal, "failed to build request").WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrNetwork, err.Error()).WithProvider(f.Name()).WithRetryable(true).WithCause(err)
	}

	if resp.StatusCode >= 300 {
		defer SafeCloseBody(resp.Body)
		return nil, MapHTTPError(resp.StatusCode, ReadErrorMessage(resp.Body), f.Name())
	}

	events := make(chan StreamEvent, 8)
	go func() {
		defer SafeCloseBody(resp.Body)
		defer close(events)

		var lastUsage *types.Usage
		err := readSSELines(resp.Body, func(payload string) bool {
			if payload == "[DONE]" {
				if lastUsage != nil {
					events <- StreamEvent{Usage: lastUsage}
				}
				events <- StreamEvent{Raw: "[DONE]", Done: true}
				return false
			}
			if u := extractUsage(payload); u != nil {
				lastUsage = u
			}
			select {
			case events <- StreamEvent{Raw: payload}:
			case <-ctx.Done():
				return false
			}
			return true
		})
		if err != nil {
			events <- StreamEvent{Err: fmt.Errorf("openai stream read: %w", err)}
		}
	}()

	return events, nil
}

func (f *OpenAIFamily) ListModels(ctx context.Context, baseURL, apiKey, modelsEndpoint string) ([]types.Model, error) {
	endpoint := modelsEndpoint
	if endpoint == "" {
		endpoint = strings.TrimRight(baseURL, "/") + "/models"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, types.NewError(types.ErrInternal, "failed to build request").WithCause(err)
	}
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrNetwork, err.Error()).WithProvider(f.Name()).WithRetryable(true).WithCause(err)
	}
	defer SafeCloseBody(resp.Body)

	if resp.StatusCode >= 300 {
		return nil, MapHTTPError(resp.StatusCode, ReadErrorMessage(resp.Body), f.Name())
	}

	var out struct {
		Data []types.Model `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, types.NewError(types.ErrUpstream, "failed to decode models response").WithProvider(f.Name()).WithCause(err)
	}
	return out.Data, nil
}
