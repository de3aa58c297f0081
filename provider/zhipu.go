package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/openrelay/gateway/types"
)

// ZhipuFamily talks to Zhipu's GLM OpenAI-compatible endpoint, grounded on
// llm/providers/glm/provider.go. Two adjustments are applied to the request
// per original_source/src/providers/zhipu.rs: the data:image/...;base64,
// prefix is stripped from image_url values, and top_p>=1.0 is clamped to
// 0.99 (Zhipu rejects top_p==1.0).
type ZhipuFamily struct {
	client *http.Client
}

// NewZhipuFamily builds a ZhipuFamily with the proxy-aware shared client.
func NewZhipuFamily(timeout time.Duration) *ZhipuFamily {
	return &ZhipuFamily{client: NewHTTPClient(timeout)}
}

func (f *ZhipuFamily) Name() string { return "zhipu" }

const zhipuChatPath = "/api/paas/v4/chat/completions"
const zhipuModelsPath = "/api/paas/v4/models"
const base64ImagePrefix = "data:image/"

// adaptZhipuRequest applies the Zhipu-specific request quirks on a copy of the
// wire JSON, leaving the canonical types.ChatRequest untouched.
func adaptZhipuRequest(req *types.ChatRequest) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	s := string(body)

	if topP := gjson.Get(s, "top_p"); topP.Exists() && topP.Float() >= 1.0 {
		s, err = sjson.Set(s, "top_p", 0.99)
		if err != nil {
			return nil, err
		}
	}

	messages := gjson.Get(s, "messages")
	messages.ForEach(func(mi, msg gjson.Result) bool {
		content := msg.Get("content")
		if !content.IsArray() {
			return true
		}
		content.ForEach(func(pi, part gjson.Result) bool {
			if part.Get("type").String() != "image_url" {
				return true
			}
			url := part.Get("image_url.url").String()
			if idx := strings.Index(url, ";base64,"); strings.HasPrefix(url, base64ImagePrefix) && idx >= 0 {
				stripped := url[idx+len(";base64,"):]
				path := fmt.Sprintf("messages.%d.content.%d.image_url.url", mi.Int(), pi.Int())
				s, err = sjson.Set(s, path, stripped)
			}
			return true
		})
		return true
	})
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

func (f *ZhipuFamily) ChatCompletions(ctx context.Context, baseURL, apiKey string, req *types.ChatRequest) (*types.ChatResponse, error) {
	body, err := adaptZhipuRequest(req)
	if err != nil {
		return nil, types.NewError(types.ErrInternal, "failed to encode request").WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+zhipuChatPath, bytes.NewReader(body))
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

	data, err := readAllOrError(resp)
	if err != nil {
		return nil, err
	}
	return decodeZhipuResponse(data)
}

// decodeZhipuResponse decodes the OpenAI-shaped response, preserving
// id/model/choices/usage via typed decode and falling back to extractUsage
// (gjson) only when the typed decode yields no usage; a body the typed
// decode rejects is an error. It applies the "Zhipu -> OpenAI (fallback)"
// rule: unknown finish_reason values map to null rather than failing the
// whole response.
func decodeZhipuResponse(data []byte) (*types.ChatResponse, error) {
	var out types.ChatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, types.NewError(types.ErrUpstream, "failed to decode upstream response").WithProvider("zhipu").WithCause(err)
	}
	knownFinish := map[string]bool{"stop": true, "length": true, "tool_calls": true, "content_filter": true}
	for i := range out.Choices {
		if out.Choices[i].FinishReason != nil && !knownFinish[*out.Choices[i].FinishReason] {
			out.Choices[i].FinishReason = nil
		}
	}
	if out.Usage == nil {
		if u := extractUsage(string(data)); u != nil {
			out.Usage = u
		}
	}
	return &out, nil
}

func (f *ZhipuFamily) ChatCompletionsStream(ctx context.Context, baseURL, apiKey string, req *types.ChatRequest) (<-chan StreamEvent, error) {
	streamReq := *req
	streamReq.Stream = true
	body, err := adaptZhipuRequest(&streamReq)
	if err != nil {
		return nil, types.NewError(types.ErrInternal, "failed to encode request").WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+zhipuChatPath, bytes.NewReader(body))
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
			events <- StreamEvent{Err: fmt.Errorf("zhipu stream read: %w", err)}
		}
	}()

	return events, nil
}

func (f *ZhipuFamily) ListModels(ctx context.Context, baseURL, apiKey, modelsEndpoint string) ([]types.Model, error) {
	endpoint := modelsEndpoint
	if endpoint == "" {
		endpoint = strings.TrimRight(baseURL, "/") + zhipuModelsPath
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, types.NewError(types.ErrInternal, "failed to build request").WithCause(err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

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
