package provider

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/openrelay/gateway/types"
)

// readSSELines scans an upstream SSE body line by line, forwarding every
// "data: <payload>" line's payload (trimmed) to onData, grounded on
// llm/providers/glm/provider.go's Stream bufio.Reader loop. onData returns
// false to stop early (e.g. after [DONE]).
func readSSELines(body io.Reader, onData func(payload string) bool) error {
	reader := bufio.NewReaderSize(body, 64*1024)
	for {
		line, err := reader.ReadString('\n')
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && strings.HasPrefix(trimmed, "data:") {
			payload := strings.TrimSpace(strings.TrimPrefix(trimmed, "data:"))
			if payload != "" {
				if !onData(payload) {
					return nil
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// extractUsage attempts a typed decode of payload's top-level "usage"
// field first, then falls back to loose extraction via gjson for vendor
// extensions. Returns nil if payload carries no usage at
// all.
func extractUsage(payload string) *types.Usage {
	var typed struct {
		Usage *types.Usage `json:"usage"`
	}
	if err := json.Unmarshal([]byte(payload), &typed); err == nil && typed.Usage != nil {
		u := typed.Usage
		fillLooseUsageExtras(payload, u)
		return u
	}

	result := gjson.Get(payload, "usage")
	if !result.Exists() {
		return nil
	}
	u := &types.Usage{
		PromptTokens:     int(result.Get("prompt_tokens").Int()),
		CompletionTokens: int(result.Get("completion_tokens").Int()),
		TotalTokens:      int(result.Get("total_tokens").Int()),
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	fillLooseUsageExtras(payload, u)
	return u
}

// fillLooseUsageExtras pulls the cached/reasoning token extensions that
// typed decoding (types.Usage has no JSON tags for them) never sees.
func fillLooseUsageExtras(payload string, u *types.Usage) {
	if cached := gjson.Get(payload, "usage.prompt_tokens_details.cached_tokens"); cached.Exists() {
		v := int(cached.Int())
		u.CachedTokens = &v
	}
	if reasoning := gjson.Get(payload, "usage.completion_tokens_details.reasoning_tokens"); reasoning.Exists() {
		v := int(reasoning.Int())
		u.ReasoningTokens = &v
	}
}
