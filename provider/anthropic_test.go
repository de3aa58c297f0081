package provider

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrelay/gateway/types"
)

func TestToNativeAnthropicPreservesCoreFields(t *testing.T) {
	temp := 0.5
	req := &types.ChatRequest{
		Model: "claude-3-opus",
		Messages: []types.Message{
			types.NewTextMessage(types.RoleSystem, "be terse"),
			types.NewTextMessage(types.RoleUser, "hello"),
		},
		Stream:      true,
		Temperature: &temp,
	}

	native, err := toNativeAnthropic(req)
	require.NoError(t, err)

	assert.Equal(t, req.Model, native.Model)
	assert.Equal(t, "be terse", native.System)
	assert.True(t, native.Stream)
	require.Len(t, native.Messages, 1)
	assert.Equal(t, "user", native.Messages[0].Role)
	require.Len(t, native.Messages[0].Content, 1)
	assert.Equal(t, "hello", native.Messages[0].Content[0].Text)
}

func TestToNativeAnthropicMaxTokensFallbackChain(t *testing.T) {
	req := &types.ChatRequest{Model: "claude-3-opus", Messages: []types.Message{types.NewTextMessage(types.RoleUser, "hi")}}
	native, err := toNativeAnthropic(req)
	require.NoError(t, err)
	assert.Equal(t, 1024, native.MaxTokens)

	maxTokens := 256
	req.MaxTokens = &maxTokens
	native, err = toNativeAnthropic(req)
	require.NoError(t, err)
	assert.Equal(t, 256, native.MaxTokens)

	maxCompletion := 64
	req.MaxCompletionTokens = &maxCompletion
	native, err = toNativeAnthropic(req)
	require.NoError(t, err)
	assert.Equal(t, 64, native.MaxTokens)
}

func TestToolChoiceMapping(t *testing.T) {
	cases := []struct {
		in   string
		want anthropicToolChoice
	}{
		{`"auto"`, anthropicToolChoice{Type: "auto"}},
		{`"required"`, anthropicToolChoice{Type: "any"}},
		{`"none"`, anthropicToolChoice{Type: "none"}},
		{`{"type":"function","function":{"name":"get_weather"}}`, anthropicToolChoice{Type: "tool", Name: "get_weather"}},
	}
	for _, tc := range cases {
		var choice types.ToolChoice
		require.NoError(t, json.Unmarshal([]byte(tc.in), &choice))
		req := &types.ChatRequest{
			Model:      "claude-3-opus",
			Messages:   []types.Message{types.NewTextMessage(types.RoleUser, "hi")},
			ToolChoice: &choice,
		}
		native, err := toNativeAnthropic(req)
		require.NoError(t, err)
		require.NotNil(t, native.ToolChoice)
		assert.Equal(t, tc.want, *native.ToolChoice)
	}
}

func TestStopReasonMapping(t *testing.T) {
	cases := map[string]string{
		"end_turn":      "stop",
		"stop_sequence": "stop",
		"max_tokens":    "length",
		"tool_use":      "tool_calls",
		"refusal":       "content_filter",
		"unknown":       "stop",
	}
	for in, want := range cases {
		assert.Equal(t, want, mapAnthropicStopReason(in))
	}
}

func TestFromNativeAnthropicRedactedThinkingFallback(t *testing.T) {
	resp := &anthropicResponse{
		ID:         "msg_1",
		Model:      "claude-3-opus",
		StopReason: "end_turn",
		Content: []anthropicContent{
			{Type: "text", Text: "hi there"},
			{Type: "redacted_thinking"},
		},
		Usage: anthropicUsage{InputTokens: 10, OutputTokens: 5},
	}

	out := fromNativeAnthropic(resp)
	require.Len(t, out.Choices, 1)
	assert.Equal(t, 15, out.Usage.TotalTokens)

	var wrapped struct {
		Text             string `json:"text"`
		ReasoningContent string `json:"reasoning_content"`
	}
	require.NoError(t, json.Unmarshal(out.Choices[0].Message.Content, &wrapped))
	assert.Equal(t, "hi there", wrapped.Text)
	assert.Equal(t, "[redacted_thinking]", wrapped.ReasoningContent)
}

func TestImageSourceFromURLBase64(t *testing.T) {
	src := imageSourceFromURL("data:image/png;base64,QUJD")
	require.NotNil(t, src)
	assert.Equal(t, "base64", src.Type)
	assert.Equal(t, "image/png", src.MediaType)
	assert.Equal(t, "QUJD", src.Data)
}

func TestImageSourceFromURLHTTP(t *testing.T) {
	src := imageSourceFromURL("https://example.com/cat.png")
	require.NotNil(t, src)
	assert.Equal(t, "url", src.Type)
	assert.Equal(t, "https://example.com/cat.png", src.URL)
}
