package provider

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/openrelay/gateway/types"
)

func TestAdaptZhipuRequestClampsTopP(t *testing.T) {
	topP := 1.0
	req := &types.ChatRequest{Model: "glm-4", Messages: []types.Message{types.NewTextMessage(types.RoleUser, "hi")}, TopP: &topP}

	body, err := adaptZhipuRequest(req)
	require.NoError(t, err)
	assert.Equal(t, 0.99, gjson.GetBytes(body, "top_p").Float())
}

func TestAdaptZhipuRequestLeavesLowerTopPUnchanged(t *testing.T) {
	topP := 0.9
	req := &types.ChatRequest{Model: "glm-4", Messages: []types.Message{types.NewTextMessage(types.RoleUser, "hi")}, TopP: &topP}

	body, err := adaptZhipuRequest(req)
	require.NoError(t, err)
	assert.Equal(t, 0.9, gjson.GetBytes(body, "top_p").Float())
}

func TestAdaptZhipuRequestStripsBase64ImagePrefix(t *testing.T) {
	content := []types.ContentPart{
		{Type: "text", Text: "describe this"},
		{Type: "image_url", ImageURL: &types.ImageURL{URL: "data:image/png;base64,QUJD"}},
	}
	raw, err := json.Marshal(content)
	require.NoError(t, err)

	req := &types.ChatRequest{
		Model:    "glm-4v",
		Messages: []types.Message{{Role: types.RoleUser, Content: raw}},
	}

	body, err := adaptZhipuRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "QUJD", gjson.GetBytes(body, "messages.0.content.1.image_url.url").String())
}

func TestDecodeZhipuResponseUnknownFinishReasonMapsToNull(t *testing.T) {
	data := []byte(`{"id":"1","model":"glm-4","choices":[{"index":0,"finish_reason":"vendor_specific","message":{"role":"assistant","content":"hi"}}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`)
	resp, err := decodeZhipuResponse(data)
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	assert.Nil(t, resp.Choices[0].FinishReason)
}

func TestDecodeZhipuResponseKnownFinishReasonPreserved(t *testing.T) {
	data := []byte(`{"id":"1","model":"glm-4","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"hi"}}]}`)
	resp, err := decodeZhipuResponse(data)
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	require.NotNil(t, resp.Choices[0].FinishReason)
	assert.Equal(t, "stop", *resp.Choices[0].FinishReason)
}

