package types

import "encoding/json"

// Role is an OpenAI chat message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleDeveloper Role = "developer"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentPart is one element of a multi-part message content array, as sent
// by OpenAI-compatible clients for multimodal input.
type ContentPart struct {
	Type     string    `json:"type"` // "text" or "image_url"
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL carries either an http(s) URL or a data: URI.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// ToolCall is a single tool invocation requested by the assistant.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // "function"
	Function ToolCallFunc `json:"function"`
}

// ToolCallFunc is the function payload of a ToolCall.
type ToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON text, per OpenAI wire format
}

// ToolSchema declares a callable tool in an OpenAI chat request.
type ToolSchema struct {
	Type     string           `json:"type"` // "function"
	Function ToolSchemaFunc   `json:"function"`
}

// ToolSchemaFunc is the function definition of a ToolSchema.
type ToolSchemaFunc struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Message is a single OpenAI chat message. Content is stored as raw JSON
// because it may be a plain string or an array of ContentPart; callers use
// ContentText/ContentParts to interpret it.
type Message struct {
	Role       Role            `json:"role"`
	Content    json.RawMessage `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

// ContentText returns the message content interpreted as plain text: the
// string itself if Content is a JSON string, or the concatenation (newline
// joined) of all "text" parts if Content is an array.
func (m Message) ContentText() string {
	if len(m.Content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Content, &s); err == nil {
		return s
	}
	parts, ok := m.ContentParts()
	if !ok {
		return ""
	}
	out := ""
	for i, p := range parts {
		if p.Type != "text" {
			continue
		}
		if i > 0 && out != "" {
			out += "\n"
		}
		out += p.Text
	}
	return out
}

// ContentParts returns the message content interpreted as a content-part
// array, and whether Content was actually array-shaped.
func (m Message) ContentParts() ([]ContentPart, bool) {
	if len(m.Content) == 0 {
		return nil, false
	}
	var parts []ContentPart
	if err := json.Unmarshal(m.Content, &parts); err != nil {
		return nil, false
	}
	return parts, true
}

// NewTextMessage builds a Message with plain string content.
func NewTextMessage(role Role, text string) Message {
	raw, _ := json.Marshal(text)
	return Message{Role: role, Content: raw}
}

// ToolChoice mirrors the OpenAI tool_choice field: either the bare string
// "auto"/"none"/"required", or an object selecting one named function.
type ToolChoice struct {
	raw json.RawMessage
}

// UnmarshalJSON accepts both the string and object forms.
func (t *ToolChoice) UnmarshalJSON(b []byte) error {
	t.raw = append([]byte(nil), b...)
	return nil
}

// MarshalJSON returns the original payload.
func (t ToolChoice) MarshalJSON() ([]byte, error) {
	if t.raw == nil {
		return []byte("null"), nil
	}
	return t.raw, nil
}

// String returns "auto", "none", "required" when Choice is the bare string
// form, or "" otherwise.
func (t ToolChoice) String() string {
	var s string
	if err := json.Unmarshal(t.raw, &s); err == nil {
		return s
	}
	return ""
}

// FunctionName returns the selected function name when Choice is the
// {"type":"function","function":{"name":...}} object form.
func (t ToolChoice) FunctionName() (string, bool) {
	var obj struct {
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(t.raw, &obj); err != nil || obj.Function.Name == "" {
		return "", false
	}
	return obj.Function.Name, true
}

// IsEmpty reports whether no tool_choice was sent at all.
func (t ToolChoice) IsEmpty() bool {
	return len(t.raw) == 0 || string(t.raw) == "null"
}

// StreamOptions mirrors OpenAI's stream_options field.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage,omitempty"`
}

// ChatRequest is the canonical internal request shape: an OpenAI
// chat-completions request body.
type ChatRequest struct {
	Model         string         `json:"model"`
	Messages      []Message      `json:"messages"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *StreamOptions `json:"stream_options,omitempty"`
	Temperature   *float64       `json:"temperature,omitempty"`
	TopP          *float64       `json:"top_p,omitempty"`
	MaxTokens     *int           `json:"max_tokens,omitempty"`
	// MaxCompletionTokens is OpenAI's newer field superseding MaxTokens.
	MaxCompletionTokens *int         `json:"max_completion_tokens,omitempty"`
	Stop                []string    `json:"stop,omitempty"`
	Tools               []ToolSchema `json:"tools,omitempty"`
	ToolChoice          *ToolChoice  `json:"tool_choice,omitempty"`
	User                string       `json:"user,omitempty"`
}

// Usage is the token-accounting tuple reported by upstream providers.
type Usage struct {
	PromptTokens     int  `json:"prompt_tokens"`
	CompletionTokens int  `json:"completion_tokens"`
	TotalTokens      int  `json:"total_tokens"`
	CachedTokens     *int `json:"-"`
	ReasoningTokens  *int `json:"-"`
}

// Choice is one completion candidate in a ChatResponse.
type Choice struct {
	Index        int      `json:"index"`
	Message      *Message `json:"message,omitempty"`
	FinishReason *string  `json:"finish_reason"`
}

// ChatResponse is the canonical internal response shape.
type ChatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// StreamDelta is the incremental content of one streamed choice.
type StreamDelta struct {
	Role             Role       `json:"role,omitempty"`
	Content          string     `json:"content,omitempty"`
	ReasoningContent string     `json:"reasoning_content,omitempty"`
	ToolCalls        []ToolCall `json:"tool_calls,omitempty"`
}

// StreamChoice is one choice within a streamed chunk.
type StreamChoice struct {
	Index        int         `json:"index"`
	Delta        StreamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

// ChatStreamChunk is one `data:` JSON payload of an SSE chat stream.
type ChatStreamChunk struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []StreamChoice `json:"choices"`
	Usage   *Usage         `json:"usage,omitempty"`
}

// Model describes one entry returned by GET /v1/models.
type Model struct {
	ID      string `json:"id"` // "<provider>/<upstream-model>"
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}
