package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/openrelay/gateway/dispatch"
	"github.com/openrelay/gateway/internal/ctxkeys"
	"github.com/openrelay/gateway/provider"
	"github.com/openrelay/gateway/quota"
	"github.com/openrelay/gateway/store"
	"github.com/openrelay/gateway/types"
)

// fakeFamily is a scriptable provider.Family double: each call pops the next
// queued response/error, letting tests drive exact failover sequences.
type fakeFamily struct {
	name        string
	responses   []*types.ChatResponse
	errs        []error
	events      []<-chan provider.StreamEvent
	streamErrs  []error
	calls       int
	streamCalls int
}

func (f *fakeFamily) Name() string { return f.name }

func (f *fakeFamily) ChatCompletions(ctx context.Context, baseURL, apiKey string, req *types.ChatRequest) (*types.ChatResponse, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) && f.responses[i] != nil {
		return f.responses[i], nil
	}
	return &types.ChatResponse{ID: "resp", Model: req.Model}, nil
}

func (f *fakeFamily) ChatCompletionsStream(ctx context.Context, baseURL, apiKey string, req *types.ChatRequest) (<-chan provider.StreamEvent, error) {
	i := f.streamCalls
	f.streamCalls++
	if i < len(f.streamErrs) && f.streamErrs[i] != nil {
		return nil, f.streamErrs[i]
	}
	if i < len(f.events) {
		return f.events[i], nil
	}
	ch := make(chan provider.StreamEvent)
	close(ch)
	return ch, nil
}

func (f *fakeFamily) ListModels(ctx context.Context, baseURL, apiKey, modelsEndpoint string) ([]types.Model, error) {
	return nil, nil
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, store.AutoMigrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return store.NewGormStore(db)
}

// seedProvider registers a provider with one enabled key and, when model is
// non-empty, caches it so unscoped ("bare model") dispatch can find it.
func seedProvider(t *testing.T, ctx context.Context, s store.Store, name, apiType, key, model string) store.Provider {
	t.Helper()
	p := &store.Provider{Name: name, APIType: apiType, BaseURL: "https://" + name + ".example.com"}
	require.NoError(t, s.CreateProvider(ctx, p))
	_, err := s.AddAPIKey(ctx, p.ID, key, 0, 0)
	require.NoError(t, err)
	if model != "" {
		require.NoError(t, s.CacheModels(ctx, p.ID, []store.CachedModel{{ModelID: model}}))
	}
	got, err := s.GetProvider(ctx, name)
	require.NoError(t, err)
	return *got
}

func newChatHandler(t *testing.T, s store.Store, families map[string]provider.Family) *ChatHandler {
	t.Helper()
	ctx := context.Background()
	registry := dispatch.NewRegistry(s, s, dispatch.StrategyFirstAvailable)
	require.NoError(t, registry.Reload(ctx))
	dispatcher := dispatch.NewDispatcher(registry, nil)
	accountant := quota.NewAccountant(s, s)
	return NewChatHandler(dispatcher, families, accountant, s, "masked", nil, zap.NewNop())
}

func chatRequestBody(model string) string {
	body, _ := json.Marshal(types.ChatRequest{
		Model:    model,
		Messages: []types.Message{types.NewTextMessage(types.RoleUser, "hi")},
	})
	return string(body)
}

func TestHandleCompletion_Success(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedProvider(t, ctx, s, "openai", "openai", "sk-live-key", "gpt-4o")
	require.NoError(t, s.CreateToken(ctx, &store.AdminToken{Token: "client-tok", Enabled: true}))

	family := &fakeFamily{name: "openai", responses: []*types.ChatResponse{
		{ID: "chatcmpl-1", Model: "gpt-4o", Usage: &types.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}},
	}}
	h := newChatHandler(t, s, map[string]provider.Family{"openai": family})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(chatRequestBody("openai/gpt-4o")))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(ctxkeys.WithClientToken(req.Context(), "client-tok"))
	w := httptest.NewRecorder()

	h.HandleCompletion(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp types.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "chatcmpl-1", resp.ID)

	logs, err := s.RecentLogs(ctx, "client-tok", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "chat", logs[0].RequestType)
	assert.Equal(t, http.StatusOK, logs[0].StatusCode)

	tok, err := s.GetToken(ctx, "client-tok")
	require.NoError(t, err)
	assert.EqualValues(t, 15, tok.TotalTokensSpent)
}

func TestHandleCompletion_FailsOverOnRetryableError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := seedProvider(t, ctx, s, "openai", "openai", "sk-first", "gpt-4o")
	_, err := s.AddAPIKey(ctx, p.ID, "sk-second", 1, 0)
	require.NoError(t, err)
	require.NoError(t, s.CreateToken(ctx, &store.AdminToken{Token: "client-tok", Enabled: true}))

	family := &fakeFamily{
		name: "openai",
		errs: []error{types.NewError(types.ErrUpstream, "rate limited").WithRetryable(true)},
		responses: []*types.ChatResponse{
			nil,
			{ID: "chatcmpl-2", Model: "gpt-4o"},
		},
	}
	h := newChatHandler(t, s, map[string]provider.Family{"openai": family})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(chatRequestBody("openai/gpt-4o")))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(ctxkeys.WithClientToken(req.Context(), "client-tok"))
	w := httptest.NewRecorder()

	h.HandleCompletion(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, family.calls)
}

func TestHandleCompletion_QuotaExceededReturns403(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedProvider(t, ctx, s, "openai", "openai", "sk-live-key", "gpt-4o")
	require.NoError(t, s.CreateToken(ctx, &store.AdminToken{Token: "client-tok", Enabled: false}))

	h := newChatHandler(t, s, map[string]provider.Family{"openai": &fakeFamily{name: "openai"}})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(chatRequestBody("openai/gpt-4o")))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(ctxkeys.WithClientToken(req.Context(), "client-tok"))
	w := httptest.NewRecorder()

	h.HandleCompletion(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	var envelope struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, string(types.ErrQuotaExceeded), envelope.Error.Type)
}

func TestHandleCompletion_UnknownModelReturns404(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateToken(ctx, &store.AdminToken{Token: "client-tok", Enabled: true}))

	h := newChatHandler(t, s, map[string]provider.Family{})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(chatRequestBody("nonexistent/model-x")))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(ctxkeys.WithClientToken(req.Context(), "client-tok"))
	w := httptest.NewRecorder()

	h.HandleCompletion(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleStream_ForwardsFramesAndTerminatesOnDone(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedProvider(t, ctx, s, "openai", "openai", "sk-live-key", "gpt-4o")
	require.NoError(t, s.CreateToken(ctx, &store.AdminToken{Token: "client-tok", Enabled: true}))

	events := make(chan provider.StreamEvent, 4)
	events <- provider.StreamEvent{Raw: `{"id":"1","choices":[{"delta":{"content":"hi"}}]}`}
	events <- provider.StreamEvent{Usage: &types.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5}}
	events <- provider.StreamEvent{Raw: "[DONE]", Done: true}
	close(events)

	family := &fakeFamily{name: "openai", events: []<-chan provider.StreamEvent{events}}
	h := newChatHandler(t, s, map[string]provider.Family{"openai": family})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(chatRequestBody("openai/gpt-4o")))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(ctxkeys.WithClientToken(req.Context(), "client-tok"))
	w := httptest.NewRecorder()

	h.HandleStream(w, req)

	body := w.Body.String()
	assert.Contains(t, body, `data: {"id":"1"`)
	assert.Contains(t, body, "data: [DONE]\n\n")
	assert.Equal(t, 1, strings.Count(body, "[DONE]"))

	tok, err := s.GetToken(ctx, "client-tok")
	require.NoError(t, err)
	assert.EqualValues(t, 5, tok.TotalTokensSpent)
}

func TestHandleStream_MidStreamErrorWritesErrorFrame(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedProvider(t, ctx, s, "openai", "openai", "sk-live-key", "gpt-4o")
	require.NoError(t, s.CreateToken(ctx, &store.AdminToken{Token: "client-tok", Enabled: true}))

	events := make(chan provider.StreamEvent, 1)
	events <- provider.StreamEvent{Err: types.NewError(types.ErrUpstream, "connection reset")}
	close(events)

	family := &fakeFamily{name: "openai", events: []<-chan provider.StreamEvent{events}}
	h := newChatHandler(t, s, map[string]provider.Family{"openai": family})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(chatRequestBody("openai/gpt-4o")))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(ctxkeys.WithClientToken(req.Context(), "client-tok"))
	w := httptest.NewRecorder()

	h.HandleStream(w, req)

	body := w.Body.String()
	assert.Contains(t, body, "data: error:")
	assert.Contains(t, body, "data: [DONE]\n\n")

	logs, err := s.RecentLogs(ctx, "client-tok", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, http.StatusBadGateway, logs[0].StatusCode)
}

func TestValidateChatRequest(t *testing.T) {
	cases := []struct {
		name    string
		req     types.ChatRequest
		wantErr bool
	}{
		{"missing model", types.ChatRequest{Messages: []types.Message{types.NewTextMessage(types.RoleUser, "hi")}}, true},
		{"missing messages", types.ChatRequest{Model: "gpt-4o"}, true},
		{"valid", types.ChatRequest{Model: "gpt-4o", Messages: []types.Message{types.NewTextMessage(types.RoleUser, "hi")}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateChatRequest(&tc.req)
			if tc.wantErr {
				assert.NotNil(t, err)
			} else {
				assert.Nil(t, err)
			}
		})
	}
}

func TestDisplayAPIKey(t *testing.T) {
	h := &ChatHandler{apiKeyLogPolicy: "masked"}
	assert.Equal(t, provider.MaskAPIKey("sk-1234567890"), h.displayAPIKey("sk-1234567890"))

	h.apiKeyLogPolicy = "none"
	assert.Equal(t, "", h.displayAPIKey("sk-1234567890"))

	h.apiKeyLogPolicy = "plain"
	assert.Equal(t, "sk-1234567890", h.displayAPIKey("sk-1234567890"))
}
