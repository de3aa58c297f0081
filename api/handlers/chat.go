package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/openrelay/gateway/dispatch"
	"github.com/openrelay/gateway/internal/ctxkeys"
	"github.com/openrelay/gateway/internal/metrics"
	"github.com/openrelay/gateway/provider"
	"github.com/openrelay/gateway/quota"
	"github.com/openrelay/gateway/store"
	"github.com/openrelay/gateway/types"
)

// ChatHandler serves the OpenAI-compatible chat completion surface: the
// non-streaming path and the streaming relay. Both share the same
// dispatch, failover and accounting plumbing; they differ only in how the
// upstream response is consumed and written back.
//
// Request and response bodies are types.ChatRequest/types.ChatResponse
// directly, not an api.* DTO, so the wire format stays byte-compatible
// with OpenAI clients.
type ChatHandler struct {
	dispatcher *dispatch.Dispatcher
	families   map[string]provider.Family // keyed by Provider.APIType
	accountant *quota.Accountant
	logs       store.RequestLogStore

	// apiKeyLogPolicy is one of "none", "plain", "masked". Anything
	// else is treated as "masked", the safe default.
	apiKeyLogPolicy string

	// metrics is optional; nil disables quota/failover/stream metrics
	// without affecting request handling.
	metrics *metrics.Collector

	logger *zap.Logger
}

// NewChatHandler builds a ChatHandler over the dispatcher, the registered
// provider families and the quota accountant. collector may be nil.
func NewChatHandler(dispatcher *dispatch.Dispatcher, families map[string]provider.Family, accountant *quota.Accountant, logs store.RequestLogStore, apiKeyLogPolicy string, collector *metrics.Collector, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		dispatcher:      dispatcher,
		families:        families,
		accountant:      accountant,
		logs:            logs,
		apiKeyLogPolicy: apiKeyLogPolicy,
		metrics:         collector,
		logger:          logger,
	}
}

// HandleCompletion validates the token, dispatches and parses
// the requested model, call the upstream with bounded failover, translate
// and return the response, logging exactly one RequestLog row and applying
// the quota delta on success.
func (h *ChatHandler) HandleCompletion(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req types.ChatRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if err := validateChatRequest(&req); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	if req.Stream {
		h.relayStream(w, r, &req)
		return
	}
	req.Stream = false

	ctx := r.Context()
	clientToken, _ := ctxkeys.ClientToken(ctx)
	start := time.Now()

	parsed, attempts, err := h.dispatcher.Select(ctx, req.Model)
	if err != nil {
		apiErr := asAPIError(err)
		h.logRequest(ctx, r, "chat", clientToken, req.Model, "", "", start, httpStatusForErr(apiErr), nil)
		WriteError(w, apiErr, h.logger)
		return
	}

	if _, err := h.accountant.PreCheck(ctx, clientToken, parsed.UpstreamName); err != nil {
		apiErr := asAPIError(err)
		h.recordQuotaRejection(apiErr)
		h.logRequest(ctx, r, "chat", clientToken, req.Model, "", "", start, httpStatusForErr(apiErr), nil)
		WriteError(w, apiErr, h.logger)
		return
	}

	resp, usedProvider, usedKey, callErr := h.callWithFailover(ctx, attempts, &req)
	if callErr != nil {
		apiErr := asAPIError(callErr)
		h.logRequest(ctx, r, "chat", clientToken, req.Model, usedProvider, usedKey, start, httpStatusForErr(apiErr), nil)
		WriteError(w, apiErr, h.logger)
		return
	}

	promptTokens, completionTokens, totalTokens := usageOrZero(resp.Usage)
	if err := h.accountant.PostUpdate(ctx, clientToken, usedProvider, parsed.UpstreamName, promptTokens, completionTokens, totalTokens); err != nil {
		h.logger.Error("failed to apply usage", zap.Error(err))
	}
	h.logRequest(ctx, r, "chat", clientToken, req.Model, usedProvider, usedKey, start, http.StatusOK, resp.Usage)

	WriteJSON(w, http.StatusOK, resp)
}

// callWithFailover tries each dispatch attempt in order, stopping at the
// first success or the first non-retryable failure.
func (h *ChatHandler) callWithFailover(ctx context.Context, attempts []dispatch.Attempt, req *types.ChatRequest) (resp *types.ChatResponse, providerName, apiKey string, err error) {
	for i, attempt := range attempts {
		family := h.families[attempt.Provider.APIType]
		if family == nil {
			err = types.NewError(types.ErrConfig, "no family registered for api_type: "+attempt.Provider.APIType)
			continue
		}
		attemptStart := time.Now()
		resp, err = family.ChatCompletions(ctx, attempt.Provider.BaseURL, attempt.APIKey, req)
		providerName, apiKey = attempt.Provider.Name, attempt.APIKey
		if err == nil {
			promptTokens, completionTokens, _ := usageOrZero(resp.Usage)
			h.recordUpstreamRequest(providerName, req.Model, "success", time.Since(attemptStart), promptTokens, completionTokens)
			return resp, providerName, apiKey, nil
		}
		h.recordUpstreamRequest(providerName, req.Model, "error", time.Since(attemptStart), 0, 0)
		if !types.IsRetryable(err) || i == len(attempts)-1 {
			h.recordFailoverAttempt(attempt.Provider.Name, req.Model, "exhausted")
			return nil, providerName, apiKey, err
		}
		h.recordFailoverAttempt(attempt.Provider.Name, req.Model, "retried")
		h.logger.Warn("chat completion attempt failed, retrying", zap.String("provider", attempt.Provider.Name), zap.Error(err))
	}
	return nil, providerName, apiKey, err
}

// HandleStream forces stream=true, relays every upstream SSE
// frame unchanged, track the latest non-null usage, and apply the
// termination matrix (forwarded [DONE], synthesized [DONE], mid-stream
// error frame, or client-disconnect abort) via a single-shot finish.
func (h *ChatHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req types.ChatRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if err := validateChatRequest(&req); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	h.relayStream(w, r, &req)
}

// relayStream runs the streaming path for an already decoded and validated
// request; HandleCompletion hands stream:true requests here.
func (h *ChatHandler) relayStream(w http.ResponseWriter, r *http.Request, req *types.ChatRequest) {
	req.Stream = true

	ctx := r.Context()
	clientToken, _ := ctxkeys.ClientToken(ctx)
	start := time.Now()

	parsed, attempts, err := h.dispatcher.Select(ctx, req.Model)
	if err != nil {
		apiErr := asAPIError(err)
		h.logRequest(ctx, r, "chat_stream", clientToken, req.Model, "", "", start, httpStatusForErr(apiErr), nil)
		WriteError(w, apiErr, h.logger)
		return
	}

	if _, err := h.accountant.PreCheck(ctx, clientToken, parsed.UpstreamName); err != nil {
		apiErr := asAPIError(err)
		h.recordQuotaRejection(apiErr)
		h.logRequest(ctx, r, "chat_stream", clientToken, req.Model, "", "", start, httpStatusForErr(apiErr), nil)
		WriteError(w, apiErr, h.logger)
		return
	}

	events, usedProvider, usedKey, streamErr := h.openStreamWithFailover(ctx, attempts, req)
	if streamErr != nil {
		apiErr := asAPIError(streamErr)
		h.logRequest(ctx, r, "chat_stream", clientToken, req.Model, usedProvider, usedKey, start, httpStatusForErr(apiErr), nil)
		WriteError(w, apiErr, h.logger)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logRequest(ctx, r, "chat_stream", clientToken, req.Model, usedProvider, usedKey, start, http.StatusInternalServerError, nil)
		WriteErrorf(w, types.ErrInternal, "streaming is not supported on this connection", h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var lastUsage *types.Usage
	done := false
	finish := func(status int) {
		if done {
			return
		}
		done = true
		h.logRequest(ctx, r, "chat_stream", clientToken, req.Model, usedProvider, usedKey, start, status, lastUsage)
		if lastUsage != nil {
			promptTokens, completionTokens, totalTokens := usageOrZero(lastUsage)
			if err := h.accountant.PostUpdate(ctx, clientToken, usedProvider, parsed.UpstreamName, promptTokens, completionTokens, totalTokens); err != nil {
				h.logger.Error("failed to apply streaming usage", zap.Error(err))
			}
		}
	}

	for {
		if ctx.Err() != nil {
			h.recordStreamTermination("client_disconnect")
			finish(499)
			return
		}
		select {
		case <-ctx.Done():
			h.recordStreamTermination("client_disconnect")
			finish(499)
			return
		case ev, ok := <-events:
			if !ok {
				fmt.Fprint(w, "data: [DONE]\n\n")
				flusher.Flush()
				h.recordStreamTermination("done")
				finish(http.StatusOK)
				return
			}
			if ev.Err != nil {
				h.logger.Error("stream relay error", zap.Error(ev.Err))
				msg, _ := json.Marshal(ev.Err.Error())
				fmt.Fprintf(w, "data: error: %s\n\n", msg)
				fmt.Fprint(w, "data: [DONE]\n\n")
				flusher.Flush()
				h.recordStreamTermination("upstream_error")
				finish(httpStatusForErr(asAPIError(ev.Err)))
				return
			}
			if ev.Usage != nil {
				lastUsage = ev.Usage
			}
			if ev.Raw != "" {
				fmt.Fprintf(w, "data: %s\n\n", ev.Raw)
				flusher.Flush()
			}
			if ev.Done {
				h.recordStreamTermination("done")
				finish(http.StatusOK)
				return
			}
		}
	}
}

// openStreamWithFailover mirrors callWithFailover for the streaming path:
// only opening the channel can trigger failover. Once a channel is open,
// upstream errors surface as mid-stream StreamEvents instead and the
// termination matrix in HandleStream takes over.
func (h *ChatHandler) openStreamWithFailover(ctx context.Context, attempts []dispatch.Attempt, req *types.ChatRequest) (events <-chan provider.StreamEvent, providerName, apiKey string, err error) {
	for i, attempt := range attempts {
		family := h.families[attempt.Provider.APIType]
		if family == nil {
			err = types.NewError(types.ErrConfig, "no family registered for api_type: "+attempt.Provider.APIType)
			continue
		}
		events, err = family.ChatCompletionsStream(ctx, attempt.Provider.BaseURL, attempt.APIKey, req)
		providerName, apiKey = attempt.Provider.Name, attempt.APIKey
		if err == nil {
			return events, providerName, apiKey, nil
		}
		if !types.IsRetryable(err) || i == len(attempts)-1 {
			h.recordFailoverAttempt(attempt.Provider.Name, req.Model, "exhausted")
			return nil, providerName, apiKey, err
		}
		h.recordFailoverAttempt(attempt.Provider.Name, req.Model, "retried")
		h.logger.Warn("stream open attempt failed, retrying", zap.String("provider", attempt.Provider.Name), zap.Error(err))
	}
	return nil, providerName, apiKey, err
}

func validateChatRequest(req *types.ChatRequest) *types.Error {
	if req.Model == "" {
		return types.NewError(types.ErrBadRequest, "model is required")
	}
	if len(req.Messages) == 0 {
		return types.NewError(types.ErrBadRequest, "messages cannot be empty")
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		return types.NewError(types.ErrBadRequest, "temperature must be between 0 and 2")
	}
	if req.TopP != nil && (*req.TopP < 0 || *req.TopP > 1) {
		return types.NewError(types.ErrBadRequest, "top_p must be between 0 and 1")
	}
	return nil
}

func usageOrZero(u *types.Usage) (int, int, int) {
	if u == nil {
		return 0, 0, 0
	}
	return u.PromptTokens, u.CompletionTokens, u.TotalTokens
}

// asAPIError coerces any error returned by dispatch/quota/provider code
// (always a *types.Error in practice) into one, defending against a future
// caller forgetting to wrap a plain error.
func asAPIError(err error) *types.Error {
	if e, ok := err.(*types.Error); ok {
		return e
	}
	return types.NewError(types.ErrInternal, err.Error()).WithCause(err)
}

func httpStatusForErr(err *types.Error) int {
	if err.HTTPStatus != 0 {
		return err.HTTPStatus
	}
	return ErrorKindToHTTPStatus(err.Kind)
}

// logRequest writes the single RequestLog row a terminal outcome of a chat
// request produces, never letting a logging failure affect the response
// already written to the client.
func (h *ChatHandler) logRequest(ctx context.Context, r *http.Request, reqType, clientToken, model, providerName, apiKey string, start time.Time, status int, usage *types.Usage) {
	entry := store.RequestLog{
		Timestamp:      time.Now(),
		Method:         r.Method,
		Path:           r.URL.Path,
		RequestType:    reqType,
		Model:          model,
		Provider:       providerName,
		APIKeyDisplay:  h.displayAPIKey(apiKey),
		ClientToken:    clientToken,
		StatusCode:     status,
		ResponseTimeMs: time.Since(start).Milliseconds(),
	}
	if usage != nil {
		p, c, t := usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens
		entry.PromptTokens, entry.CompletionTokens, entry.TotalTokens = &p, &c, &t
	}
	if err := h.logs.LogRequest(ctx, &entry); err != nil {
		h.logger.Error("failed to write request log", zap.Error(err))
	}
}

// recordQuotaRejection records a PreCheck failure, using the error message
// as the reason label: PreCheck only ever returns a small fixed set of
// quota-exceeded messages (see quota.usable), so cardinality stays bounded.
func (h *ChatHandler) recordQuotaRejection(err *types.Error) {
	if h.metrics == nil || err.Kind != types.ErrQuotaExceeded {
		return
	}
	h.metrics.RecordQuotaRejection(err.Message)
}

// recordUpstreamRequest records one upstream call's outcome. Cost is
// reported as 0 here; the accountant computes the priced amount
// separately once usage is known, via PostUpdate.
func (h *ChatHandler) recordUpstreamRequest(providerName, model, status string, duration time.Duration, promptTokens, completionTokens int) {
	if h.metrics == nil {
		return
	}
	h.metrics.RecordUpstreamRequest(providerName, model, status, duration, promptTokens, completionTokens, 0)
}

func (h *ChatHandler) recordFailoverAttempt(providerName, model, outcome string) {
	if h.metrics == nil {
		return
	}
	h.metrics.RecordFailoverAttempt(providerName, model, outcome)
}

func (h *ChatHandler) recordStreamTermination(cause string) {
	if h.metrics == nil {
		return
	}
	h.metrics.RecordStreamTermination(cause)
}

// displayAPIKey implements the logging-policy rule: an upstream API
// key is logged as nothing, verbatim, or masked, never silently defaulting
// to a fourth behavior.
func (h *ChatHandler) displayAPIKey(key string) string {
	if key == "" {
		return ""
	}
	switch h.apiKeyLogPolicy {
	case "plain":
		return key
	case "none":
		return ""
	default:
		return provider.MaskAPIKey(key)
	}
}
