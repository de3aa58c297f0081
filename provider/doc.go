// Package provider implements the per-family request/response translation
// and upstream HTTP calls for OpenAI-, Anthropic-, and Zhipu-shaped
// upstreams, grounded on llm/providers/common.go, llm/providers/glm and
// llm/providers/openai, and original_source/src/providers/*.
//
// A Family is deliberately stateless with respect to credentials: unlike
// a provider struct that bakes a single API key into itself at
// construction, the gateway selects a different key per dispatch attempt,
// so baseURL and apiKey are passed as call parameters -- the same shape
// used by ListModelsOpenAICompat.
package provider
