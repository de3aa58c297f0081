// Package modelid splits "provider/model" identifiers and applies the
// static redirect map, grounded on original_source/src/server/model_parser.rs
// and model_redirect.rs.
package modelid

import "strings"

// Parsed is the result of splitting a client-supplied model identifier.
type Parsed struct {
	Provider     string // empty if the identifier carried no prefix
	UpstreamName string
}

// HasProvider reports whether the identifier carried an explicit
// "provider/" prefix.
func (p Parsed) HasProvider() bool {
	return p.Provider != ""
}

// Parse splits model on the first '/'. "openai/gpt-4o" yields
// {Provider: "openai", UpstreamName: "gpt-4o"}; "gpt-4o" (no slash) yields
// {Provider: "", UpstreamName: "gpt-4o"}.
func Parse(model string) Parsed {
	if idx := strings.IndexByte(model, '/'); idx >= 0 {
		return Parsed{Provider: model[:idx], UpstreamName: model[idx+1:]}
	}
	return Parsed{UpstreamName: model}
}

// Matches reports whether this parsed identifier was explicitly scoped to
// providerName.
func (p Parsed) Matches(providerName string) bool {
	return p.HasProvider() && p.Provider == providerName
}
