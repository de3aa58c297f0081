// Package types holds the gateway's wire-level types: the OpenAI
// chat-completion shapes used as the canonical internal representation, and
// the structured error taxonomy returned by every fallible operation.
//
// This package has zero dependencies on other gateway packages so that
// store, dispatch, provider and api can all import it without cycles.
package types
