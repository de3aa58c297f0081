// Package handlers implements the gateway's HTTP request handlers: chat
// completion (non-streaming and SSE streaming), model listing, client
// token self-service, admin authentication, admin CRUD, and health
// checks. Every handler is a plain net/http.HandlerFunc-compatible method;
// response/error writing goes through the shared WriteJSON/WriteError
// helpers in common.go so every endpoint's error body takes the same
// {"error": {"type", "message"}} shape.
package handlers
