// Package api carries the HTTP request and response DTOs for the
// gateway's admin and auth surface.
//
// # API Overview
//
// The gateway exposes:
//   - An OpenAI-compatible chat completion surface (/v1/chat/completions,
//     /v1/models), which speaks types.ChatRequest/ChatResponse/Model
//     directly rather than a DTO from this package, so client wire
//     compatibility is preserved byte-for-byte.
//   - Client self-service endpoints for token balance and usage.
//   - An admin authentication surface: a TUI challenge/response flow over
//     Ed25519 keys, and a one-time login-code flow for browser sessions.
//   - Admin CRUD over client tokens and upstream providers/keys.
//
// # Authentication
//
// Requests carry Authorization: Bearer <token> (or the gw_session cookie).
// On /admin/ and /auth/ paths the token is checked against the configured
// admin identity token and then against live admin sessions. On every
// other path it must be an enabled, unexpired client token issued through
// POST /admin/tokens; the admin identity token and admin sessions are not
// accepted there.
//
// # Errors
//
// Every failed request, on any endpoint, returns the same JSON envelope:
//
//	{"error": {"type": "<kind>", "message": "<message>"}}
//
// ErrorKindToHTTPStatus maps each types.ErrorKind to the HTTP status this
// package returns.
package api
