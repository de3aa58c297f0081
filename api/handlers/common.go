package handlers

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"github.com/openrelay/gateway/api"
	"github.com/openrelay/gateway/types"
	"go.uber.org/zap"
)

// WriteJSON writes status and data as a JSON body.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes the {"error":{"type":...,"message":...}} error
// envelope, deriving the HTTP status from err.Kind unless the caller already
// set one explicitly via WithHTTPStatus.
func WriteError(w http.ResponseWriter, err *types.Error, logger *zap.Logger) {
	status := err.HTTPStatus
	if status == 0 {
		status = ErrorKindToHTTPStatus(err.Kind)
	}

	if logger != nil {
		logger.Error("request failed",
			zap.String("kind", string(err.Kind)),
			zap.String("message", err.Message),
			zap.Int("status", status),
			zap.String("provider", err.Provider),
			zap.Error(err.Cause),
		)
	}

	WriteJSON(w, status, api.ErrorEnvelope{Error: api.ErrorBody{
		Type:    string(err.Kind),
		Message: err.Message,
	}})
}

// WriteErrorf is a convenience wrapper for the common case of an ad hoc
// error with no existing *types.Error.
func WriteErrorf(w http.ResponseWriter, kind types.ErrorKind, message string, logger *zap.Logger) {
	WriteError(w, types.NewError(kind, message), logger)
}

// ErrorKindToHTTPStatus implements the error-kind-to-status table.
func ErrorKindToHTTPStatus(kind types.ErrorKind) int {
	switch kind {
	case types.ErrBadRequest, types.ErrConfig:
		return http.StatusBadRequest
	case types.ErrUnauthorized:
		return http.StatusUnauthorized
	case types.ErrForbidden, types.ErrQuotaExceeded:
		return http.StatusForbidden
	case types.ErrNotFound, types.ErrModelNotSupported, types.ErrNoProvider, types.ErrNoKey:
		return http.StatusNotFound
	case types.ErrConflict:
		return http.StatusConflict
	case types.ErrUpstream, types.ErrNetwork:
		return http.StatusBadGateway
	case types.ErrStorage, types.ErrInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSONBody decodes r's body into dst, rejecting bodies over 1 MB and
// unknown fields, and writing the error response itself on failure.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if r.Body == nil {
		err := types.NewError(types.ErrBadRequest, "request body is empty")
		WriteError(w, err, logger)
		return err
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		apiErr := types.NewError(types.ErrBadRequest, "invalid JSON body").WithCause(err)
		WriteError(w, apiErr, logger)
		return apiErr
	}
	return nil
}

// pathParam reads a named path segment, preferring Go 1.22+'s
// http.ServeMux PathValue and falling back to the last non-empty segment
// of the URL path for routers/tests that don't populate it.
func pathParam(r *http.Request, name string) string {
	if v := r.PathValue(name); v != "" {
		return v
	}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

// ValidateContentType rejects any request whose Content-Type is not
// application/json, writing the error response itself on failure.
func ValidateContentType(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		WriteErrorf(w, types.ErrBadRequest, "Content-Type must be application/json", logger)
		return false
	}
	return true
}

// Response is the {"success":...,"data":...} envelope WriteSuccess writes.
type Response struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// WriteSuccess writes data inside a 200 Response envelope.
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Response{Success: true, Data: data})
}
