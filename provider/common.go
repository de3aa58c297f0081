package provider

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/openrelay/gateway/types"
)

// MapHTTPError maps an upstream HTTP status to the gateway's ErrorKind
// taxonomy, grounded on llm/providers/common.go's MapHTTPError.
func MapHTTPError(status int, body, provider string) *types.Error {
	switch status {
	case http.StatusUnauthorized:
		return types.NewError(types.ErrUnauthorized, body).WithProvider(provider).WithUpstream(status, body)
	case http.StatusForbidden:
		return types.NewError(types.ErrForbidden, body).WithProvider(provider).WithUpstream(status, body)
	case http.StatusTooManyRequests:
		return types.NewError(types.ErrUpstream, body).WithProvider(provider).WithRetryable(true).WithUpstream(status, body)
	case http.StatusBadRequest:
		return types.NewError(types.ErrBadRequest, body).WithProvider(provider).WithUpstream(status, body)
	default:
		if status >= 500 {
			return types.NewError(types.ErrUpstream, body).WithProvider(provider).WithRetryable(true).WithUpstream(status, body)
		}
		return types.NewError(types.ErrUpstream, body).WithProvider(provider).WithUpstream(status, body)
	}
}

// IsRetryableStatus reports whether an upstream HTTP status should trigger
// dispatcher failover: network error, 5xx, or 429.
func IsRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// ReadErrorMessage extracts a human-readable message from an upstream error
// body, preferring the OpenAI-shaped {"error":{"message":...}} envelope and
// falling back to the raw body text.
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil {
		return "failed to read upstream error response"
	}
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &errResp) == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}
	return string(data)
}

// SafeCloseBody closes an HTTP response body, ignoring the close error; the
// response has already been fully read or abandoned by this point.
func SafeCloseBody(body io.ReadCloser) {
	if body != nil {
		_ = body.Close()
	}
}

// MaskAPIKey implements the "Masked" API-key logging strategy: first
// 4 + "****" + last 4, or all "*" if the key is too short to mask safely.
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

// volcesSuffix is the host suffix whose traffic bypasses any configured
// proxy unless GATEWAY_ALLOW_PROXY_FOR_VOLCES is set.
const volcesSuffix = ".volces.com"

// NewHTTPClient builds the shared upstream HTTP client honoring the proxy
// policy: HTTPS_PROXY/HTTP_PROXY/ALL_PROXY (and lowercase variants)
// are respected via http.ProxyFromEnvironment, except for ark.cn-beijing.volces.com
// and any other *.volces.com host, which bypass the proxy unless
// GATEWAY_ALLOW_PROXY_FOR_VOLCES is truthy. There is no ecosystem library for
// proxy resolution; net/http's own resolver is the idiomatic
// building block other Go HTTP clients layer on top of.
func NewHTTPClient(timeout time.Duration) *http.Client {
	allowProxyForVolces := envTruthy("GATEWAY_ALLOW_PROXY_FOR_VOLCES")
	transport := &http.Transport{
		Proxy: func(req *http.Request) (*url.URL, error) {
			if !allowProxyForVolces && strings.HasSuffix(req.URL.Hostname(), volcesSuffix) {
				return nil, nil
			}
			return http.ProxyFromEnvironment(req)
		},
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// readAllOrError reads a successful HTTP response body in full, wrapping
// read failures as an upstream Error.
func readAllOrError(resp *http.Response) ([]byte, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &types.Error{Kind: types.ErrUpstream, Message: "failed to read upstream response", Cause: err}
	}
	return data, nil
}

func envTruthy(name string) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
