package twikey

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMissingCursor marks a non-empty feed batch returned without an X-LAST header.
var ErrMissingCursor = errors.New("feed batch without X-LAST cursor")

// ConfigError reports a client configuration problem detected before any network call.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "is required"
	}
	return fmt.Sprintf("twikey config: %s %s", e.Field, reason)
}

// AuthError reports a failed login exchange. RetryAfter is set when the server rate limited the login.
type AuthError struct {
	Op         string
	Code       string
	Message    string
	RetryAfter string
	Err        error
}

func (e *AuthError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("twikey %s: %v", e.Op, e.Err)
	case e.RetryAfter != "":
		return fmt.Sprintf("twikey %s: rate limited, retry after %s", e.Op, e.RetryAfter)
	default:
		return fmt.Sprintf("twikey %s: %s - %s", e.Op, e.Code, e.Message)
	}
}

func (e *AuthError) Unwrap() error { return e.Err }

// APIError surfaces an operation rejected by the Twikey API.
type APIError struct {
	Context    string
	StatusCode int
	Code       string
	Message    string
	// Extra is only present for some validation failures.
	Extra string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("twikey %s: status=%d code=%s message=%s", e.Context, e.StatusCode, e.Code, e.Message)
	if e.Extra != "" {
		msg += " extra=" + e.Extra
	}
	return msg
}

// TransportError wraps network failures and malformed responses.
type TransportError struct {
	Context string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("twikey %s: %v", e.Context, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

type errorPayload struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Extra   json.RawMessage `json:"extra,omitempty"`
}

// newAPIError parses the JSON error body. When the body is not usable the request URL and
// raw text stand in for code and message.
func newAPIError(context, rawURL string, status int, body []byte) *APIError {
	apiErr := &APIError{Context: context, StatusCode: status}

	var payload errorPayload
	if err := json.Unmarshal(body, &payload); err == nil && payload.Code != "" {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Message
		apiErr.Extra = rawString(payload.Extra)
		return apiErr
	}

	apiErr.Code = rawURL
	apiErr.Message = strings.TrimSpace(string(body))
	return apiErr
}

// rawString renders a JSON value as text, unquoting plain strings.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
