package chat

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"intake/internal/retry"
	"intake/internal/services"
)

// Platform error codes the client handles specially.
const (
	codeUnknownChannel = 10003
	codeUnknownMember  = 10007
	codeUnknownMessage = 10008
	codeCannotDMUser   = 50007
	codeThreadExists   = 160004
)

// APIError is a non-2xx response from the chat platform.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Code    int
	Message string
	Wait    time.Duration
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != 0 {
		return fmt.Sprintf("chat %s %s: http %d: %s (code %d)", e.Method, e.Path, e.Status, msg, e.Code)
	}
	return fmt.Sprintf("chat %s %s: http %d: %s", e.Method, e.Path, e.Status, msg)
}

// StatusCode returns the HTTP status.
func (e *APIError) StatusCode() int { return e.Status }

// RetryAfter implements retry.RateLimited. A 429 is a rate-limit signal, as is
// any error payload carrying a numeric retry_after.
func (e *APIError) RetryAfter() (time.Duration, bool) {
	if e.Status == http.StatusTooManyRequests || e.Wait > 0 {
		return e.Wait, true
	}
	return 0, false
}

// Unwrap maps the response onto the shared error markers.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusTooManyRequests, e.Status >= 500:
		return services.ErrTransient
	case e.Status == http.StatusNotFound:
		return services.ErrNotFound
	case e.Wait > 0:
		return services.ErrTransient
	default:
		return services.ErrExternal
	}
}

// DirectMessagesClosed reports whether the user does not accept DMs from the bot.
func (e *APIError) DirectMessagesClosed() bool {
	return e.Code == codeCannotDMUser
}

// NotFound reports whether the referenced channel, message, or member is gone.
func (e *APIError) NotFound() bool {
	switch e.Code {
	case codeUnknownChannel, codeUnknownMessage, codeUnknownMember:
		return true
	}
	return e.Status == http.StatusNotFound
}

var _ retry.RateLimited = (*APIError)(nil)

type errorBody struct {
	Code       int     `json:"code"`
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after"`
	Global     bool    `json:"global"`
}

func decodeAPIError(method, path string, resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{
		Method: method,
		Path:   path,
		Status: resp.StatusCode,
	}
	var payload errorBody
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Message
		if payload.RetryAfter > 0 {
			apiErr.Wait = time.Duration(payload.RetryAfter * float64(time.Second))
		}
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.Wait == 0 {
		if wait, ok := retry.ParseRetryAfter(resp.Header.Get("Retry-After")); ok {
			apiErr.Wait = wait
		}
	}
	return apiErr
}
