package apiclient

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

// Result is the envelope every API call resolves to. Exactly one of
// Success with optional Data, or !Success with Error, holds.
type Result[T any] struct {
	Success bool
	Data    *T
	Error   string
	// Status is the HTTP status code, zero when the server was never reached.
	Status int
	// Unauthorized is set on a 401 or when no credential could be resolved.
	// The caller is expected to end the session.
	Unauthorized bool
}

func failure[T any](status int, msg string) Result[T] {
	return Result[T]{Status: status, Error: msg}
}

func unauthorized[T any](status int) Result[T] {
	return Result[T]{Status: status, Error: "Unauthorized", Unauthorized: true}
}

func classify(code int, status string, body []byte) Result[json.RawMessage] {
	switch {
	case code == http.StatusNoContent:
		return Result[json.RawMessage]{Success: true, Status: code}
	case code == http.StatusUnauthorized:
		return unauthorized[json.RawMessage](code)
	case code >= 200 && code < 300:
		res := Result[json.RawMessage]{Success: true, Status: code}
		trimmed := bytes.TrimSpace(body)
		if len(trimmed) > 0 && json.Valid(trimmed) {
			raw := json.RawMessage(trimmed)
			res.Data = &raw
		}
		return res
	default:
		// 400, 403, 404, 405, 409, 422, 429, 500 and anything else outside 2xx.
		return failure[json.RawMessage](code, errorMessage(code, status, body))
	}
}

// errorMessage prefers the body's "message", then "detail", then the status text.
func errorMessage(code int, status string, body []byte) string {
	var parsed map[string]json.RawMessage
	if err := json.Unmarshal(body, &parsed); err == nil {
		for _, key := range []string{"message", "detail"} {
			if msg := fieldText(parsed[key]); msg != "" {
				return msg
			}
		}
	}
	return statusText(code, status)
}

func fieldText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}
	return string(trimmed)
}

// statusText returns the reason phrase the server sent, or the standard one.
func statusText(code int, status string) string {
	if text := strings.TrimSpace(strings.TrimPrefix(status, strconv.Itoa(code))); text != "" {
		return text
	}
	return http.StatusText(code)
}
