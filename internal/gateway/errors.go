package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrUnauthenticated is returned when a request could not be authorized
// and the one-shot refresh cycle did not recover it. Callers should treat
// it as a signal to re-login.
var ErrUnauthenticated = errors.New("unauthenticated")

// ServerError carries a non-2xx backend response. When the backend supplies
// per-field validation messages they are decoded into Fields so callers can
// surface them next to the offending input.
type ServerError struct {
	Status int
	Body   []byte
	Fields map[string][]string
}

func (e *ServerError) Error() string {
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, msg)
	}
	return fmt.Sprintf("server returned error status: %d", e.Status)
}

// Message extracts a general human-readable message from the response body,
// checking the keys the backend is known to use.
func (e *ServerError) Message() string {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(e.Body, &payload); err != nil {
		return ""
	}
	for _, key := range []string{"error", "detail", "message"} {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		var msg string
		if err := json.Unmarshal(raw, &msg); err == nil {
			return msg
		}
	}
	return ""
}

func newServerError(resp *http.Response) *ServerError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return &ServerError{
		Status: resp.StatusCode,
		Body:   body,
		Fields: parseFieldErrors(body),
	}
}

// parseFieldErrors decodes DRF-style validation bodies, where each field
// maps to either a message or a list of messages.
func parseFieldErrors(body []byte) map[string][]string {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil || len(payload) == 0 {
		return nil
	}

	fields := make(map[string][]string)
	for key, raw := range payload {
		var list []string
		if err := json.Unmarshal(raw, &list); err == nil {
			fields[key] = list
			continue
		}
		var single string
		if err := json.Unmarshal(raw, &single); err == nil {
			fields[key] = []string{single}
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}
