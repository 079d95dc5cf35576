// Package wire implements the crater agent-api wire protocol: the uniform
// envelope every coordinator response is wrapped in, and the error taxonomy
// surfaced to agents.
package wire

import "encoding/json"

// Status values for the envelope's "status" field.
const (
	StatusSuccess   = "success"
	StatusSlowDown  = "slow-down"
	StatusUnauth    = "unauthorized"
	StatusNotFound  = "not-found"
	StatusInternal  = "internal-error"
)

// Envelope is the uniform response body for every agent-api endpoint.
type Envelope struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Success wraps a payload in a success envelope.
func Success(payload interface{}) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Status: StatusSuccess, Result: raw}, nil
}

// SlowDown builds the retriable "slow-down" envelope.
func SlowDown() Envelope {
	return Envelope{Status: StatusSlowDown}
}

// Unauthorized builds the non-retriable "unauthorized" envelope.
func Unauthorized() Envelope {
	return Envelope{Status: StatusUnauth}
}

// NotFound builds the "not-found" envelope.
func NotFound() Envelope {
	return Envelope{Status: StatusNotFound}
}

// Internal builds the "internal-error" envelope carrying a short message.
// Callers must not leak full internal errors onto the wire; msg should
// already be truncated/sanitized.
func Internal(msg string) Envelope {
	return Envelope{Status: StatusInternal, Error: msg}
}
