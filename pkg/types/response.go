package types

import "encoding/json"

// SuccessEnvelope wraps every 2xx body of the local API and of the remote
// content API ({"data": ...}).
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the error object shared by both APIs. The remote API puts
// the existing entity id for IDEMPOTENCY_KEY_REUSED under details.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ExistingID returns the id of the entity that already owns a reused
// client id, or "" when details carry none.
func (e APIError) ExistingID() string {
	obj, ok := e.Details.(map[string]any)
	if !ok {
		return ""
	}
	for _, key := range []string{"existing_id", "id"} {
		if v, ok := obj[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// DecodeError parses an error body. ok is false for bodies that are not an
// error envelope or have no code.
func DecodeError(body []byte) (APIError, bool) {
	var envelope ErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error.Code == "" {
		return APIError{}, false
	}
	return envelope.Error, true
}
