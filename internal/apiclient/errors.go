package apiclient

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"sitedash/internal/domain"
)

type errorBody struct {
	Message string                     `json:"message"`
	Error   string                     `json:"error"`
	Errors  map[string]json.RawMessage `json:"errors"`
}

// decodeError turns a non-2xx response into an APIError. JSON bodies are
// decoded structurally; anything else is used as plain text.
func decodeError(status int, contentType string, data []byte) *domain.APIError {
	apiErr := domain.NewAPIError(status, "")

	if isJSON(contentType) {
		var body errorBody
		if err := json.Unmarshal(data, &body); err == nil {
			msg := strings.TrimSpace(body.Message)
			if msg == "" {
				msg = strings.TrimSpace(body.Error)
			}
			if msg != "" {
				apiErr.Message = msg
			}
			apiErr.FieldErrors = fieldErrors(body.Errors)
		}
		return apiErr
	}

	if text := strings.TrimSpace(string(data)); text != "" {
		apiErr.Message = truncate(text, maxErrorText)
	}
	return apiErr
}

// fieldErrors accepts both {"field": ["msg"]} and {"field": "msg"}.
func fieldErrors(raw map[string]json.RawMessage) map[string][]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string][]string, len(raw))
	for field, v := range raw {
		var list []string
		if err := json.Unmarshal(v, &list); err == nil {
			out[field] = list
			continue
		}
		var one string
		if err := json.Unmarshal(v, &one); err == nil {
			out[field] = []string{one}
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s + "..."
}
