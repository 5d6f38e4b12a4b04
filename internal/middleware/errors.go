package middleware

import (
	"encoding/json"
	"net/http"

	"sitedash/internal/domain"
)

// WriteError answers with the normalized {message, errors} body.
func WriteError(w http.ResponseWriter, err *domain.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatus())
	_ = json.NewEncoder(w).Encode(err)
}
