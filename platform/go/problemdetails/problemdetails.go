// Package problemdetails implements the RFC 7807 error body shared by every
// HTTP handler.
package problemdetails

import (
	"encoding/json"
	"net/http"
)

// ProblemDetails is the wire form of an API error.
type ProblemDetails struct {
	Type   string              `json:"type,omitempty"`
	Title  string              `json:"title"`
	Status int                 `json:"status"`
	Detail string              `json:"detail,omitempty"`
	Errors map[string][]string `json:"errors,omitempty"`
}

// Write serializes the problem with the application/problem+json content type.
func Write(w http.ResponseWriter, problem ProblemDetails) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(problem.Status)
	_ = json.NewEncoder(w).Encode(problem)
}
