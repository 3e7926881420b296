package httputil

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, status int, err error) {
	WriteErrorMessage(w, status, err.Error())
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, message)
}

// WriteTooManyRequests writes a rate limit error (429)
func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusTooManyRequests, message)
}

// WriteInternalError writes an internal server error response (500)
func WriteInternalError(w http.ResponseWriter, err error) {
	WriteError(w, http.StatusInternalServerError, err)
}

// ValidationProblem is a field-level validation error response.
// Shape matches what the SPA's form layer expects: one message list per field.
type ValidationProblem struct {
	Errors map[string][]string `json:"errors"`
}

// NewValidationProblem creates an empty validation problem
func NewValidationProblem() *ValidationProblem {
	return &ValidationProblem{Errors: make(map[string][]string)}
}

// Add appends a message to a field's error list
func (p *ValidationProblem) Add(field, message string) {
	p.Errors[field] = append(p.Errors[field], message)
}

// HasErrors reports whether any field error was recorded
func (p *ValidationProblem) HasErrors() bool {
	return len(p.Errors) > 0
}

// WriteValidationProblem writes the field errors as a 400 response
func WriteValidationProblem(w http.ResponseWriter, p *ValidationProblem) {
	WriteJSON(w, http.StatusBadRequest, p)
}
