// Package httputil provides HTTP handler utilities for consistent error
// handling, JSON encoding/decoding, and domain-error status mapping.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/pinstack/pinstack/pkg/hierarchy"
	"github.com/pinstack/pinstack/pkg/registry"
	"github.com/pinstack/pinstack/pkg/resolver"
	"github.com/pinstack/pinstack/pkg/revision"
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

// WriteValidationError writes a validation error response (400 Bad Request)
func WriteValidationError(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteNotFoundError writes a not found error response (404 Not Found)
func WriteNotFoundError(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusNotFound, message)
}

// WriteInternalError writes an internal server error response (500)
func WriteInternalError(w http.ResponseWriter, err error) {
	WriteError(w, http.StatusInternalServerError, err)
}

// WriteCreated writes a successful creation response (201 Created)
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteSuccess writes a successful response (200 OK)
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes a successful response with no content (204)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteConflict writes a conflict error (409)
func WriteConflict(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusConflict, message)
}

// ErrorStatus maps domain errors onto HTTP status codes: malformed input
// is 400, referential conflicts are 409, missing entities are 404, and
// everything else is 500.
func ErrorStatus(err error) int {
	switch {
	case errors.Is(err, hierarchy.ErrMalformedPath),
		errors.Is(err, registry.ErrMalformedDistribution),
		errors.Is(err, resolver.ErrInvalidSearchMode):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrDuplicatePackage),
		errors.Is(err, registry.ErrDuplicateDistribution),
		errors.Is(err, registry.ErrDuplicateDependency),
		errors.Is(err, registry.ErrPackageMismatch):
		return http.StatusConflict
	case errors.Is(err, registry.ErrUnknownPackage),
		errors.Is(err, registry.ErrUnknownDistribution),
		errors.Is(err, registry.ErrUnknownPin),
		errors.Is(err, revision.ErrUnknownRevision):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// WriteDomainError writes err with the status ErrorStatus assigns it.
func WriteDomainError(w http.ResponseWriter, err error) {
	WriteError(w, ErrorStatus(err), err)
}

// DecodeJSON decodes a request body, rejecting unknown fields.
func DecodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
