// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// ErrValidation marks request bodies that failed decoding or validation.
var ErrValidation = errors.New("validation failed")

// Mapping pairs a sentinel error with the problem it renders as.
type Mapping struct {
	Err    error
	Status int
	Title  string
}

// RespondError maps domain errors to HTTP responses using RFC7807.
// The first mapping whose sentinel matches wins; unmatched errors are 500s.
func RespondError(w http.ResponseWriter, err error, mappings ...Mapping) {
	for _, m := range mappings {
		if errors.Is(err, m.Err) {
			Problem(w, m.Status, m.Title, err.Error())
			return
		}
	}
	if errors.Is(err, ErrValidation) {
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
