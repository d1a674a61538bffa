// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/leonardojasson-oss/jasson-leads-control/internal/shared"
)

var errorStatuses = []struct {
	target error
	status int
	title  string
}{
	{shared.ErrValidation, http.StatusBadRequest, "Validation Failed"},
	{shared.ErrNotFound, http.StatusNotFound, "Not Found"},
	{shared.ErrDuplicate, http.StatusConflict, "Duplicate"},
	{shared.ErrConflict, http.StatusConflict, "Conflict"},
	{shared.ErrBusy, http.StatusConflict, "Busy"},
	{shared.ErrForbidden, http.StatusForbidden, "Forbidden"},
}

// StatusFor returns the HTTP status RespondError would use for err.
func StatusFor(err error) int {
	for _, e := range errorStatuses {
		if errors.Is(err, e.target) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// RespondError maps domain errors to HTTP responses using RFC7807.
// Unknown errors become a 500 without leaking the underlying message.
func RespondError(w http.ResponseWriter, err error) {
	for _, e := range errorStatuses {
		if errors.Is(err, e.target) {
			Problem(w, e.status, e.title, err.Error())
			return
		}
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
