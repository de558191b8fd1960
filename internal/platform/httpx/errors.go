// Package httpx provides HTTP response utilities.
package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/odyssey-erp/facilitydesk/internal/listing"
)

// Sentinel errors for handlers.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrBadRequest = errors.New("bad request")
	ErrConflict   = errors.New("conflict")
)

// RespondError maps errors to RFC7807 responses.
func RespondError(w http.ResponseWriter, err error) {
	var verr *listing.ValidationError
	var ferr *listing.FetchError
	switch {
	case errors.As(err, &verr):
		writeProblem(w, ProblemDetail{
			Title:  "Validation Failed",
			Status: http.StatusUnprocessableEntity,
			Detail: verr.Error(),
			Errors: verr.Fields,
		})
	case errors.As(err, &ferr):
		status := http.StatusBadGateway
		if ferr.Status == 0 && errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		Problem(w, status, "Upstream Failed", ferr.Error())
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, listing.ErrUnknownField), errors.Is(err, listing.ErrUnknownAction), errors.Is(err, ErrBadRequest):
		Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, listing.ErrEmptySelection), errors.Is(err, listing.ErrNotOnPage), errors.Is(err, ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, listing.ErrSuperseded), errors.Is(err, listing.ErrClosed):
		Problem(w, http.StatusConflict, "Superseded", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
