package shared

import (
	"context"
	"errors"
	"net/http"

	"github.com/odyssey-erp/facilitydesk/internal/listing"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// UserSafeMessage converts err into text fit for a banner. Internal details never leak.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	var verr *listing.ValidationError
	if errors.As(err, &verr) {
		return "Please correct the highlighted filters."
	}
	var ferr *listing.FetchError
	if errors.As(err, &ferr) {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return "The server took too long to respond. Showing the last loaded page."
		case ferr.Status == http.StatusUnauthorized || ferr.Status == http.StatusForbidden:
			return "The server rejected the access token."
		case ferr.Status == http.StatusNotFound:
			return "The list is not available on this server."
		case ferr.Status >= 400 && ferr.Status < 500 && ferr.Message != "":
			return ferr.Message
		case ferr.Status == 0:
			return "Could not reach the server. Showing the last loaded page."
		default:
			return "The server failed to load the list. Showing the last loaded page."
		}
	}
	switch {
	case errors.Is(err, listing.ErrEmptySelection):
		return "Select at least one row first."
	case errors.Is(err, listing.ErrUnknownAction):
		return "That action is not available for this list."
	case errors.Is(err, listing.ErrNotOnPage):
		return "That row is no longer on this page."
	case errors.Is(err, ErrNotFound):
		return "Not found."
	}
	return "Something went wrong. Please try again."
}
