package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/facilitydesk/internal/listing"
)

func TestRespondErrorStatuses(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&listing.ValidationError{Fields: map[string]string{"created": "end date must not be before start date"}}, http.StatusUnprocessableEntity},
		{&listing.FetchError{Resource: "pms/assets", Status: 503}, http.StatusBadGateway},
		{fmt.Errorf("view: %w", ErrNotFound), http.StatusNotFound},
		{listing.ErrUnknownAction, http.StatusBadRequest},
		{listing.ErrEmptySelection, http.StatusConflict},
		{listing.ErrSuperseded, http.StatusConflict},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		require.Equal(t, tc.want, rr.Code, tc.err.Error())
		require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	}
}

func TestRespondErrorCarriesFieldErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, &listing.ValidationError{Fields: map[string]string{"status": "is required"}})

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "is required", body.Errors["status"])
	require.Equal(t, http.StatusUnprocessableEntity, body.Status)
}
