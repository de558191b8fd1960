// Package bulk runs selection panel actions in the background and keeps their outcome.
package bulk

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/facilitydesk/internal/listing"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed"
)

// Finished reports whether the job will not change any more.
func (s Status) Finished() bool {
	return s == StatusSucceeded || s == StatusPartial || s == StatusFailed
}

var (
	// ErrJobNotFound is returned for unknown job ids.
	ErrJobNotFound = errors.New("bulk: job not found")
	// ErrNoEndpoint is returned when the view binds no endpoint to the action.
	ErrNoEndpoint = errors.New("bulk: action not bound for view")
)

// Request is the work a job performs.
type Request struct {
	View     string            `json:"view" validate:"required"`
	Resource string            `json:"resource" validate:"required"`
	Action   listing.Action    `json:"action" validate:"required,oneof=move dispose print check_in"`
	IDs      []string          `json:"ids" validate:"required,min=1,dive,required"`
	Items    []listing.Record  `json:"items,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
}

var validate = validator.New()

// Validate checks the request shape.
func (r Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("bulk: invalid request: %s failed %s", fe.Field(), fe.Tag())
		}
		return fmt.Errorf("bulk: invalid request: %w", err)
	}
	return nil
}

// Job is a stored bulk action.
type Job struct {
	ID        string    `json:"id"`
	Request   Request   `json:"request"`
	Status    Status    `json:"status"`
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ItemResult is the outcome for one selected row.
type ItemResult struct {
	JobID  string    `json:"job_id"`
	ItemID string    `json:"item_id"`
	OK     bool      `json:"ok"`
	Error  string    `json:"error,omitempty"`
	At     time.Time `json:"at"`
}
