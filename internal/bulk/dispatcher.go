package bulk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/facilitydesk/internal/catalog"
	"github.com/odyssey-erp/facilitydesk/internal/listing"
	"github.com/odyssey-erp/facilitydesk/jobs"
)

// Enqueuer queues a bulk run for a stored job.
type Enqueuer interface {
	EnqueueBulkRun(ctx context.Context, jobID string) (*asynq.TaskInfo, error)
}

// Dispatcher turns panel actions into stored, queued jobs.
type Dispatcher struct {
	store  Store
	queue  Enqueuer
	logger *slog.Logger
	now    func() time.Time
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(store Store, queue Enqueuer, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{store: store, queue: queue, logger: logger, now: time.Now}
}

// For returns the action handler of one view.
func (d *Dispatcher) For(view catalog.View) listing.ActionHandler[listing.Record] {
	return listing.ActionHandlerFunc[listing.Record](func(ctx context.Context, req listing.ActionRequest[listing.Record]) (string, error) {
		if _, ok := view.Endpoint(req.Action); !ok {
			return "", fmt.Errorf("%w: %s", listing.ErrUnknownAction, req.Action)
		}
		return d.Submit(ctx, Request{
			View:     view.Name,
			Resource: req.Resource,
			Action:   req.Action,
			IDs:      req.IDs,
			Items:    req.Items,
			Params:   req.Params,
		})
	})
}

// Submit validates, stores and queues req, returning the job id.
func (d *Dispatcher) Submit(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	now := d.now().UTC()
	job := Job{
		ID:        uuid.NewString(),
		Request:   req,
		Status:    StatusQueued,
		Total:     len(req.IDs),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := d.store.CreateJob(ctx, job); err != nil {
		return "", err
	}
	if _, err := d.queue.EnqueueBulkRun(ctx, job.ID); err != nil {
		_ = d.store.Finish(context.WithoutCancel(ctx), job.ID, StatusFailed, "could not queue job")
		return "", fmt.Errorf("bulk: enqueue %s: %w", jobs.TaskBulkRun, err)
	}
	d.logger.Info("bulk job queued",
		slog.String("job_id", job.ID),
		slog.String("view", req.View),
		slog.String("action", string(req.Action)),
		slog.Int("items", job.Total))
	return job.ID, nil
}
