package bulk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/facilitydesk/internal/backend"
	"github.com/odyssey-erp/facilitydesk/internal/catalog"
	"github.com/odyssey-erp/facilitydesk/internal/listing"
	"github.com/odyssey-erp/facilitydesk/jobs"
)

// Mutator sends writes to the backend.
type Mutator interface {
	Do(ctx context.Context, m backend.Mutation) (json.RawMessage, error)
}

// Invalidator drops cached list pages of a resource.
type Invalidator interface {
	Bump(ctx context.Context, resource string) (int64, error)
}

// Metrics receives per-item outcomes.
type Metrics interface {
	BulkItems(action, outcome string, n int)
}

// RunnerConfig wires a Runner.
type RunnerConfig struct {
	Store       Store
	Catalog     catalog.Holder
	Backend     Mutator
	Cache       Invalidator
	Metrics     Metrics
	Concurrency int
	Logger      *slog.Logger
}

// Runner executes queued bulk jobs.
type Runner struct {
	cfg RunnerConfig
	now func() time.Time
}

// NewRunner constructs a Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{cfg: cfg, now: time.Now}
}

// Handle processes jobs.TaskBulkRun tasks. Items that already succeeded in an earlier
// attempt are not sent again.
func (r *Runner) Handle(ctx context.Context, t *asynq.Task) error {
	var payload jobs.BulkRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.JobID == "" {
		r.cfg.Logger.Warn("bulk payload rejected", slog.Any("error", err))
		return fmt.Errorf("bulk: bad payload: %w", asynq.SkipRetry)
	}
	logger := r.cfg.Logger.With(slog.String("job_id", payload.JobID))

	job, err := r.cfg.Store.GetJob(ctx, payload.JobID)
	if errors.Is(err, ErrJobNotFound) {
		logger.Warn("bulk job missing")
		return fmt.Errorf("bulk: %w: %w", err, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}
	if job.Status.Finished() {
		return nil
	}
	req := job.Request

	ep, err := r.endpoint(req)
	if err != nil {
		_ = r.cfg.Store.Finish(ctx, job.ID, StatusFailed, err.Error())
		logger.Warn("bulk job unroutable", slog.Any("error", err))
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	if err := r.cfg.Store.MarkRunning(ctx, job.ID); err != nil {
		return err
	}

	done := map[string]bool{}
	previous, err := r.cfg.Store.ListItems(ctx, job.ID)
	if err != nil {
		return err
	}
	for _, it := range previous {
		if it.OK {
			done[it.ItemID] = true
		}
	}
	pending := make([]string, 0, len(req.IDs))
	for _, id := range req.IDs {
		if !done[id] {
			pending = append(pending, id)
		}
	}

	var results []ItemResult
	var retryable bool
	if len(pending) > 0 {
		if ep.Batch {
			results, retryable = r.runBatch(ctx, job.ID, req, ep, pending)
		} else {
			results, retryable = r.runEach(ctx, job.ID, req, ep, pending)
		}
		if err := r.cfg.Store.RecordItems(ctx, job.ID, results); err != nil {
			return err
		}
	}
	if _, err := r.cfg.Cache.Bump(ctx, req.Resource); err != nil {
		logger.Warn("page cache bump failed", slog.String("resource", req.Resource), slog.Any("error", err))
	}

	failed := 0
	for _, res := range results {
		if !res.OK {
			failed++
		}
	}
	r.observe(req.Action, len(results)-failed, failed)

	if failed > 0 && retryable && hasRetriesLeft(ctx) {
		logger.Info("bulk job will retry", slog.Int("failed", failed))
		return fmt.Errorf("bulk: %d items failed", failed)
	}

	status := StatusSucceeded
	msg := ""
	switch {
	case failed == 0:
	case failed == len(req.IDs):
		status = StatusFailed
		msg = firstError(results)
	default:
		status = StatusPartial
		msg = firstError(results)
	}
	if err := r.cfg.Store.Finish(ctx, job.ID, status, msg); err != nil {
		return err
	}
	logger.Info("bulk job finished",
		slog.String("status", string(status)),
		slog.Int("items", len(req.IDs)),
		slog.Int("failed", failed))
	return nil
}

func (r *Runner) endpoint(req Request) (catalog.Endpoint, error) {
	if err := req.Validate(); err != nil {
		return catalog.Endpoint{}, err
	}
	view, err := r.cfg.Catalog.Current().View(req.View)
	if err != nil {
		return catalog.Endpoint{}, err
	}
	ep, ok := view.Endpoint(req.Action)
	if !ok {
		return catalog.Endpoint{}, fmt.Errorf("%w: %s/%s", ErrNoEndpoint, req.View, req.Action)
	}
	return ep, nil
}

func (r *Runner) runBatch(ctx context.Context, jobID string, req Request, ep catalog.Endpoint, ids []string) ([]ItemResult, bool) {
	body := map[string]any{"ids": ids}
	for k, v := range req.Params {
		if k != "ids" {
			body[k] = v
		}
	}
	_, err := r.cfg.Backend.Do(ctx, backend.Mutation{Method: ep.Method, Path: ep.Path, Body: body})
	at := r.now().UTC()
	results := make([]ItemResult, 0, len(ids))
	for _, id := range ids {
		results = append(results, outcome(jobID, id, at, err))
	}
	return results, temporary(err)
}

func (r *Runner) runEach(ctx context.Context, jobID string, req Request, ep catalog.Endpoint, ids []string) ([]ItemResult, bool) {
	results := make([]ItemResult, len(ids))
	retry := make([]bool, len(ids))
	var body any
	if len(req.Params) > 0 {
		body = req.Params
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, id := range ids {
		g.Go(func() error {
			_, err := r.cfg.Backend.Do(gctx, backend.Mutation{Method: ep.Method, Path: ep.PathFor(id), Body: body})
			results[i] = outcome(jobID, id, r.now().UTC(), err)
			retry[i] = temporary(err)
			// Item failures are recorded, never propagated, so siblings keep running.
			return nil
		})
	}
	_ = g.Wait()
	for _, t := range retry {
		if t {
			return results, true
		}
	}
	return results, false
}

func (r *Runner) observe(action listing.Action, ok, failed int) {
	if r.cfg.Metrics == nil {
		return
	}
	if ok > 0 {
		r.cfg.Metrics.BulkItems(string(action), "ok", ok)
	}
	if failed > 0 {
		r.cfg.Metrics.BulkItems(string(action), "failed", failed)
	}
}

// Prune handles jobs.TaskBulkPrune.
func (r *Runner) Prune(ctx context.Context, t *asynq.Task) error {
	var payload jobs.BulkPrunePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("bulk: bad prune payload: %w", asynq.SkipRetry)
	}
	if payload.RetentionDays <= 0 {
		payload.RetentionDays = 30
	}
	cutoff := r.now().AddDate(0, 0, -payload.RetentionDays)
	n, err := r.cfg.Store.Prune(ctx, cutoff)
	if err != nil {
		return err
	}
	r.cfg.Logger.Info("bulk jobs pruned", slog.Int64("deleted", n), slog.Time("cutoff", cutoff))
	return nil
}

func outcome(jobID, id string, at time.Time, err error) ItemResult {
	res := ItemResult{JobID: jobID, ItemID: id, OK: err == nil, At: at}
	if err != nil {
		var fe *listing.FetchError
		if errors.As(err, &fe) && fe.Message != "" {
			res.Error = fe.Message
		} else {
			res.Error = err.Error()
		}
	}
	return res
}

func temporary(err error) bool {
	var fe *listing.FetchError
	return errors.As(err, &fe) && fe.Temporary()
}

func hasRetriesLeft(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return false
	}
	limit, ok := asynq.GetMaxRetry(ctx)
	return ok && retried < limit
}

func firstError(results []ItemResult) string {
	for _, r := range results {
		if !r.OK {
			return r.ItemID + ": " + r.Error
		}
	}
	return ""
}
