package jobs

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueBulk carries panel actions submitted from list views.
	QueueBulk = "bulk"
	// TaskBulkRun executes one bulk job.
	TaskBulkRun = "bulk:run"
	// TaskBulkPrune removes finished bulk jobs past their retention.
	TaskBulkPrune = "bulk:prune"
)

// BulkRunPayload names the stored job to execute.
type BulkRunPayload struct {
	JobID string `json:"job_id"`
}

// NewBulkRunTask builds the task for a stored bulk job. The job id doubles as the task id
// so a job is never queued twice.
func NewBulkRunTask(jobID string) (*asynq.Task, error) {
	if jobID == "" {
		return nil, errors.New("jobs: bulk job id required")
	}
	body, err := json.Marshal(BulkRunPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBulkRun, body,
		asynq.Queue(QueueBulk),
		asynq.TaskID(jobID),
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
	), nil
}

// BulkPrunePayload configures pruning.
type BulkPrunePayload struct {
	RetentionDays int `json:"retention_days"`
}

// NewBulkPruneTask builds a prune task.
func NewBulkPruneTask(retentionDays int) (*asynq.Task, error) {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	body, err := json.Marshal(BulkPrunePayload{RetentionDays: retentionDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBulkPrune, body, asynq.Queue(QueueDefault)), nil
}
