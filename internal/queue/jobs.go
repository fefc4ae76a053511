package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/pdfsummarizer/internal/config"
	"github.com/dharsanguruparan/pdfsummarizer/internal/model"
)

const (
	// ArchiveSummaryTask is scheduled each time a summary is received.
	ArchiveSummaryTask = "summary:archive"
)

// ArchivePayload carries the summary itself so the worker needs no access to
// the session.
type ArchivePayload struct {
	SubmissionID string `json:"submission_id"`
	FileName     string `json:"file_name"`
	Summary      string `json:"summary"`
}

// RedisOpt returns the asynq connection settings from cfg.
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// NewArchiveTask builds the asynq task for payload.
func NewArchiveTask(payload ArchivePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(ArchiveSummaryTask, data, asynq.MaxRetry(5)), nil
}

// DecodeArchivePayload is the inverse of NewArchiveTask.
func DecodeArchivePayload(task *asynq.Task) (ArchivePayload, error) {
	var payload ArchivePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ArchivePayload{}, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}

// Enqueuer is the part of *asynq.Client used here.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Archiver forwards successful summaries to the archive queue.
type Archiver struct {
	client Enqueuer
}

// NewArchiver wraps an asynq client.
func NewArchiver(client Enqueuer) *Archiver {
	return &Archiver{client: client}
}

// Deliver enqueues an archive task for rec.
func (a *Archiver) Deliver(ctx context.Context, rec model.SubmissionRecord, summary string) error {
	task, err := NewArchiveTask(ArchivePayload{
		SubmissionID: rec.ID,
		FileName:     rec.FileName,
		Summary:      summary,
	})
	if err != nil {
		return err
	}
	if _, err := a.client.EnqueueContext(ctx, task, asynq.TaskID(rec.ID)); err != nil {
		return fmt.Errorf("enqueue archive task: %w", err)
	}
	return nil
}
