package worker

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/pdfsummarizer/internal/queue"
)

// SummaryStore receives archived summaries.
type SummaryStore interface {
	PutSummary(ctx context.Context, objectKey, summary string) error
}

// ArchiveJournal records where a summary was archived.
type ArchiveJournal interface {
	MarkArchived(ctx context.Context, id, key string) error
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	journal ArchiveJournal
	store   SummaryStore
	log     logrus.FieldLogger
}

// NewProcessor constructs a worker processor. journal may be nil when no
// database is configured.
func NewProcessor(journal ArchiveJournal, store SummaryStore, log logrus.FieldLogger) *Processor {
	return &Processor{journal: journal, store: store, log: log}
}

// Handler registers the archive job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.ArchiveSummaryTask, p.handleArchive)
	return mux
}

func (p *Processor) handleArchive(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.DecodeArchivePayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	entry := p.log.WithField("submission", payload.SubmissionID)
	if payload.SubmissionID == "" {
		return fmt.Errorf("archive task without submission id: %w", asynq.SkipRetry)
	}

	key := summaryObjectKey(payload.SubmissionID, payload.FileName)
	if err := p.store.PutSummary(ctx, key, payload.Summary); err != nil {
		entry.WithError(err).Warn("archive upload failed")
		return err
	}
	if p.journal != nil {
		if err := p.journal.MarkArchived(ctx, payload.SubmissionID, key); err != nil {
			entry.WithError(err).Warn("archive journal update failed")
			return err
		}
	}
	entry.WithFields(logrus.Fields{"key": key, "bytes": len(payload.Summary)}).Info("summary archived")
	return nil
}

func summaryObjectKey(id, fileName string) string {
	base := filepath.Base(strings.ReplaceAll(fileName, "\\", "/"))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == "/" {
		base = "summary"
	}
	return path.Join("summaries", id, base+".md")
}
