// Package processing runs the in-flight part of a submission: encode the
// document, send it, and hand the outcome back. Goroutines + a buffered
// channel power the implementation.
package processing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/pdfsummarizer/internal/metrics"
	"github.com/dharsanguruparan/pdfsummarizer/internal/model"
)

var (
	// ErrQueueFull is returned when the queue cannot take another job.
	ErrQueueFull = errors.New("processing queue full")
	// ErrStopped is returned after the processor's context ends.
	ErrStopped = errors.New("processor stopped")
)

// Encoder turns a document into the request payload.
type Encoder interface {
	Encode(doc model.Document) (string, error)
}

// Summarizer performs the remote call.
type Summarizer interface {
	Summarize(ctx context.Context, payload string) (string, error)
}

// Job is one submission waiting for its request.
type Job struct {
	Submission uint64
	ID         string
	Document   model.Document
}

// Result is the outcome of a Job. Exactly one of Summary/Err is meaningful.
type Result struct {
	Job     Job
	Summary string
	Err     error
	Elapsed time.Duration
}

type queued struct {
	job  Job
	done func(Result)
}

// Processor consumes Jobs on a fixed number of workers. With one worker a
// second request is never issued before the first resolves.
type Processor struct {
	encoder Encoder
	client  Summarizer
	queue   chan queued
	workers int
	logger  *logrus.Logger
	metrics *metrics.Metrics

	ctx context.Context

	mu      sync.RWMutex
	stopped bool
}

// New builds a Processor. depth is the queue capacity beyond the jobs being
// worked on.
func New(enc Encoder, client Summarizer, workers, depth int, logger *logrus.Logger, m *metrics.Metrics) *Processor {
	if workers <= 0 {
		workers = 1
	}
	if depth <= 0 {
		depth = 1
	}
	return &Processor{
		encoder: enc,
		client:  client,
		queue:   make(chan queued, depth),
		workers: workers,
		logger:  logger,
		metrics: m,
	}
}

// Start launches worker goroutines. They exit when ctx is cancelled.
func (p *Processor) Start(ctx context.Context) {
	p.ctx = ctx
	for i := 0; i < p.workers; i++ {
		go p.worker(ctx)
	}
}

// Submit queues job without blocking. done is called exactly once from a
// worker goroutine unless Submit returns an error. Jobs still queued when the
// processor stops complete with ErrStopped.
func (p *Processor) Submit(job Job, done func(Result)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped || (p.ctx != nil && p.ctx.Err() != nil) {
		return ErrStopped
	}
	select {
	case p.queue <- queued{job: job, done: done}:
		return nil
	default:
		p.logger.WithField("submission", job.ID).Warn("processor queue full, dropping job")
		return ErrQueueFull
	}
}

func (p *Processor) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.stop()
			return
		case q := <-p.queue:
			if ctx.Err() != nil {
				q.done(Result{Job: q.job, Err: ErrStopped})
				p.stop()
				return
			}
			q.done(p.process(ctx, q.job))
		}
	}
}

// stop refuses further jobs and fails the ones still queued.
func (p *Processor) stop() {
	p.mu.Lock()
	p.stopped = true
	var pending []queued
	for drained := false; !drained; {
		select {
		case q := <-p.queue:
			pending = append(pending, q)
		default:
			drained = true
		}
	}
	p.mu.Unlock()
	for _, q := range pending {
		q.done(Result{Job: q.job, Err: ErrStopped})
	}
}

func (p *Processor) process(ctx context.Context, job Job) Result {
	start := time.Now()
	log := p.logger.WithFields(logrus.Fields{
		"submission": job.ID,
		"sequence":   job.Submission,
		"file":       job.Document.Name,
	})
	payload, err := p.encoder.Encode(job.Document)
	if err != nil {
		return Result{Job: job, Err: err, Elapsed: time.Since(start)}
	}
	log.WithField("payloadBytes", len(payload)).Debug("sending document")
	summary, err := p.client.Summarize(ctx, payload)
	elapsed := time.Since(start)
	p.metrics.RemoteRequest(elapsed)
	if err != nil {
		return Result{Job: job, Err: err, Elapsed: elapsed}
	}
	log.WithFields(logrus.Fields{"elapsed": elapsed, "summaryBytes": len(summary)}).Debug("summary received")
	return Result{Job: job, Summary: summary, Elapsed: elapsed}
}
