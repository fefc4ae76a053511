// Package session owns the upload state machine: the single source of truth
// for what is currently happening to the user's document.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/pdfsummarizer/internal/metrics"
	"github.com/dharsanguruparan/pdfsummarizer/internal/model"
	"github.com/dharsanguruparan/pdfsummarizer/internal/processing"
	"github.com/dharsanguruparan/pdfsummarizer/internal/reveal"
)

// Messages shown to the user. Failure detail only goes to logs and the journal.
const (
	MessageInvalidType = "Please select a valid PDF file."
	MessageFailed      = "Failed to analyze the document. Please try again."
)

var (
	// ErrBusy is returned for intake while a submission is in flight.
	ErrBusy = errors.New("submission already in flight")
	// ErrResetRequired is returned for intake while a finished submission
	// still holds its document.
	ErrResetRequired = errors.New("reset required before a new submission")
)

const ioTimeout = 5 * time.Second

// Validator decides whether a document may be submitted.
type Validator interface {
	Check(doc model.Document) error
}

// Processor runs the encode and remote call for a job.
type Processor interface {
	Submit(job processing.Job, done func(processing.Result)) error
}

// Journal records submissions for diagnostics.
type Journal interface {
	Save(ctx context.Context, rec *model.SubmissionRecord) error
}

// Sink receives every successful summary, e.g. an archive queue.
type Sink interface {
	Deliver(ctx context.Context, rec model.SubmissionRecord, summary string) error
}

// Options carries the optional collaborators of a Controller.
type Options struct {
	Journal Journal
	Sinks   []Sink
	Metrics *metrics.Metrics
	Logger  *logrus.Logger
	// InvalidMessage overrides MessageInvalidType.
	InvalidMessage string
}

// Controller moves a session through idle, validating, in flight, succeeded,
// and failed. It is safe for concurrent use.
type Controller struct {
	validator      Validator
	processor      Processor
	reveal         *reveal.Scheduler
	journal        Journal
	sinks          []Sink
	metrics        *metrics.Metrics
	logger         *logrus.Logger
	invalidMessage string

	mu       sync.Mutex
	phase    model.Phase
	dragging bool
	errMsg   string
	doc      *model.Document
	summary  string
	// summaryGen is the reveal generation showing summary, 0 if none.
	summaryGen uint64
	seq        uint64
	record     *model.SubmissionRecord
	changed    chan struct{}
}

// New creates a Controller in the idle phase.
func New(v Validator, p Processor, r *reveal.Scheduler, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	msg := opts.InvalidMessage
	if msg == "" {
		msg = MessageInvalidType
	}
	return &Controller{
		validator:      v,
		processor:      p,
		reveal:         r,
		journal:        opts.Journal,
		sinks:          opts.Sinks,
		metrics:        opts.Metrics,
		logger:         logger,
		invalidMessage: msg,
		phase:          model.PhaseIdle,
		changed:        make(chan struct{}),
	}
}

// DragEnter marks a file hovering over the drop target.
func (c *Controller) DragEnter() { c.setDragging(true) }

// DragLeave clears the hover mark.
func (c *Controller) DragLeave() { c.setDragging(false) }

func (c *Controller) setDragging(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dragging == v {
		return
	}
	c.dragging = v
	c.notifyLocked()
}

// Drop submits a dropped file and clears the drag mark.
func (c *Controller) Drop(ctx context.Context, doc model.Document) (uint64, error) {
	c.setDragging(false)
	return c.Submit(ctx, doc)
}

// Select submits a file chosen from a picker.
func (c *Controller) Select(ctx context.Context, doc model.Document) (uint64, error) {
	return c.Submit(ctx, doc)
}

// Submit validates doc and, when it is acceptable, starts a submission. The
// controller takes ownership of doc either way. It returns the submission
// sequence number.
//
// Intake is refused with ErrBusy while a request is outstanding and with
// ErrResetRequired after success or failure until Reset is called. A
// validation failure returns a *validate.ValidationError and leaves the
// session idle with the error message set.
func (c *Controller) Submit(ctx context.Context, doc model.Document) (uint64, error) {
	log := c.logger.WithField("file", doc.Name)

	c.mu.Lock()
	if c.phase == model.PhaseInFlight {
		c.mu.Unlock()
		c.discard(doc)
		c.metrics.Submission(metrics.OutcomeIgnored)
		log.Info("ignoring document while a submission is in flight")
		return 0, ErrBusy
	}
	if c.phase.Terminal() {
		c.mu.Unlock()
		c.discard(doc)
		c.metrics.Submission(metrics.OutcomeIgnored)
		log.Info("ignoring document until the session is reset")
		return 0, ErrResetRequired
	}

	c.phase = model.PhaseValidating
	if err := c.validator.Check(doc); err != nil {
		c.phase = model.PhaseIdle
		c.errMsg = c.invalidMessage
		c.notifyLocked()
		c.mu.Unlock()
		c.discard(doc)
		c.metrics.Submission(metrics.OutcomeRejected)
		log.WithError(err).Info("document rejected")
		return 0, err
	}

	c.seq++
	seq := c.seq
	c.phase = model.PhaseInFlight
	c.errMsg = ""
	c.summary = ""
	c.summaryGen = 0
	c.doc = &doc
	c.reveal.Clear()
	rec := model.SubmissionRecord{
		ID:          uuid.NewString(),
		Sequence:    seq,
		FileName:    doc.Name,
		Size:        doc.Size,
		ContentType: doc.ContentType,
		Status:      model.SubmissionInFlight,
	}
	c.record = &rec
	c.notifyLocked()
	c.mu.Unlock()

	// The job is queued only after this row is written, so the terminal row
	// always lands last.
	c.save(ctx, rec)

	c.mu.Lock()
	if c.phase != model.PhaseInFlight || c.seq != seq {
		// Reset while the row was written: the request is never sent.
		c.mu.Unlock()
		rec.Status = model.SubmissionAbandoned
		log.WithField("submission", rec.ID).Info("submission reset before it was sent")
		c.save(ctx, rec)
		return seq, nil
	}
	job := processing.Job{Submission: seq, ID: rec.ID, Document: doc}
	if err := c.processor.Submit(job, c.complete); err != nil {
		c.phase = model.PhaseFailed
		c.errMsg = MessageFailed
		rec.Status = model.SubmissionFailed
		rec.Detail = err.Error()
		*c.record = rec
		c.notifyLocked()
		c.mu.Unlock()
		c.metrics.Submission(metrics.OutcomeFailed)
		log.WithError(err).WithField("submission", rec.ID).Error("could not start submission")
		c.save(ctx, rec)
		return seq, nil
	}
	c.mu.Unlock()

	log.WithFields(logrus.Fields{"submission": rec.ID, "sequence": seq, "size": doc.SizeMB()}).Info("submission started")
	return seq, nil
}

// complete applies a processing result. Results for anything but the current
// in-flight submission are dropped.
func (c *Controller) complete(res processing.Result) {
	log := c.logger.WithFields(logrus.Fields{
		"submission": res.Job.ID,
		"sequence":   res.Job.Submission,
		"elapsed":    res.Elapsed,
	})

	c.mu.Lock()
	if c.phase != model.PhaseInFlight || res.Job.Submission != c.seq {
		c.mu.Unlock()
		c.metrics.Submission(metrics.OutcomeStale)
		log.Info("dropping result of a superseded submission")
		return
	}
	rec := *c.record
	if res.Err != nil {
		c.phase = model.PhaseFailed
		c.errMsg = MessageFailed
		rec.Status = model.SubmissionFailed
		rec.Detail = res.Err.Error()
	} else {
		c.phase = model.PhaseSucceeded
		c.summary = res.Summary
		c.summaryGen = c.reveal.SetText(res.Summary)
		rec.Status = model.SubmissionSucceeded
		rec.SummarySize = len(res.Summary)
	}
	*c.record = rec
	c.notifyLocked()
	c.mu.Unlock()

	ctx := context.Background()
	if res.Err != nil {
		c.metrics.Submission(metrics.OutcomeFailed)
		log.WithError(res.Err).Error("summarization failed")
		c.save(ctx, rec)
		return
	}
	c.metrics.Submission(metrics.OutcomeSucceeded)
	c.metrics.RevealRestart()
	log.WithField("summaryBytes", len(res.Summary)).Info("summary received")
	c.save(ctx, rec)
	for _, sink := range c.sinks {
		sctx, cancel := context.WithTimeout(ctx, ioTimeout)
		err := sink.Deliver(sctx, rec, res.Summary)
		cancel()
		if err != nil {
			log.WithError(err).Warn("summary sink failed")
		}
	}
}

// Reset returns the session to idle, discarding the document, summary, error,
// and reveal state. A request still outstanding is abandoned; its result is
// dropped when it arrives.
func (c *Controller) Reset(ctx context.Context) {
	c.mu.Lock()
	var abandoned *model.SubmissionRecord
	if c.phase == model.PhaseInFlight && c.record != nil {
		rec := *c.record
		rec.Status = model.SubmissionAbandoned
		abandoned = &rec
	}
	doc := c.doc
	c.phase = model.PhaseIdle
	c.dragging = false
	c.errMsg = ""
	c.summary = ""
	c.summaryGen = 0
	c.doc = nil
	c.record = nil
	c.reveal.Clear()
	c.notifyLocked()
	c.mu.Unlock()

	if doc != nil {
		c.discard(*doc)
	}
	if abandoned != nil {
		c.logger.WithField("submission", abandoned.ID).Info("abandoning in-flight submission")
		c.save(ctx, *abandoned)
	}
}

// Snapshot returns a consistent copy of the session and reveal state.
func (c *Controller) Snapshot() model.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() model.Snapshot {
	f := c.reveal.Frame()
	inFlight := c.phase == model.PhaseInFlight
	s := model.Snapshot{
		Phase:      c.phase,
		Dragging:   c.dragging,
		Uploading:  inFlight,
		Analyzing:  inFlight,
		Error:      c.errMsg,
		Succeeded:  c.phase == model.PhaseSucceeded,
		Submission: c.seq,
		Summary:    c.summary,
		Revealed:   f.Prefix,
		Revealing:  f.Revealing(),
	}
	if c.doc != nil {
		info := c.doc.Info()
		s.Document = &info
	}
	return s
}

// Record returns the journal record of the current submission, if any.
func (c *Controller) Record() (model.SubmissionRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.record == nil {
		return model.SubmissionRecord{}, false
	}
	return *c.record, true
}

// Changes returns a channel closed at the next state change.
func (c *Controller) Changes() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changed
}

// Wait blocks until no submission is in flight and returns that state.
func (c *Controller) Wait(ctx context.Context) (model.Snapshot, error) {
	for {
		c.mu.Lock()
		snap := c.snapshotLocked()
		ch := c.changed
		c.mu.Unlock()
		if snap.Phase != model.PhaseInFlight {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-ch:
		}
	}
}

// ShowsSummary reports whether f belongs to the reveal of the current
// summary. It is false for frames of a cleared or superseded reveal and for
// every frame while no summary has been received.
func (c *Controller) ShowsSummary(f reveal.Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase == model.PhaseSucceeded && f.Generation == c.summaryGen
}

// Frames subscribes to the reveal of the current summary.
func (c *Controller) Frames() (<-chan reveal.Frame, func()) {
	return c.reveal.Subscribe()
}

// Close stops the reveal and releases the held document.
func (c *Controller) Close() {
	c.mu.Lock()
	doc := c.doc
	c.doc = nil
	c.mu.Unlock()
	c.reveal.Close()
	if doc != nil {
		c.discard(*doc)
	}
}

func (c *Controller) notifyLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

func (c *Controller) discard(doc model.Document) {
	d, ok := doc.Source.(model.Discarder)
	if !ok {
		return
	}
	if err := d.Discard(); err != nil {
		c.logger.WithError(err).WithField("file", doc.Name).Warn("discard document")
	}
}

func (c *Controller) save(ctx context.Context, rec model.SubmissionRecord) {
	if c.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, ioTimeout)
	defer cancel()
	if err := c.journal.Save(ctx, &rec); err != nil {
		c.logger.WithError(err).WithField("submission", rec.ID).Warn("journal save failed")
	}
}
