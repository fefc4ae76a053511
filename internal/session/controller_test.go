package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/pdfsummarizer/internal/encoder"
	"github.com/dharsanguruparan/pdfsummarizer/internal/logging"
	"github.com/dharsanguruparan/pdfsummarizer/internal/model"
	"github.com/dharsanguruparan/pdfsummarizer/internal/processing"
	"github.com/dharsanguruparan/pdfsummarizer/internal/remote"
	"github.com/dharsanguruparan/pdfsummarizer/internal/reveal"
	"github.com/dharsanguruparan/pdfsummarizer/internal/storage"
	"github.com/dharsanguruparan/pdfsummarizer/internal/validate"
)

type fakeProcessor struct {
	mu    sync.Mutex
	jobs  []processing.Job
	dones []func(processing.Result)
	err   error
}

func (f *fakeProcessor) Submit(job processing.Job, done func(processing.Result)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	f.dones = append(f.dones, done)
	return nil
}

func (f *fakeProcessor) finish(i int, summary string, err error) {
	f.mu.Lock()
	job, done := f.jobs[i], f.dones[i]
	f.mu.Unlock()
	done(processing.Result{Job: job, Summary: summary, Err: err})
}

func (f *fakeProcessor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

type recordingSink struct {
	mu        sync.Mutex
	summaries []string
}

func (s *recordingSink) Deliver(_ context.Context, _ model.SubmissionRecord, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, summary)
	return nil
}

func pdfDoc(name string, data []byte) model.Document {
	return model.Document{Name: name, ContentType: "application/pdf", Size: int64(len(data)), Source: model.BytesSource(data)}
}

func newFakeController(t *testing.T, p Processor, opts Options) *Controller {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	c := New(validate.New("application/pdf", ".pdf"), p, reveal.New(time.Millisecond), opts)
	t.Cleanup(c.Close)
	return c
}

type remoteStub struct {
	server *httptest.Server
	calls  int32
	bodies chan string
}

func newRemote(t *testing.T, status int, body string) *remoteStub {
	t.Helper()
	stub := &remoteStub{bodies: make(chan string, 8)}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&stub.calls, 1)
		var req struct {
			File string `json:"file"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		stub.bodies <- req.File
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func newLiveController(t *testing.T, endpoint string, journal Journal) *Controller {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	logger := logging.Discard()
	p := processing.New(encoder.New(1<<20), remote.New(endpoint, 2*time.Second), 1, 1, logger, nil)
	p.Start(ctx)
	return newFakeController(t, p, Options{Journal: journal, Logger: logger})
}

func waitDone(t *testing.T, c *Controller) model.Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := c.Wait(ctx)
	require.NoError(t, err)
	return snap
}

func TestSuccessfulSubmissionRevealsSummary(t *testing.T) {
	const summary = "## Hi\nDone."
	stub := newRemote(t, http.StatusOK, summary)
	journal := storage.NewMemoryStore()
	c := newLiveController(t, stub.server.URL, journal)
	data := []byte("%PDF-1.4\x00\xff fake pdf bytes")

	seq, err := c.Select(context.Background(), pdfDoc("report.pdf", data))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	snap := waitDone(t, c)
	assert.Equal(t, model.PhaseSucceeded, snap.Phase)
	assert.True(t, snap.Succeeded)
	assert.False(t, snap.Uploading)
	assert.False(t, snap.Analyzing)
	assert.Empty(t, snap.Error)
	assert.Equal(t, summary, snap.Summary)
	require.NotNil(t, snap.Document)
	assert.Equal(t, "report.pdf", snap.Document.Name)

	require.Eventually(t, func() bool {
		s := c.Snapshot()
		assert.True(t, strings.HasPrefix(summary, s.Revealed))
		return s.Revealed == summary && !s.Revealing
	}, 5*time.Second, time.Millisecond)

	assert.Equal(t, int32(1), atomic.LoadInt32(&stub.calls))
	decoded, err := base64.StdEncoding.DecodeString(<-stub.bodies)
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestWrongTypeIsRejectedWithoutRequest(t *testing.T) {
	p := &fakeProcessor{}
	c := newFakeController(t, p, Options{})

	_, err := c.Drop(context.Background(), model.Document{Name: "notes.txt", ContentType: "text/plain", Source: model.BytesSource("hi")})
	var verr *validate.ValidationError
	require.True(t, errors.As(err, &verr))

	snap := c.Snapshot()
	assert.Equal(t, model.PhaseIdle, snap.Phase)
	assert.Equal(t, MessageInvalidType, snap.Error)
	assert.Nil(t, snap.Document)
	assert.False(t, snap.Succeeded)
	assert.Zero(t, p.count())
}

func TestServerErrorFailsSubmission(t *testing.T) {
	stub := newRemote(t, http.StatusInternalServerError, "internal explosion")
	journal := storage.NewMemoryStore()
	c := newLiveController(t, stub.server.URL, journal)

	_, err := c.Select(context.Background(), pdfDoc("report.pdf", []byte("%PDF")))
	require.NoError(t, err)

	snap := waitDone(t, c)
	assert.Equal(t, model.PhaseFailed, snap.Phase)
	assert.Equal(t, MessageFailed, snap.Error)
	assert.False(t, snap.Succeeded)
	assert.Empty(t, snap.Summary)
	assert.Empty(t, snap.Revealed)
	assert.NotContains(t, snap.Error, "500")
}

func TestIntakeWhileInFlightIsIgnored(t *testing.T) {
	p := &fakeProcessor{}
	c := newFakeController(t, p, Options{})
	ctx := context.Background()

	_, err := c.Drop(ctx, pdfDoc("first.pdf", []byte("1")))
	require.NoError(t, err)
	assert.True(t, c.Snapshot().Uploading)

	_, err = c.Drop(ctx, pdfDoc("second.pdf", []byte("2")))
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, 1, p.count())
	assert.Equal(t, "first.pdf", c.Snapshot().Document.Name)

	p.finish(0, "ok", nil)
	assert.Equal(t, model.PhaseSucceeded, c.Snapshot().Phase)
	assert.Equal(t, 1, p.count())
}

func TestResetAfterSuccessClearsEverything(t *testing.T) {
	p := &fakeProcessor{}
	c := newFakeController(t, p, Options{})
	ctx := context.Background()

	_, err := c.Select(ctx, pdfDoc("a.pdf", []byte("a")))
	require.NoError(t, err)
	p.finish(0, "summary text", nil)
	require.Eventually(t, func() bool { return c.Snapshot().Revealed != "" }, 5*time.Second, time.Millisecond)

	c.Reset(ctx)
	snap := c.Snapshot()
	assert.Equal(t, model.PhaseIdle, snap.Phase)
	assert.Empty(t, snap.Summary)
	assert.Empty(t, snap.Revealed)
	assert.Empty(t, snap.Error)
	assert.False(t, snap.Succeeded)
	assert.False(t, snap.Revealing)
	assert.Nil(t, snap.Document)

	time.Sleep(5 * time.Millisecond)
	assert.Empty(t, c.Snapshot().Revealed)
}

func TestTerminalStateRequiresReset(t *testing.T) {
	p := &fakeProcessor{}
	c := newFakeController(t, p, Options{})
	ctx := context.Background()

	_, err := c.Select(ctx, pdfDoc("a.pdf", []byte("a")))
	require.NoError(t, err)
	p.finish(0, "", errors.New("boom"))
	require.Equal(t, model.PhaseFailed, c.Snapshot().Phase)

	_, err = c.Select(ctx, pdfDoc("b.pdf", []byte("b")))
	assert.ErrorIs(t, err, ErrResetRequired)

	c.Reset(ctx)
	_, err = c.Select(ctx, pdfDoc("b.pdf", []byte("b")))
	require.NoError(t, err)
	snap := c.Snapshot()
	assert.Equal(t, model.PhaseInFlight, snap.Phase)
	assert.Empty(t, snap.Error)
}

func TestValidSubmissionClearsValidationError(t *testing.T) {
	p := &fakeProcessor{}
	c := newFakeController(t, p, Options{})
	ctx := context.Background()

	_, _ = c.Select(ctx, model.Document{Name: "x.txt"})
	require.Equal(t, MessageInvalidType, c.Snapshot().Error)

	_, err := c.Select(ctx, pdfDoc("a.pdf", []byte("a")))
	require.NoError(t, err)
	assert.Empty(t, c.Snapshot().Error)
}

func TestResultAfterResetIsDropped(t *testing.T) {
	p := &fakeProcessor{}
	journal := storage.NewMemoryStore()
	c := newFakeController(t, p, Options{Journal: journal})
	ctx := context.Background()

	_, err := c.Select(ctx, pdfDoc("old.pdf", []byte("old")))
	require.NoError(t, err)
	c.Reset(ctx)
	_, err = c.Select(ctx, pdfDoc("new.pdf", []byte("new")))
	require.NoError(t, err)

	p.finish(0, "old summary", nil)
	snap := c.Snapshot()
	assert.Equal(t, model.PhaseInFlight, snap.Phase)
	assert.Empty(t, snap.Summary)

	p.finish(1, "new summary", nil)
	snap = c.Snapshot()
	assert.Equal(t, model.PhaseSucceeded, snap.Phase)
	assert.Equal(t, "new summary", snap.Summary)

	old, err := journal.Get(ctx, p.jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionAbandoned, old.Status)
	fresh, err := journal.Get(ctx, p.jobs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionSucceeded, fresh.Status)
}

func TestResultAfterPlainResetIsDropped(t *testing.T) {
	p := &fakeProcessor{}
	c := newFakeController(t, p, Options{})
	ctx := context.Background()

	_, err := c.Select(ctx, pdfDoc("a.pdf", []byte("a")))
	require.NoError(t, err)
	c.Reset(ctx)
	p.finish(0, "late", nil)

	snap := c.Snapshot()
	assert.Equal(t, model.PhaseIdle, snap.Phase)
	assert.Empty(t, snap.Summary)
}

func TestProcessorRefusalFailsSubmission(t *testing.T) {
	p := &fakeProcessor{err: processing.ErrQueueFull}
	journal := storage.NewMemoryStore()
	c := newFakeController(t, p, Options{Journal: journal})

	seq, err := c.Select(context.Background(), pdfDoc("a.pdf", []byte("a")))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	snap := c.Snapshot()
	assert.Equal(t, model.PhaseFailed, snap.Phase)
	assert.Equal(t, MessageFailed, snap.Error)
}

func TestFailureDetailGoesToJournal(t *testing.T) {
	p := &fakeProcessor{}
	journal := storage.NewMemoryStore()
	c := newFakeController(t, p, Options{Journal: journal})
	ctx := context.Background()

	_, err := c.Select(ctx, pdfDoc("a.pdf", []byte("a")))
	require.NoError(t, err)
	p.finish(0, "", &remote.ResponseError{StatusCode: 502, Body: "bad gateway"})

	rec, err := journal.Get(ctx, p.jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionFailed, rec.Status)
	assert.Contains(t, rec.Detail, "HTTP 502")
	assert.Equal(t, MessageFailed, c.Snapshot().Error)
}

func TestDragState(t *testing.T) {
	p := &fakeProcessor{}
	c := newFakeController(t, p, Options{})

	changes := c.Changes()
	c.DragEnter()
	<-changes
	assert.True(t, c.Snapshot().Dragging)

	c.DragLeave()
	assert.False(t, c.Snapshot().Dragging)

	c.DragEnter()
	_, err := c.Drop(context.Background(), pdfDoc("a.pdf", []byte("a")))
	require.NoError(t, err)
	assert.False(t, c.Snapshot().Dragging)
}

func TestDocumentsAreDiscarded(t *testing.T) {
	p := &fakeProcessor{}
	c := newFakeController(t, p, Options{})
	ctx := context.Background()
	dir := t.TempDir()

	write := func(name string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("data"), 0o600))
		return path
	}

	rejected := write("notes.txt")
	_, _ = c.Select(ctx, model.Document{Name: "notes.txt", Source: model.TempFileSource(rejected)})
	assert.NoFileExists(t, rejected)

	held := write("held.pdf")
	_, err := c.Select(ctx, model.Document{Name: "held.pdf", Size: 4, Source: model.TempFileSource(held)})
	require.NoError(t, err)
	assert.FileExists(t, held)

	ignored := write("ignored.pdf")
	_, err = c.Select(ctx, model.Document{Name: "ignored.pdf", Source: model.TempFileSource(ignored)})
	assert.ErrorIs(t, err, ErrBusy)
	assert.NoFileExists(t, ignored)

	p.finish(0, "done", nil)
	assert.FileExists(t, held)
	c.Reset(ctx)
	assert.NoFileExists(t, held)
}

func TestSinksReceiveSuccessfulSummaries(t *testing.T) {
	p := &fakeProcessor{}
	sink := &recordingSink{}
	c := newFakeController(t, p, Options{Sinks: []Sink{sink}})
	ctx := context.Background()

	_, err := c.Select(ctx, pdfDoc("a.pdf", []byte("a")))
	require.NoError(t, err)
	p.finish(0, "", errors.New("boom"))
	c.Reset(ctx)
	_, err = c.Select(ctx, pdfDoc("b.pdf", []byte("b")))
	require.NoError(t, err)
	p.finish(1, "summary b", nil)

	assert.Equal(t, []string{"summary b"}, sink.summaries)
}

func TestWaitHonoursContext(t *testing.T) {
	p := &fakeProcessor{}
	c := newFakeController(t, p, Options{})
	_, err := c.Select(context.Background(), pdfDoc("a.pdf", []byte("a")))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	snap, err := c.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, model.PhaseInFlight, snap.Phase)
}

func TestSnapshotRevealedIsPrefixOfSummary(t *testing.T) {
	p := &fakeProcessor{}
	c := newFakeController(t, p, Options{})
	ctx := context.Background()
	summaries := []string{strings.Repeat("first ", 20), strings.Repeat("second ", 5)}

	for i, text := range summaries {
		if i > 0 {
			c.Reset(ctx)
		}
		_, err := c.Select(ctx, pdfDoc("a.pdf", []byte("a")))
		require.NoError(t, err)
		p.finish(i, text, nil)
		for j := 0; j < 20; j++ {
			snap := c.Snapshot()
			assert.True(t, strings.HasPrefix(snap.Summary, snap.Revealed), "revealed %q not a prefix of %q", snap.Revealed, snap.Summary)
			time.Sleep(time.Millisecond)
		}
	}
}

// gatedJournal blocks the first Save until released.
type gatedJournal struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	mu      sync.Mutex
	last    map[string]model.SubmissionStatus
}

func newGatedJournal() *gatedJournal {
	return &gatedJournal{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		last:    map[string]model.SubmissionStatus{},
	}
}

func (g *gatedJournal) Save(_ context.Context, rec *model.SubmissionRecord) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last[rec.ID] = rec.Status
	return nil
}

func (g *gatedJournal) status(id string) model.SubmissionStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last[id]
}

func TestSnapshotDoesNotWaitForJournal(t *testing.T) {
	p := &fakeProcessor{}
	journal := newGatedJournal()
	c := newFakeController(t, p, Options{Journal: journal})

	submitted := make(chan error, 1)
	go func() {
		_, err := c.Select(context.Background(), pdfDoc("a.pdf", []byte("%PDF")))
		submitted <- err
	}()
	<-journal.entered

	snaps := make(chan model.Snapshot, 1)
	go func() { snaps <- c.Snapshot() }()
	select {
	case snap := <-snaps:
		assert.Equal(t, model.PhaseInFlight, snap.Phase)
		assert.True(t, snap.Analyzing)
	case <-time.After(time.Second):
		t.Fatal("Snapshot blocked behind the journal write")
	}
	assert.Zero(t, p.count(), "request must wait for the journal row")

	close(journal.release)
	require.NoError(t, <-submitted)
	assert.Equal(t, 1, p.count())
}

func TestResetWhileJournalingNeverSends(t *testing.T) {
	p := &fakeProcessor{}
	journal := newGatedJournal()
	c := newFakeController(t, p, Options{Journal: journal})

	submitted := make(chan error, 1)
	go func() {
		_, err := c.Select(context.Background(), pdfDoc("a.pdf", []byte("%PDF")))
		submitted <- err
	}()
	<-journal.entered
	rec, ok := c.Record()
	require.True(t, ok)

	c.Reset(context.Background())
	close(journal.release)
	require.NoError(t, <-submitted)

	assert.Zero(t, p.count())
	assert.Equal(t, model.PhaseIdle, c.Snapshot().Phase)
	assert.Equal(t, model.SubmissionAbandoned, journal.status(rec.ID))
}

func TestShowsSummary(t *testing.T) {
	p := &fakeProcessor{}
	c := newFakeController(t, p, Options{})
	frames, cancel := c.Frames()
	defer cancel()
	idle := <-frames
	assert.False(t, c.ShowsSummary(idle))

	_, err := c.Select(context.Background(), pdfDoc("a.pdf", []byte("%PDF")))
	require.NoError(t, err)
	cleared := c.reveal.Frame()
	assert.False(t, c.ShowsSummary(cleared))

	p.finish(0, "", nil)
	empty := c.reveal.Frame()
	assert.True(t, empty.Done())
	assert.True(t, c.ShowsSummary(empty))
	assert.False(t, c.ShowsSummary(cleared))

	c.Reset(context.Background())
	assert.False(t, c.ShowsSummary(empty))
}
