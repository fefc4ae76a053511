// Package server exposes the upload session over HTTP: intake, drag state,
// reset, snapshots, and the streamed summary.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/pdfsummarizer/internal/config"
	"github.com/dharsanguruparan/pdfsummarizer/internal/metrics"
	"github.com/dharsanguruparan/pdfsummarizer/internal/model"
	pdfutil "github.com/dharsanguruparan/pdfsummarizer/internal/pdf"
	"github.com/dharsanguruparan/pdfsummarizer/internal/render"
	"github.com/dharsanguruparan/pdfsummarizer/internal/reveal"
	"github.com/dharsanguruparan/pdfsummarizer/internal/session"
	"github.com/dharsanguruparan/pdfsummarizer/internal/storage"
	"github.com/dharsanguruparan/pdfsummarizer/internal/validate"
)

// multipartSlack covers the multipart framing around the file part.
const multipartSlack = 1024

var errTooLarge = errors.New("file exceeds limit")

// Session is the part of *session.Controller the HTTP surface drives.
type Session interface {
	DragEnter()
	DragLeave()
	Select(ctx context.Context, doc model.Document) (uint64, error)
	Reset(ctx context.Context)
	Snapshot() model.Snapshot
	Record() (model.SubmissionRecord, bool)
	Frames() (<-chan reveal.Frame, func())
	ShowsSummary(f reveal.Frame) bool
}

// ArchiveLookup finds the journal record of a submission.
type ArchiveLookup interface {
	Get(ctx context.Context, id string) (*model.SubmissionRecord, error)
}

// SummaryLinker signs download links for archived summaries.
type SummaryLinker interface {
	PresignSummaryURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
}

// Server hosts the HTTP handlers.
type Server struct {
	cfg     *config.Config
	session Session
	metrics *metrics.Metrics
	log     *logrus.Logger
	journal ArchiveLookup
	linker  SummaryLinker
	server  *http.Server
	once    sync.Once
}

// New constructs a Server. m may be nil, in which case /metrics is not
// served.
func New(cfg *config.Config, s Session, m *metrics.Metrics, log *logrus.Logger) *Server {
	return &Server{cfg: cfg, session: s, metrics: m, log: log}
}

// WithArchive enables GET /summary/archive, which links to the archived copy
// of a summary once the worker has stored it.
func (s *Server) WithArchive(journal ArchiveLookup, linker SummaryLinker) *Server {
	s.journal = journal
	s.linker = linker
	return s
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:              s.cfg.Address,
			Handler:           s.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.log.WithField("address", s.cfg.Address).Info("http listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/session", s.handleSession)
	mux.HandleFunc("/session/drag", s.handleDrag)
	mux.HandleFunc("/session/reset", s.handleReset)
	mux.HandleFunc("/summary", s.handleSummary)
	mux.HandleFunc("/summary/archive", s.handleArchiveLink)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return corsMiddleware(s.loggingMiddleware(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.log, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	respondJSON(w, s.log, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleDrag(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Dragging bool `json:"dragging"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1024)).Decode(&body); err != nil {
		http.Error(w, "expecting {\"dragging\":bool}", http.StatusBadRequest)
		return
	}
	if body.Dragging {
		s.session.DragEnter()
	} else {
		s.session.DragLeave()
	}
	respondJSON(w, s.log, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.session.Reset(r.Context())
	respondJSON(w, s.log, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxFileSize+multipartSlack)
	mr, err := r.MultipartReader()
	if err != nil {
		http.Error(w, "expecting multipart form", http.StatusBadRequest)
		return
	}
	part, err := nextFilePart(mr)
	if err != nil {
		s.uploadError(w, err, "missing file part")
		return
	}
	doc, err := s.spool(part)
	part.Close()
	if err != nil {
		s.uploadError(w, err, "failed to read upload")
		return
	}
	s.logPages(doc)

	seq, err := s.session.Select(r.Context(), doc)
	var invalid *validate.ValidationError
	switch {
	case errors.As(err, &invalid):
		respondJSON(w, s.log, http.StatusUnprocessableEntity, map[string]string{"error": s.session.Snapshot().Error})
		return
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrResetRequired):
		respondJSON(w, s.log, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	case err != nil:
		s.log.WithError(err).Error("upload intake failed")
		http.Error(w, "intake failed", http.StatusInternalServerError)
		return
	}

	resp := map[string]interface{}{"submission": seq, "status": string(model.SubmissionInFlight)}
	if rec, ok := s.session.Record(); ok && rec.Sequence == seq {
		resp["id"] = rec.ID
		resp["status"] = string(rec.Status)
	}
	respondJSON(w, s.log, http.StatusAccepted, resp)
}

func (s *Server) uploadError(w http.ResponseWriter, err error, msg string) {
	var maxErr *http.MaxBytesError
	if errors.Is(err, errTooLarge) || errors.As(err, &maxErr) {
		respondJSON(w, s.log, http.StatusRequestEntityTooLarge, map[string]string{
			"error": fmt.Sprintf("file exceeds limit (%d bytes)", s.cfg.MaxFileSize),
		})
		return
	}
	s.log.WithError(err).Info("upload rejected")
	http.Error(w, msg, http.StatusBadRequest)
}

// spool copies the part into a temp file owned by the returned document.
func (s *Server) spool(part *multipart.Part) (model.Document, error) {
	tmpFile, err := os.CreateTemp("", "summarizer-*.upload")
	if err != nil {
		return model.Document{}, fmt.Errorf("create temp file: %w", err)
	}
	src := model.TempFileSource(tmpFile.Name())
	written, err := io.Copy(tmpFile, io.LimitReader(part, s.cfg.MaxFileSize+1))
	closeErr := tmpFile.Close()
	switch {
	case err != nil:
		_ = src.Discard()
		return model.Document{}, fmt.Errorf("write temp file: %w", err)
	case closeErr != nil:
		_ = src.Discard()
		return model.Document{}, fmt.Errorf("close temp file: %w", closeErr)
	case written > s.cfg.MaxFileSize:
		_ = src.Discard()
		return model.Document{}, errTooLarge
	}

	name := filepath.Base(part.FileName())
	if name == "." || name == "/" {
		name = "upload"
	}
	return model.Document{
		Name:        name,
		ContentType: part.Header.Get("Content-Type"),
		Size:        written,
		Source:      src,
	}, nil
}

// logPages records the page count of PDF uploads. It is informational only.
func (s *Server) logPages(doc model.Document) {
	if !s.log.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	rc, err := doc.Source.Open()
	if err != nil {
		return
	}
	defer rc.Close()
	data, err := pdfutil.ReadAll(rc, s.cfg.MaxFileSize)
	if err != nil {
		return
	}
	entry := s.log.WithFields(logrus.Fields{"file": doc.Name, "size": doc.SizeMB()})
	info, err := pdfutil.Inspect(data)
	if err != nil {
		entry.WithError(err).Debug("upload is not a readable pdf")
		return
	}
	entry.WithField("pages", info.Pages).Debug("upload inspected")
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	frames, cancel := s.session.Frames()
	defer cancel()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	// Waits for the next summary when none has been received yet.
	opts := render.Options{Accept: s.session.ShowsSummary}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
		opts.Flush = f.Flush
	}
	err := render.Stream(r.Context(), w, frames, opts)
	if err != nil && !errors.Is(err, render.ErrReplaced) && !errors.Is(err, context.Canceled) {
		s.log.WithError(err).Debug("summary stream ended")
	}
}

// handleArchiveLink returns a presigned URL for the archived summary of the
// submission named by ?id=, defaulting to the current one.
func (s *Server) handleArchiveLink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.journal == nil || s.linker == nil {
		http.Error(w, "summary archive not configured", http.StatusNotFound)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		rec, ok := s.session.Record()
		if !ok {
			http.Error(w, "no submission", http.StatusNotFound)
			return
		}
		id = rec.ID
	}
	rec, err := s.journal.Get(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "submission not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.WithError(err).WithField("submission", id).Error("journal lookup failed")
		http.Error(w, "journal unavailable", http.StatusInternalServerError)
		return
	}
	if rec.ArchiveKey == "" {
		respondJSON(w, s.log, http.StatusNotFound, map[string]string{
			"id":     rec.ID,
			"status": string(rec.Status),
			"error":  "summary not archived",
		})
		return
	}
	link, err := s.linker.PresignSummaryURL(r.Context(), rec.ArchiveKey, s.cfg.ArchiveURLTTL)
	if err != nil {
		s.log.WithError(err).WithField("key", rec.ArchiveKey).Error("presign archived summary")
		http.Error(w, "failed to generate url", http.StatusInternalServerError)
		return
	}
	respondJSON(w, s.log, http.StatusOK, map[string]string{
		"id":      rec.ID,
		"key":     rec.ArchiveKey,
		"url":     link,
		"expires": time.Now().Add(s.cfg.ArchiveURLTTL).UTC().Format(time.RFC3339),
	})
}

func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" {
			return part, nil
		}
		part.Close()
	}
}

func respondJSON(w http.ResponseWriter, log logrus.FieldLogger, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.WithError(err).Warn("encode response")
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start),
		}).Info("request")
	})
}
