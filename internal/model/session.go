package model

import "time"

// Phase is the discriminated state of an upload session. Only one phase holds
// at a time, so "succeeded while in flight" cannot be represented.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseValidating Phase = "validating"
	PhaseInFlight   Phase = "in_flight"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

// Terminal reports whether the phase ends a submission.
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

// Snapshot is a consistent copy of the session state. Uploading and Analyzing
// are derived from Phase and are always equal.
type Snapshot struct {
	Phase      Phase         `json:"phase"`
	Dragging   bool          `json:"dragging"`
	Uploading  bool          `json:"uploading"`
	Analyzing  bool          `json:"analyzing"`
	Error      string        `json:"error,omitempty"`
	Succeeded  bool          `json:"succeeded"`
	Submission uint64        `json:"submission"`
	Document   *DocumentInfo `json:"document,omitempty"`
	Summary    string        `json:"summary,omitempty"`
	Revealed   string        `json:"revealed"`
	Revealing  bool          `json:"revealing"`
}

// SubmissionStatus describes a journal row's lifecycle.
type SubmissionStatus string

const (
	SubmissionInFlight  SubmissionStatus = "in_flight"
	SubmissionSucceeded SubmissionStatus = "succeeded"
	SubmissionFailed    SubmissionStatus = "failed"
	SubmissionAbandoned SubmissionStatus = "abandoned"
)

// SubmissionRecord is the diagnostics view of one submission. Detail carries
// the underlying failure, which is never shown to the user.
type SubmissionRecord struct {
	ID          string           `json:"id"`
	Sequence    uint64           `json:"sequence"`
	FileName    string           `json:"fileName"`
	Size        int64            `json:"size"`
	ContentType string           `json:"contentType"`
	Status      SubmissionStatus `json:"status"`
	Detail      string           `json:"detail,omitempty"`
	SummarySize int              `json:"summarySize"`
	ArchiveKey  string           `json:"archiveKey,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}
