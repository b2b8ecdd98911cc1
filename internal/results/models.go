package results

import (
	"time"

	"tagpipe/internal/textutil"
)

// ErrorKind tags a LabelError with the failure taxonomy the orchestrator
// understands. Kinds are stable strings persisted to the database.
type ErrorKind string

const (
	KindPreflightUnresolved ErrorKind = "preflight_unresolved"
	KindNetwork             ErrorKind = "network"
	KindQuota               ErrorKind = "quota"
	KindMalformedResponse   ErrorKind = "malformed_response"
	KindContentBlock        ErrorKind = "content_block"
	KindIngestParseFailure  ErrorKind = "ingest_parse_failure"
)

// RunMode identifies which execution strategy a run used.
type RunMode string

const (
	ModeInteractive RunMode = "interactive"
	ModeBatch       RunMode = "batch"
)

// JobState is the lifecycle of a batch job. A job is terminal once ingested;
// failed jobs keep their error detail, partial jobs produced some outcomes.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
	JobPartial   JobState = "partial"
	JobIngested  JobState = "ingested"
)

// maxDiagnosticBytes caps the raw diagnostic snippet stored with an error.
const maxDiagnosticBytes = 10_000

// LabelResult is one successful labeling outcome. Immutable after creation.
type LabelResult struct {
	ID        string
	ItemID    string
	Provider  string
	Model     string
	Summary   string
	Payload   string
	RunID     string
	CreatedAt time.Time
}

// LabelError is one failed labeling attempt. Rows are history: never deleted,
// only logically superseded by a later LabelResult for the same item+provider.
type LabelError struct {
	ID         string
	ItemID     string
	Provider   string
	Model      string
	Kind       ErrorKind
	Diagnostic string
	RunID      string
	CreatedAt  time.Time
}

// Run is one orchestration invocation. Created at run start, finalized once.
type Run struct {
	ID              string
	Mode            RunMode
	Provider        string
	Model           string
	FallbackModel   string
	Candidates      int
	Labeled         int
	FallbackLabeled int
	Errored         int
	Skipped         int
	StartedAt       time.Time
	FinishedAt      *time.Time
}

// Totals is the aggregate outcome recorded when a run is finalized.
type Totals struct {
	Candidates      int
	Labeled         int
	FallbackLabeled int
	Errored         int
	Skipped         int
}

// BatchJob is one submitted asynchronous bulk request.
type BatchJob struct {
	ID           string
	RunID        string
	Model        string
	RemoteName   string
	InputPath    string
	MapPath      string
	InputFileID  string
	OutputFileID string
	OutputPath   string
	RequestCount int
	InputBytes   int64
	State        JobState
	Detail       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Submitted reports whether the job already has a persisted remote handle.
// Resume logic must check this before creating a remote job so a crash after
// submission can never double-submit.
func (j *BatchJob) Submitted() bool {
	return j != nil && j.RemoteName != ""
}

// Terminal reports whether the job needs no further pipeline work.
func (j *BatchJob) Terminal() bool {
	return j != nil && (j.State == JobIngested || j.State == JobFailed)
}

// TruncateDiagnostic bounds a raw diagnostic snippet for storage.
func TruncateDiagnostic(raw string) string {
	return textutil.TruncateBytes(raw, maxDiagnosticBytes)
}
