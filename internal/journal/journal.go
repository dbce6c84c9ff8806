// Package journal keeps a local history of claim submissions: which files were
// sent, how far each run got, and which files sank a failed batch.
package journal

import (
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

// DefaultDBName is the journal file name under the user's config directory.
const DefaultDBName = "journal.db"

// ErrNotFound is returned by Finish for an unknown run id.
var ErrNotFound = errors.New("submission not found")

// File is one attachment of a submission.
type File struct {
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	Failed bool   `json:"failed,omitempty"`
}

// Submission is one run of the claim submission dialog.
type Submission struct {
	RunID        string    `json:"run_id"`
	ClaimID      string    `json:"claim_id,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	Files        []File    `json:"files"`
	Phase        string    `json:"phase"`
	FailedDuring string    `json:"failed_during,omitempty"`
	Message      string    `json:"message,omitempty"`
	Score        *int      `json:"score,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at,omitzero"`
}

// FailedFiles lists the names of files whose upload failed.
func (s *Submission) FailedFiles() []string {
	var out []string
	for _, f := range s.Files {
		if f.Failed {
			out = append(out, f.Name)
		}
	}
	return out
}

// Outcome is how a run ended.
type Outcome struct {
	ClaimID      string
	Phase        string
	FailedDuring string
	Message      string

	// FailedPositions are the indexes into Submission.Files whose upload
	// failed. Names are not unique within a run.
	FailedPositions []int
	Score           *int
}

// Store is the persistence facade for submissions.
// Implementations are SQLite (SqlStore) or in-memory (MemStore).
type Store interface {
	// Begin records a new run and assigns its RunID and StartedAt.
	Begin(sub *Submission) (runID string, err error)
	// Finish stamps the outcome of a run.
	Finish(runID string, out Outcome) error
	// Get returns the run, or nil when it does not exist.
	Get(runID string) (*Submission, error)
	// List returns up to limit runs, newest first. limit <= 0 means all.
	List(limit int) ([]*Submission, error)
	Close() error
}

// newRunID returns a ULID; its lexical order is creation order.
func newRunID() string { return ulid.Make().String() }

func markFailed(files []File, failed []int) {
	for i := range files {
		files[i].Failed = false
	}
	for _, pos := range failed {
		if pos >= 0 && pos < len(files) {
			files[pos].Failed = true
		}
	}
}
