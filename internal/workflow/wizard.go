package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"veritas/internal/api"
	"veritas/internal/logging"
)

// Backend is the part of the API client the submission flow calls.
type Backend interface {
	CreateClaim(ctx context.Context, in api.CreateClaimRequest) (*api.CreateClaimResponse, error)
	Upload(ctx context.Context, target api.UploadTarget, filename string, content io.Reader) error
	TriggerAnalysis(ctx context.Context, claimID string) (*api.Claim, error)
}

// Observer is told about every state change, in order. It may read the wizard
// but must not drive it.
type Observer func(State)

// FileError is one failed upload.
type FileError struct {
	Index int
	Name  string
	Err   error
}

// UploadError fails a batch. The batch is all-or-nothing: one failed file fails
// every file, and Files names each one that failed.
type UploadError struct {
	Total int
	Files []FileError
}

func (e *UploadError) Error() string {
	if len(e.Files) == 1 {
		return fmt.Sprintf("upload of %s failed: %s", e.Files[0].Name, api.Detail(e.Files[0].Err))
	}
	return fmt.Sprintf("%d of %d uploads failed: %s", len(e.Files), e.Total, strings.Join(e.Names(), ", "))
}

func (e *UploadError) Unwrap() []error {
	errs := make([]error, len(e.Files))
	for i, f := range e.Files {
		errs[i] = f.Err
	}
	return errs
}

// Names lists the failed files in attachment order.
func (e *UploadError) Names() []string {
	names := make([]string, len(e.Files))
	for i, f := range e.Files {
		names[i] = f.Name
	}
	return names
}

// Indexes lists the attachment positions of the failed files, ascending.
func (e *UploadError) Indexes() []int {
	idx := make([]int, len(e.Files))
	for i, f := range e.Files {
		idx[i] = f.Index
	}
	return idx
}

// Option configures a Wizard.
type Option func(*Wizard)

// WithConcurrency caps simultaneous uploads. n <= 0 means no cap.
func WithConcurrency(n int) Option {
	return func(w *Wizard) { w.limit = n }
}

// WithObserver registers fn for state changes.
func WithObserver(fn Observer) Option {
	return func(w *Wizard) { w.observers = append(w.observers, fn) }
}

// WithLogger sets the wizard's logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Wizard) { w.log = l }
}

// Wizard runs one claim submission dialog: it owns the draft and the state and
// serializes every transition.
type Wizard struct {
	backend   Backend
	limit     int
	observers []Observer
	log       *slog.Logger

	mu      sync.Mutex
	draft   Draft
	state   State
	history []Phase

	notifyMu sync.Mutex
}

// New opens a dialog at the claim info step.
func New(backend Backend, opts ...Option) *Wizard {
	w := &Wizard{
		backend: backend,
		log:     logging.New("workflow"),
		state:   Form{Step: StepClaimInfo},
		history: []Phase{PhaseForm},
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// State returns the current state.
func (w *Wizard) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// StatusMessage is the inline status line for the current state.
func (w *Wizard) StatusMessage() string { return StatusMessage(w.State()) }

// Progress is the upload percentage for the current state.
func (w *Wizard) Progress() int { return Progress(w.State()) }

// Err is the inline error message, or "" when the current state has none.
func (w *Wizard) Err() string {
	if f, ok := w.State().(Failed); ok {
		return f.Message
	}
	return ""
}

// History lists the distinct phases visited, oldest first.
func (w *Wizard) History() []Phase {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Phase(nil), w.history...)
}

// Draft returns a copy of the draft.
func (w *Wizard) Draft() Draft {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft.clone()
}

// Edit changes the draft. Edits are only accepted while the form is open.
func (w *Wizard) Edit(fn func(*Draft) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.state.(Form); !ok {
		return fmt.Errorf("edit draft: %w: form is not open (%s)", ErrIllegalTransition, w.state.Phase())
	}
	return fn(&w.draft)
}

// Next advances to the evidence step.
func (w *Wizard) Next() error { return w.apply(Next{}) }

// Previous returns to the claim info step.
func (w *Wizard) Previous() error { return w.apply(Previous{}) }

// Close dismisses the dialog. It is refused while uploads or analysis run.
func (w *Wizard) Close() error { return w.apply(Close{}) }

// Retry leaves the failed state: back to the evidence step after a create or
// upload failure, back to Ready after an analysis failure.
func (w *Wizard) Retry() error { return w.apply(Retry{}) }

// Submit creates the claim, uploads every attached file to its target and
// waits for all of them to settle. It returns the claim id once the wizard is
// Ready. On failure the wizard is in Failed and the error is returned.
func (w *Wizard) Submit(ctx context.Context) (string, error) {
	w.mu.Lock()
	draft := w.draft.clone()
	w.mu.Unlock()

	if err := w.apply(Submit{Files: draft.FileCount()}); err != nil {
		return "", err
	}
	w.log.Info("creating claim", "files", draft.FileCount(), "bytes", draft.TotalSize())

	resp, err := w.backend.CreateClaim(ctx, api.CreateClaimRequest{
		FileCount:      draft.FileCount(),
		AdditionalInfo: draft.AdditionalInfo,
	})
	if err != nil {
		return "", w.fail(err)
	}
	if err := w.apply(ClaimCreated{ClaimID: resp.ClaimID}); err != nil {
		return "", w.fail(fmt.Errorf("create claim: %w", err))
	}
	if got, want := len(resp.UploadTargets), draft.FileCount(); got != want {
		return resp.ClaimID, w.fail(fmt.Errorf("backend returned %d upload targets for %d files", got, want))
	}

	if err := w.uploadAll(ctx, draft.Files, resp.UploadTargets); err != nil {
		return resp.ClaimID, w.fail(err)
	}
	if err := w.apply(UploadsFinished{}); err != nil {
		return resp.ClaimID, err
	}
	w.log.Info("claim uploaded", "claim", resp.ClaimID, "files", draft.FileCount())
	return resp.ClaimID, nil
}

// uploadAll pairs file i with target i and uploads them concurrently. It
// waits for every upload to settle, successful or not, before returning.
func (w *Wizard) uploadAll(ctx context.Context, files []File, targets []api.UploadTarget) error {
	errs := make([]error, len(files))
	var g errgroup.Group
	if w.limit > 0 {
		g.SetLimit(w.limit)
	}
	for i := range files {
		g.Go(func() error {
			errs[i] = w.uploadOne(ctx, files[i], targets[i])
			if errs[i] == nil {
				return w.apply(UploadDone{})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	uploadErr := &UploadError{Total: len(files)}
	for i, err := range errs {
		if err != nil {
			uploadErr.Files = append(uploadErr.Files, FileError{Index: i, Name: files[i].Name(), Err: err})
		}
	}
	if len(uploadErr.Files) > 0 {
		w.log.Warn("upload batch failed", "failed", uploadErr.Names(), "total", len(files))
		return uploadErr
	}
	return nil
}

func (w *Wizard) uploadOne(ctx context.Context, f File, target api.UploadTarget) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name(), err)
	}
	defer rc.Close()
	if err := w.backend.Upload(ctx, target, f.Name(), rc); err != nil {
		return err
	}
	w.log.Debug("file uploaded", "file", f.Name(), "bytes", f.Size())
	return nil
}

// RunAnalysis triggers the remote analysis for the uploaded claim and waits
// for its report.
func (w *Wizard) RunAnalysis(ctx context.Context) (*Report, error) {
	w.mu.Lock()
	ready, ok := w.state.(Ready)
	w.mu.Unlock()
	if !ok {
		return nil, w.apply(RunAnalysis{})
	}
	if err := w.apply(RunAnalysis{}); err != nil {
		return nil, err
	}

	claim, err := w.backend.TriggerAnalysis(ctx, ready.ClaimID)
	if err != nil {
		return nil, w.fail(err)
	}
	report := Report{
		Score:   claim.FraudRiskScore,
		Summary: claim.Summary,
		Factors: claim.KeyRiskFactors,
	}
	if err := w.apply(AnalysisDone{Report: report}); err != nil {
		return nil, err
	}
	w.log.Info("analysis complete", "claim", ready.ClaimID, "risk", report.Level())
	return &report, nil
}

// fail moves the wizard to Failed and returns cause for the caller.
func (w *Wizard) fail(cause error) error {
	if err := w.apply(Fail{Reason: reason(cause)}); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func reason(err error) string {
	var uploadErr *UploadError
	if errors.As(err, &uploadErr) {
		return uploadErr.Error()
	}
	return api.Detail(err)
}

// apply runs one transition and notifies observers of the new state. Observers
// see states in transition order.
func (w *Wizard) apply(e Event) error {
	w.notifyMu.Lock()
	defer w.notifyMu.Unlock()

	w.mu.Lock()
	next, err := Transition(w.state, e)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	prev := w.state
	w.state = next
	if next.Phase() != prev.Phase() {
		w.history = append(w.history, next.Phase())
	}
	w.mu.Unlock()

	if next.Phase() != prev.Phase() {
		w.log.Debug("phase change", "from", prev.Phase(), "to", next.Phase())
	}
	for _, fn := range w.observers {
		fn(next)
	}
	return nil
}
