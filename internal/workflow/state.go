package workflow

import (
	"errors"
	"fmt"

	"veritas/internal/risk"
)

var (
	// ErrIllegalTransition is returned when an event does not apply to the current state.
	ErrIllegalTransition = errors.New("illegal transition")
	// ErrNoFiles rejects a submission without evidence.
	ErrNoFiles = errors.New("attach at least one file before submitting")
)

// Phase names a state variant. The values double as journal and JSON codes.
type Phase string

const (
	PhaseForm      Phase = "form"
	PhaseUploading Phase = "uploading"
	PhaseReady     Phase = "ready"
	PhaseAnalyzing Phase = "analyzing"
	PhaseResults   Phase = "results"
	PhaseFailed    Phase = "failed"
	PhaseClosed    Phase = "closed"
)

// Form steps.
const (
	StepClaimInfo = 1
	StepEvidence  = 2
)

// State is one of Form, Uploading, Ready, Analyzing, Results, Failed, Closed.
type State interface {
	Phase() Phase
	isState()
}

// Form is the two-step input form.
type Form struct{ Step int }

// Uploading covers claim creation and the file fan-out. ClaimID is empty
// until the backend has created the claim.
type Uploading struct {
	ClaimID string
	Done    int
	Total   int
}

// Ready means every file is stored and analysis can be requested.
type Ready struct{ ClaimID string }

// Analyzing waits on the remote fraud analysis.
type Analyzing struct{ ClaimID string }

// Results carries the analysis outcome.
type Results struct {
	ClaimID string
	Report  Report
}

// Failed holds the inline error of the phase that failed. During is that
// phase; Retry resumes from it.
type Failed struct {
	During  Phase
	ClaimID string
	Message string
}

// Closed is terminal.
type Closed struct{}

func (Form) Phase() Phase      { return PhaseForm }
func (Uploading) Phase() Phase { return PhaseUploading }
func (Ready) Phase() Phase     { return PhaseReady }
func (Analyzing) Phase() Phase { return PhaseAnalyzing }
func (Results) Phase() Phase   { return PhaseResults }
func (Failed) Phase() Phase    { return PhaseFailed }
func (Closed) Phase() Phase    { return PhaseClosed }

func (Form) isState()      {}
func (Uploading) isState() {}
func (Ready) isState()     {}
func (Analyzing) isState() {}
func (Results) isState()   {}
func (Failed) isState()    {}
func (Closed) isState()    {}

// Report is the analysis result shown in Results.
type Report struct {
	Score   *int
	Summary string
	Factors []string
}

// Level buckets the score.
func (r Report) Level() risk.Level { return risk.Of(r.Score) }

// Event drives Transition.
type Event interface{ isEvent() }

type (
	// Next moves from claim info to evidence upload.
	Next struct{}
	// Previous moves back to claim info.
	Previous struct{}
	// Submit starts the upload phase for Files attachments.
	Submit struct{ Files int }
	// ClaimCreated records the id the backend assigned.
	ClaimCreated struct{ ClaimID string }
	// UploadDone counts one settled, successful upload.
	UploadDone struct{}
	// UploadsFinished closes the upload phase once every file is done.
	UploadsFinished struct{}
	// RunAnalysis requests the fraud analysis.
	RunAnalysis struct{}
	// AnalysisDone delivers the report.
	AnalysisDone struct{ Report Report }
	// Fail reports a failure of the in-flight phase.
	Fail struct{ Reason string }
	// Retry leaves Failed.
	Retry struct{}
	// Close dismisses the dialog.
	Close struct{}
)

func (Next) isEvent()            {}
func (Previous) isEvent()        {}
func (Submit) isEvent()          {}
func (ClaimCreated) isEvent()    {}
func (UploadDone) isEvent()      {}
func (UploadsFinished) isEvent() {}
func (RunAnalysis) isEvent()     {}
func (AnalysisDone) isEvent()    {}
func (Fail) isEvent()            {}
func (Retry) isEvent()           {}
func (Close) isEvent()           {}

// Transition returns the state that follows s on e. It never mutates its
// inputs; an event that does not apply yields ErrIllegalTransition and s.
func Transition(s State, e Event) (State, error) {
	if _, ok := e.(Close); ok {
		switch s.(type) {
		case Form, Ready, Results, Failed:
			return Closed{}, nil
		}
		return s, illegal(s, e)
	}

	switch cur := s.(type) {
	case Form:
		switch ev := e.(type) {
		case Next:
			if cur.Step == StepClaimInfo {
				return Form{Step: StepEvidence}, nil
			}
		case Previous:
			if cur.Step == StepEvidence {
				return Form{Step: StepClaimInfo}, nil
			}
		case Submit:
			if cur.Step != StepEvidence {
				break
			}
			if ev.Files <= 0 {
				return s, ErrNoFiles
			}
			return Uploading{Total: ev.Files}, nil
		}

	case Uploading:
		switch ev := e.(type) {
		case ClaimCreated:
			if cur.ClaimID == "" && ev.ClaimID != "" {
				cur.ClaimID = ev.ClaimID
				return cur, nil
			}
		case UploadDone:
			if cur.ClaimID != "" && cur.Done < cur.Total {
				cur.Done++
				return cur, nil
			}
		case UploadsFinished:
			if cur.ClaimID != "" && cur.Done == cur.Total {
				return Ready{ClaimID: cur.ClaimID}, nil
			}
		case Fail:
			if cur.ClaimID == "" {
				return Failed{During: PhaseForm, Message: "Error: " + ev.Reason}, nil
			}
			return Failed{During: PhaseUploading, ClaimID: cur.ClaimID, Message: "Error: " + ev.Reason}, nil
		}

	case Ready:
		if _, ok := e.(RunAnalysis); ok {
			return Analyzing{ClaimID: cur.ClaimID}, nil
		}

	case Analyzing:
		switch ev := e.(type) {
		case AnalysisDone:
			return Results{ClaimID: cur.ClaimID, Report: ev.Report}, nil
		case Fail:
			return Failed{During: PhaseAnalyzing, ClaimID: cur.ClaimID, Message: "Error triggering analysis: " + ev.Reason}, nil
		}

	case Failed:
		if _, ok := e.(Retry); ok {
			if cur.During == PhaseAnalyzing {
				return Ready{ClaimID: cur.ClaimID}, nil
			}
			return Form{Step: StepEvidence}, nil
		}
	}
	return s, illegal(s, e)
}

func illegal(s State, e Event) error {
	return fmt.Errorf("%w: %T in %s", ErrIllegalTransition, e, s.Phase())
}

// StatusMessage is the line shown under the dialog for s.
func StatusMessage(s State) string {
	switch cur := s.(type) {
	case Uploading:
		if cur.ClaimID == "" {
			return "Creating claim..."
		}
		return fmt.Sprintf("Claim %s created. Uploading files...", cur.ClaimID)
	case Ready:
		return "All files uploaded successfully. Ready to run analysis."
	case Analyzing:
		return fmt.Sprintf("Analysis triggered for claim %s. This may take a while...", cur.ClaimID)
	case Results:
		return fmt.Sprintf("Analysis complete for claim %s.", cur.ClaimID)
	case Failed:
		return cur.Message
	}
	return ""
}

// Progress is the upload completion percentage for s, rounded down.
// It reaches 100 only once every upload has settled successfully.
func Progress(s State) int {
	switch cur := s.(type) {
	case Uploading:
		if cur.Total == 0 {
			return 0
		}
		return cur.Done * 100 / cur.Total
	case Ready, Analyzing, Results:
		return 100
	}
	return 0
}
