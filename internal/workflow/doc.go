// Package workflow implements claim submission: a two-step form, claim
// creation, concurrent evidence upload to pre-signed targets, and the
// optional fraud analysis run.
//
// The dialog is a tagged state machine. Transition is the only place states
// change; Wizard drives it with calls to the backend:
//
//	Form{1} -Next-> Form{2} -Submit-> Uploading -...-> Ready -RunAnalysis-> Analyzing -> Results
//
// Any in-flight phase can end in Failed, which keeps the draft so the user can
// Retry. Close is refused while Uploading or Analyzing.
package workflow
