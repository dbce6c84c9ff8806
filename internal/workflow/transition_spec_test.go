package workflow

import (
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"veritas/internal/risk"
)

var _ = ginkgo.Describe("Transition", func() {
	step := func(s State, e Event) State {
		next, err := Transition(s, e)
		gomega.ExpectWithOffset(1, err).To(gomega.Succeed())
		return next
	}

	ginkgo.Describe("the form", func() {
		ginkgo.It("moves between steps with Next and Previous", func() {
			s := step(Form{Step: StepClaimInfo}, Next{})
			gomega.Expect(s).To(gomega.Equal(Form{Step: StepEvidence}))
			gomega.Expect(step(s, Previous{})).To(gomega.Equal(Form{Step: StepClaimInfo}))
		})

		ginkgo.It("submits only from the evidence step", func() {
			_, err := Transition(Form{Step: StepClaimInfo}, Submit{Files: 2})
			gomega.Expect(err).To(gomega.MatchError(ErrIllegalTransition))
		})

		ginkgo.It("refuses to submit without files", func() {
			s, err := Transition(Form{Step: StepEvidence}, Submit{Files: 0})
			gomega.Expect(err).To(gomega.MatchError(ErrNoFiles))
			gomega.Expect(s).To(gomega.Equal(Form{Step: StepEvidence}))
		})
	})

	ginkgo.Describe("uploading", func() {
		var s State

		ginkgo.BeforeEach(func() {
			s = step(Form{Step: StepEvidence}, Submit{Files: 2})
		})

		ginkgo.It("counts settled uploads and reaches Ready only when all are done", func() {
			s = step(s, ClaimCreated{ClaimID: "CLM-1"})
			gomega.Expect(Progress(s)).To(gomega.Equal(0))

			s = step(s, UploadDone{})
			gomega.Expect(Progress(s)).To(gomega.Equal(50))
			_, err := Transition(s, UploadsFinished{})
			gomega.Expect(err).To(gomega.MatchError(ErrIllegalTransition))

			s = step(s, UploadDone{})
			gomega.Expect(Progress(s)).To(gomega.Equal(100))
			gomega.Expect(step(s, UploadsFinished{})).To(gomega.Equal(Ready{ClaimID: "CLM-1"}))
		})

		ginkgo.It("never counts more uploads than files", func() {
			s = step(s, ClaimCreated{ClaimID: "CLM-1"})
			s = step(step(s, UploadDone{}), UploadDone{})
			_, err := Transition(s, UploadDone{})
			gomega.Expect(err).To(gomega.MatchError(ErrIllegalTransition))
		})

		ginkgo.It("reports a create failure against the form", func() {
			gomega.Expect(StatusMessage(s)).To(gomega.Equal("Creating claim..."))
			failed := step(s, Fail{Reason: "Network error"})
			gomega.Expect(failed).To(gomega.Equal(Failed{During: PhaseForm, Message: "Error: Network error"}))
			gomega.Expect(StatusMessage(failed)).To(gomega.Equal("Error: Network error"))
		})

		ginkgo.It("reports an upload failure against the upload phase", func() {
			s = step(s, ClaimCreated{ClaimID: "CLM-7"})
			gomega.Expect(StatusMessage(s)).To(gomega.Equal("Claim CLM-7 created. Uploading files..."))
			failed := step(s, Fail{Reason: "upload of a.pdf failed"})
			gomega.Expect(failed).To(gomega.Equal(Failed{During: PhaseUploading, ClaimID: "CLM-7", Message: "Error: upload of a.pdf failed"}))
			gomega.Expect(step(failed, Retry{})).To(gomega.Equal(Form{Step: StepEvidence}))
		})

		ginkgo.It("cannot be closed", func() {
			_, err := Transition(s, Close{})
			gomega.Expect(err).To(gomega.MatchError(ErrIllegalTransition))
		})
	})

	ginkgo.Describe("analysis", func() {
		score := 92

		ginkgo.It("carries the report into Results", func() {
			s := step(Ready{ClaimID: "CLM-1"}, RunAnalysis{})
			gomega.Expect(s).To(gomega.Equal(Analyzing{ClaimID: "CLM-1"}))
			gomega.Expect(StatusMessage(s)).To(gomega.Equal("Analysis triggered for claim CLM-1. This may take a while..."))

			_, err := Transition(s, Close{})
			gomega.Expect(err).To(gomega.MatchError(ErrIllegalTransition))

			s = step(s, AnalysisDone{Report: Report{Score: &score, Factors: []string{"a", "b"}}})
			results, ok := s.(Results)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(*results.Report.Score).To(gomega.Equal(92))
			gomega.Expect(results.Report.Level()).To(gomega.Equal(risk.High))
			gomega.Expect(step(s, Close{})).To(gomega.Equal(Closed{}))
		})

		ginkgo.It("returns to Ready on retry after a failure", func() {
			s := step(Analyzing{ClaimID: "CLM-3"}, Fail{Reason: "timeout"})
			gomega.Expect(StatusMessage(s)).To(gomega.Equal("Error triggering analysis: timeout"))
			gomega.Expect(step(s, Retry{})).To(gomega.Equal(Ready{ClaimID: "CLM-3"}))
		})
	})

	ginkgo.DescribeTable("Close",
		func(s State, allowed bool) {
			next, err := Transition(s, Close{})
			if allowed {
				gomega.Expect(err).To(gomega.Succeed())
				gomega.Expect(next).To(gomega.Equal(Closed{}))
				return
			}
			gomega.Expect(err).To(gomega.MatchError(ErrIllegalTransition))
			gomega.Expect(next).To(gomega.Equal(s))
		},
		ginkgo.Entry("from claim info", Form{Step: StepClaimInfo}, true),
		ginkgo.Entry("from evidence", Form{Step: StepEvidence}, true),
		ginkgo.Entry("from ready", Ready{ClaimID: "c"}, true),
		ginkgo.Entry("from results", Results{ClaimID: "c"}, true),
		ginkgo.Entry("from failed", Failed{During: PhaseUploading, ClaimID: "c"}, true),
		ginkgo.Entry("from uploading", Uploading{ClaimID: "c", Total: 1}, false),
		ginkgo.Entry("from analyzing", Analyzing{ClaimID: "c"}, false),
		ginkgo.Entry("from closed", Closed{}, false),
	)
})
