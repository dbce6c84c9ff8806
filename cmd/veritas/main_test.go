package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"veritas/internal/api"
	"veritas/internal/api/apitest"
	"veritas/internal/config"
	"veritas/internal/dashboard"
	"veritas/internal/journal"
	"veritas/internal/session"
	"veritas/internal/workflow"
)

type harness struct {
	t   *testing.T
	srv *apitest.Server
	env map[string]string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)
	dir := t.TempDir()
	// Keep the user's own config file out of the run.
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	return &harness{t: t, srv: srv, env: map[string]string{
		config.EnvBaseURL:     srv.BaseURL(),
		config.EnvSessionFile: filepath.Join(dir, "session.yaml"),
		config.EnvJournalDB:   filepath.Join(dir, "journal.db"),
	}}
}

// run executes one veritas invocation in process.
func (h *harness) run(stdin string, args ...string) (stdout, stderr string, err error) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd(func(k string) string { return h.env[k] })
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	err = root.Execute()
	return out.String(), errOut.String(), err
}

func (h *harness) mustRun(stdin string, args ...string) string {
	h.t.Helper()
	out, errOut, err := h.run(stdin, args...)
	if err != nil {
		h.t.Fatalf("veritas %s: %v\nstderr:\n%s", strings.Join(args, " "), err, errOut)
	}
	return out
}

func (h *harness) login(email string) {
	h.t.Helper()
	h.srv.Register(email, "s3cret", "")
	h.mustRun("", "login", "--email", email, "--password", "s3cret")
}

func writeFiles(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
		if err := os.WriteFile(paths[i], []byte("evidence "+n), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return paths
}

func score(n int) *int { return &n }

func TestLoginWhoamiLogout(t *testing.T) {
	h := newHarness(t)
	h.srv.Register("jane.doe@example.com", "s3cret", "Jane Doe")

	out := h.mustRun("", "login", "--email", "jane.doe@example.com", "--password", "s3cret")
	if !strings.Contains(out, "Logged in as jane.doe@example.com.") {
		t.Errorf("login output = %q", out)
	}

	out = h.mustRun("", "whoami")
	if !strings.Contains(out, "Jane.doe <jane.doe@example.com>") || !strings.Contains(out, "Role: Adjuster") {
		t.Errorf("whoami output = %q", out)
	}

	h.mustRun("", "logout")
	if _, _, err := h.run("", "whoami"); !errors.Is(err, session.ErrNotLoggedIn) {
		t.Errorf("whoami after logout: err = %v, want ErrNotLoggedIn", err)
	}
}

func TestLogin_PasswordFromStdin(t *testing.T) {
	h := newHarness(t)
	h.srv.Register("sam@example.com", "from-stdin", "")

	h.mustRun("from-stdin\n", "login", "--email", "sam@example.com")

	if _, _, err := h.run("wrong\n", "login", "--email", "sam@example.com"); !api.IsUnauthorized(err) {
		t.Errorf("wrong password: err = %v, want 401", err)
	}
}

func TestSignup(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("pw\n", "signup", "--email", "sam@example.com", "--name", "Sam Smith")
	if !strings.Contains(out, "Welcome, Sam!") {
		t.Errorf("signup output = %q", out)
	}
	if _, _, err := h.run("pw\n", "signup", "--email", "x@example.com"); !errors.Is(err, session.ErrMissingSignupFields) {
		t.Errorf("signup without name: err = %v", err)
	}
}

func TestCommandsRequireLogin(t *testing.T) {
	h := newHarness(t)
	for _, args := range [][]string{
		{"claims", "list"},
		{"claims", "show", "CLM-1"},
		{"claims", "analyze", "CLM-1"},
		{"ask", "CLM-1", "hello"},
		{"dashboard"},
	} {
		if _, _, err := h.run("", args...); !errors.Is(err, session.ErrNotLoggedIn) {
			t.Errorf("%v: err = %v, want ErrNotLoggedIn", args, err)
		}
	}
}

func TestClaimsCreate_WithAnalysis(t *testing.T) {
	h := newHarness(t)
	h.login("jane@example.com")
	files := writeFiles(t, "a.pdf", "b.jpg")

	out, errOut, err := h.run("", "claims", "create", "--file", files[0], "--file", files[1], "--notes", "rear bumper", "--analyze")
	if err != nil {
		t.Fatalf("create: %v\n%s", err, errOut)
	}
	for _, want := range []string{"Claim CLM-1 submitted with 2 file(s).", "Risk: High Risk (92)", "- a\n- b"} {
		if !strings.Contains(out, want) {
			t.Errorf("stdout missing %q:\n%s", want, out)
		}
	}
	for _, want := range []string{"Creating claim...", "[##########] 100% Claim CLM-1 created.", "All files uploaded successfully.", "Analysis complete for claim CLM-1."} {
		if !strings.Contains(errOut, want) {
			t.Errorf("stderr missing %q:\n%s", want, errOut)
		}
	}

	if diff := cmp.Diff([]api.CreateClaimRequest{{FileCount: 2, AdditionalInfo: "rear bumper"}}, h.srv.Creates()); diff != "" {
		t.Errorf("create requests (-want +got):\n%s", diff)
	}
	if got := len(h.srv.Uploads()); got != 2 {
		t.Errorf("uploads = %d, want 2", got)
	}

	var subs []journal.Submission
	if err := json.Unmarshal([]byte(h.mustRun("", "history", "-o", "json")), &subs); err != nil {
		t.Fatal(err)
	}
	if len(subs) != 1 {
		t.Fatalf("history has %d runs, want 1", len(subs))
	}
	got := subs[0]
	if got.ClaimID != "CLM-1" || got.Phase != "results" || got.Score == nil || *got.Score != 92 {
		t.Errorf("journal entry = %+v", got)
	}
	if diff := cmp.Diff([]journal.File{{Name: "a.pdf", Size: 14}, {Name: "b.jpg", Size: 14}}, got.Files); diff != "" {
		t.Errorf("journal files (-want +got):\n%s", diff)
	}
}

func TestClaimsCreate_UploadFailure(t *testing.T) {
	h := newHarness(t)
	h.login("jane@example.com")
	h.srv.RejectUpload("b.jpg")
	files := writeFiles(t, "a.pdf", "b.jpg")

	_, _, err := h.run("", "claims", "create", "-f", files[0], "-f", files[1], "--analyze")
	if !errors.Is(err, errSubmissionFailed) {
		t.Fatalf("err = %v, want errSubmissionFailed", err)
	}
	if !strings.Contains(err.Error(), "upload of b.jpg failed") {
		t.Errorf("err = %v, want the failed file named", err)
	}
	if got := h.srv.Analyses(); len(got) != 0 {
		t.Errorf("analysis ran after a failed upload: %v", got)
	}

	var subs []journal.Submission
	if err := json.Unmarshal([]byte(h.mustRun("", "history", "-o", "json")), &subs); err != nil {
		t.Fatal(err)
	}
	if len(subs) != 1 {
		t.Fatalf("history has %d runs, want 1", len(subs))
	}
	got := subs[0]
	if got.Phase != "failed" || got.FailedDuring != "uploading" || got.ClaimID != "CLM-1" {
		t.Errorf("journal entry = %+v", got)
	}
	if diff := cmp.Diff([]string{"b.jpg"}, got.FailedFiles()); diff != "" {
		t.Errorf("failed files (-want +got):\n%s", diff)
	}
}

func TestOutcomeOf_RecordsFailedPositions(t *testing.T) {
	state := workflow.Failed{During: workflow.PhaseUploading, ClaimID: "CLM-2", Message: "Error: upload of photo.jpg failed: connection reset"}
	uploadErr := &workflow.UploadError{Total: 3, Files: []workflow.FileError{
		{Index: 1, Name: "photo.jpg", Err: errors.New("connection reset")},
	}}

	got := outcomeOf(state, "", uploadErr)
	want := journal.Outcome{
		ClaimID:         "CLM-2",
		Phase:           "failed",
		FailedDuring:    "uploading",
		Message:         "Error: upload of photo.jpg failed: connection reset",
		FailedPositions: []int{1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("outcome mismatch (-want +got):\n%s", diff)
	}
}

func TestClaimsCreate_NoFiles(t *testing.T) {
	h := newHarness(t)
	h.login("jane@example.com")

	if _, _, err := h.run("", "claims", "create", "--notes", "nothing attached"); err == nil {
		t.Fatal("create without files succeeded")
	}
	if got := h.srv.Creates(); len(got) != 0 {
		t.Errorf("claim created without files: %v", got)
	}
}

func TestClaimsListAndShow(t *testing.T) {
	h := newHarness(t)
	h.login("jane@example.com")
	h.srv.SeedClaim("jane@example.com", api.Claim{ID: "CLM-9", Status: api.StatusReadyForReview, FraudRiskScore: score(88), Summary: "Duplicate invoice."})
	h.srv.SeedClaim("jane@example.com", api.Claim{ID: "CLM-10", Status: api.StatusUploadInProgress})
	h.srv.SeedClaim("other@example.com", api.Claim{ID: "CLM-11", Status: api.StatusAnalyzed, FraudRiskScore: score(95)})

	var claims []api.Claim
	if err := json.Unmarshal([]byte(h.mustRun("", "claims", "list", "--risk", "high", "-o", "json")), &claims); err != nil {
		t.Fatal(err)
	}
	if len(claims) != 1 || claims[0].ID != "CLM-9" {
		t.Errorf("high-risk claims = %+v, want only CLM-9", claims)
	}

	out := h.mustRun("", "claims", "list")
	if !strings.Contains(out, "CLM-10") || strings.Contains(out, "CLM-11") {
		t.Errorf("list shows another adjuster's claims or misses own:\n%s", out)
	}

	out = h.mustRun("", "claims", "show", "CLM-9", "-o", "markdown")
	if !strings.Contains(out, "Duplicate invoice.") || !strings.Contains(out, "|") {
		t.Errorf("show output = %q", out)
	}

	if _, _, err := h.run("", "claims", "show", "CLM-11"); !api.IsNotFound(err) {
		t.Errorf("show other adjuster's claim: err = %v, want 404", err)
	}
}

func TestClaimsAnalyze(t *testing.T) {
	h := newHarness(t)
	h.login("jane@example.com")
	h.srv.SeedClaim("jane@example.com", api.Claim{ID: "CLM-3", Status: api.StatusUploadInProgress})

	out := h.mustRun("", "claims", "analyze", "CLM-3")
	if !strings.Contains(out, "Risk: High Risk (92)") {
		t.Errorf("analyze output = %q", out)
	}
	if diff := cmp.Diff([]string{"CLM-3"}, h.srv.Analyses()); diff != "" {
		t.Errorf("analyses (-want +got):\n%s", diff)
	}
}

func TestAsk(t *testing.T) {
	h := newHarness(t)
	h.login("jane@example.com")
	h.srv.SeedClaim("jane@example.com", api.Claim{ID: "CLM-1", Status: api.StatusReadyForReview})

	out := h.mustRun("", "ask", "CLM-1", "who", "is", "the", "claimant?")
	if got, want := strings.TrimSpace(out), "You asked: who is the claimant?"; got != want {
		t.Errorf("ask output = %q, want %q", got, want)
	}

	h.srv.FailNext("query", 403, "Forbidden")
	if _, _, err := h.run("", "ask", "CLM-1", "again"); err == nil || err.Error() != "You do not have permission to investigate this claim." {
		t.Errorf("ask forbidden: err = %v", err)
	}
}

func TestChat_ContinuesConversation(t *testing.T) {
	h := newHarness(t)
	h.login("jane@example.com")
	h.srv.SeedClaim("jane@example.com", api.Claim{ID: "CLM-1", Status: api.StatusReadyForReview})

	out := h.mustRun("first\n\nsecond\n/quit\nnever sent\n", "chat", "CLM-1")
	for _, want := range []string{"Hello Jane!", "copilot> You asked: first", "copilot> You asked: second"} {
		if !strings.Contains(out, want) {
			t.Errorf("chat output missing %q:\n%s", want, out)
		}
	}

	qs := h.srv.Queries()
	if len(qs) != 2 {
		t.Fatalf("queries = %d, want 2", len(qs))
	}
	if qs[0].Request.ConversationID != "conv-CLM-1" || qs[1].Request.ConversationID != "conv-CLM-1" {
		t.Errorf("conversation ids = %q, %q", qs[0].Request.ConversationID, qs[1].Request.ConversationID)
	}
	if qs[0].Request.ParentMessageID == qs[1].Request.ParentMessageID {
		t.Errorf("second query did not continue from the first answer: parent %q", qs[1].Request.ParentMessageID)
	}
}

func TestChat_Commands(t *testing.T) {
	h := newHarness(t)
	h.login("jane@example.com")
	h.srv.SeedClaim("jane@example.com", api.Claim{ID: "CLM-1", Status: api.StatusReadyForReview})
	h.srv.SeedClaim("jane@example.com", api.Claim{ID: "CLM-2", Status: api.StatusReadyForReview})

	out := h.mustRun("/claimCLM-2\n/claim\n/claim CLM-2\nwhat changed?\n/quit\n", "chat", "CLM-1")
	for _, want := range []string{
		"unknown command /claimCLM-2",
		"usage: /claim <id>",
		"Now investigating claim CLM-2.",
		"[CLM-2] you> ",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("chat output missing %q:\n%s", want, out)
		}
	}

	qs := h.srv.Queries()
	if len(qs) != 1 || qs[0].ClaimID != "CLM-2" {
		t.Errorf("queries = %+v, want one about CLM-2", qs)
	}
}

func TestDashboard(t *testing.T) {
	h := newHarness(t)
	h.login("jane@example.com")
	h.srv.SeedClaim("jane@example.com", api.Claim{ID: "CLM-1", Status: api.StatusReadyForReview, FraudRiskScore: score(90)})
	h.srv.SeedClaim("jane@example.com", api.Claim{ID: "CLM-2", Status: api.StatusUploadInProgress})

	var sum dashboard.Summary
	if err := json.Unmarshal([]byte(h.mustRun("", "dashboard", "-o", "json")), &sum); err != nil {
		t.Fatal(err)
	}
	if sum.Total != 2 || sum.HighRisk != 1 || sum.Pending != 1 {
		t.Errorf("summary = %+v", sum)
	}

	out := h.mustRun("", "dashboard")
	if !strings.Contains(out, "Welcome back, Jane!") {
		t.Errorf("dashboard output = %q", out)
	}
}

func TestOutputFlagValidation(t *testing.T) {
	h := newHarness(t)
	if _, _, err := h.run("", "claims", "list", "-o", "yaml"); err == nil {
		t.Error("unknown --output accepted")
	}
}

func TestVersion(t *testing.T) {
	h := newHarness(t)
	out := h.mustRun("", "version")
	if got := strings.TrimSpace(out); got != "veritas dev" {
		t.Errorf("version = %q", got)
	}
}
