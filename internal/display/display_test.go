package display

import "testing"

func TestStatus(t *testing.T) {
	cases := []struct {
		code, want string
	}{
		{"upload_in_progress", "Upload In Progress"},
		{"analyzing", "Analyzing"},
		{"ready_for_review", "Ready For Review"},
		{"escalated", "Escalated"},
		{"analyzed", "Analyzed"},
		{"on_hold", "On Hold"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Status(tc.code); got != tc.want {
			t.Errorf("Status(%q) = %q, want %q", tc.code, got, tc.want)
		}
	}
}

func TestStatusWithCode(t *testing.T) {
	if got := StatusWithCode("escalated"); got != "Escalated (escalated)" {
		t.Errorf("got %q", got)
	}
	if got := StatusWithCode("unknown"); got != "unknown" {
		t.Errorf("got %q", got)
	}
}

func TestScore(t *testing.T) {
	high, low := 92, 10
	if got := Score(&high); got != "92/100" {
		t.Errorf("Score(92) = %q", got)
	}
	if got := Score(nil); got != "Pending" {
		t.Errorf("Score(nil) = %q", got)
	}
	if got := RiskWithScore(&high); got != "High Risk (92)" {
		t.Errorf("RiskWithScore(92) = %q", got)
	}
	if got := RiskWithScore(&low); got != "Low Risk (10)" {
		t.Errorf("RiskWithScore(10) = %q", got)
	}
	if got := RiskWithScore(nil); got != "Pending" {
		t.Errorf("RiskWithScore(nil) = %q", got)
	}
}

func TestPhasePath(t *testing.T) {
	got := PhasePath([]string{"form", "uploading", "ready"})
	want := "Claim Details → Uploading Evidence → Ready"
	if got != want {
		t.Errorf("PhasePath = %q, want %q", got, want)
	}
	if got := Phase("mystery"); got != "mystery" {
		t.Errorf("Phase(mystery) = %q", got)
	}
}

func TestFactors(t *testing.T) {
	if got := Factors(nil); got != "None reported" {
		t.Errorf("Factors(nil) = %q", got)
	}
	if got := Factors([]string{"a", "b"}); got != "- a\n- b" {
		t.Errorf("Factors = %q", got)
	}
}
