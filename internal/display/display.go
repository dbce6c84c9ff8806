// Package display provides human-readable names for machine codes.
//
// Rule: code is for machines, words are for humans.
// Use these functions in CLI output, markdown reports, and logs.
// Keep raw codes for JSON fields, map keys, and equality comparisons.
package display

import (
	"strconv"
	"strings"

	"veritas/internal/risk"
)

// --- Claim Statuses ---

var statuses = map[string]string{
	"upload_in_progress": "Upload In Progress",
	"analyzing":          "Analyzing",
	"ready_for_review":   "Ready For Review",
	"escalated":          "Escalated",
	"analyzed":           "Analyzed",
}

// Status returns the human-readable name for a claim status code.
// Unknown codes are title-cased from snake_case: "on_hold" -> "On Hold".
func Status(code string) string {
	if name, ok := statuses[code]; ok {
		return name
	}
	return titleSnake(code)
}

// StatusWithCode returns "Ready For Review (ready_for_review)" format.
func StatusWithCode(code string) string {
	if name, ok := statuses[code]; ok {
		return name + " (" + code + ")"
	}
	return code
}

func titleSnake(code string) string {
	words := strings.Split(code, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// --- Risk ---

// Score formats an optional fraud risk score: "92/100" or "Pending".
func Score(score *int) string {
	if score == nil {
		return "Pending"
	}
	return strconv.Itoa(*score) + "/100"
}

// RiskWithScore returns "High Risk (92)" format, or "Pending" when unscored.
func RiskWithScore(score *int) string {
	if score == nil {
		return risk.Pending.Label()
	}
	return risk.Classify(*score).Label() + " (" + strconv.Itoa(*score) + ")"
}

// --- Phases ---

var phases = map[string]string{
	"form":      "Claim Details",
	"uploading": "Uploading Evidence",
	"ready":     "Ready",
	"analyzing": "Analyzing",
	"results":   "Results",
	"failed":    "Failed",
	"closed":    "Closed",
}

// Phase returns the human-readable name for a submission phase code.
func Phase(code string) string {
	if name, ok := phases[code]; ok {
		return name
	}
	return code
}

// PhasePath converts a slice of phase codes to a human-readable path.
// ["form", "uploading", "ready"] -> "Claim Details → Uploading Evidence → Ready"
func PhasePath(codes []string) string {
	names := make([]string, len(codes))
	for i, c := range codes {
		names[i] = Phase(c)
	}
	return strings.Join(names, " → ")
}

// Factors renders key risk factors as a bulleted block, or "None reported".
func Factors(factors []string) string {
	if len(factors) == 0 {
		return "None reported"
	}
	var b strings.Builder
	for i, f := range factors {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(f)
	}
	return b.String()
}
