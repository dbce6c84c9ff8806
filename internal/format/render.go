package format

import (
	"fmt"
	"strings"

	"veritas/internal/api"
	"veritas/internal/dashboard"
	"veritas/internal/display"
	"veritas/internal/journal"
	"veritas/internal/risk"
)

const summaryWidth = 48

// Claims renders the claim list.
func Claims(m Mode, claims []api.Claim) string {
	tb := NewTable(m)
	tb.Header("Claim", "Status", "Risk", "Score", "Files", "Created", "Summary")
	tb.Columns(
		ColumnConfig{Number: 4, Align: AlignRight},
		ColumnConfig{Number: 5, Align: AlignRight},
	)
	for _, c := range claims {
		tb.Row(
			c.ID,
			display.Status(string(c.Status)),
			risk.Of(c.FraudRiskScore).Label(),
			display.Score(c.FraudRiskScore),
			c.FileCount,
			FmtTime(c.CreatedAt.Time()),
			Truncate(oneLine(c.Summary), summaryWidth),
		)
	}
	tb.Footer("", "", "", "", "", "Total", len(claims))
	return tb.String()
}

// Claim renders one claim as a field/value table.
func Claim(m Mode, c api.Claim) string {
	tb := NewTable(m)
	tb.Header("Field", "Value")
	tb.Columns(ColumnConfig{Number: 2, MaxWidth: 72})
	tb.Row("Claim", c.ID)
	tb.Row("Status", display.StatusWithCode(string(c.Status)))
	tb.Row("Risk", display.RiskWithScore(c.FraudRiskScore))
	tb.Row("Badge", dashboard.Badge(c))
	tb.Row("Files", c.FileCount)
	tb.Row("Created", FmtTime(c.CreatedAt.Time()))
	tb.Row("Updated", FmtTime(c.UpdatedAt.Time()))
	if c.Summary != "" {
		tb.Row("Summary", cell(m, c.Summary))
	}
	tb.Row("Key risk factors", cell(m, display.Factors(c.KeyRiskFactors)))
	if c.AdditionalInfo != "" {
		tb.Row("Notes", cell(m, c.AdditionalInfo))
	}
	return tb.String()
}

// Dashboard renders the statistics and the recent claims.
func Dashboard(m Mode, s dashboard.Summary) string {
	stats := NewTable(m)
	stats.Header("Total Claims", "Pending Review", "High Risk", "Processed Today")
	stats.Row(s.Total, s.Pending, s.HighRisk, s.ProcessedToday)

	recent := NewTable(m)
	recent.Header("Claim", "Status", "Score", "Badge", "Created")
	for _, c := range s.Recent {
		recent.Row(c.ID, display.Status(string(c.Status)), display.Score(c.FraudRiskScore), dashboard.Badge(c), FmtTime(c.CreatedAt.Time()))
	}
	return stats.String() + "\n\nRecent claims\n" + recent.String()
}

// Submissions renders the local submission journal.
func Submissions(m Mode, subs []*journal.Submission) string {
	tb := NewTable(m)
	tb.Header("Run", "Started", "Claim", "Phase", "Files", "Size", "Score", "Failed files")
	tb.Columns(
		ColumnConfig{Number: 5, Align: AlignRight},
		ColumnConfig{Number: 6, Align: AlignRight},
	)
	for _, s := range subs {
		var size int64
		for _, f := range s.Files {
			size += f.Size
		}
		phase := display.Phase(s.Phase)
		if s.FailedDuring != "" {
			phase += " (" + display.Phase(s.FailedDuring) + ")"
		}
		claim := s.ClaimID
		if claim == "" {
			claim = "-"
		}
		score := "-"
		if s.Score != nil {
			score = display.Score(s.Score)
		}
		tb.Row(s.RunID, FmtTime(s.StartedAt.Local()), claim, phase, len(s.Files), FmtBytes(size), score, strings.Join(s.FailedFiles(), ", "))
	}
	return tb.String()
}

// cell keeps multi-line text readable in Markdown, where a newline would end the row.
func cell(m Mode, s string) string {
	if m == Markdown {
		return strings.ReplaceAll(s, "\n", "<br>")
	}
	return s
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Percent renders an upload progress bar: "[#####-----]  50%".
func Percent(p int) string {
	p = max(0, min(100, p))
	filled := p / 10
	return fmt.Sprintf("[%s%s] %3d%%", strings.Repeat("#", filled), strings.Repeat("-", 10-filled), p)
}
