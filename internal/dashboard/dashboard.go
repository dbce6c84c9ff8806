// Package dashboard computes the adjuster's overview statistics from the
// claim list.
package dashboard

import (
	"slices"
	"time"

	"veritas/internal/api"
	"veritas/internal/risk"
)

// RecentLimit is how many claims Summary.Recent holds.
const RecentLimit = 5

// Summary is the dashboard header and recent-claims table.
type Summary struct {
	Total          int         `json:"total"`
	Pending        int         `json:"pending"`
	HighRisk       int         `json:"high_risk"`
	ProcessedToday int         `json:"processed_today"`
	Recent         []api.Claim `json:"recent"`
}

// Summarize counts claims as of now. "Today" is now's calendar day in now's
// location. Recent holds the newest claims by creation time.
func Summarize(claims []api.Claim, now time.Time) Summary {
	s := Summary{Total: len(claims)}
	y, m, d := now.Date()
	for _, c := range claims {
		if c.Status == api.StatusUploadInProgress {
			s.Pending++
		}
		if risk.Of(c.FraudRiskScore) == risk.High {
			s.HighRisk++
		}
		if !c.CreatedAt.IsZero() {
			cy, cm, cd := c.CreatedAt.Time().In(now.Location()).Date()
			if cy == y && cm == m && cd == d {
				s.ProcessedToday++
			}
		}
	}

	sorted := slices.Clone(claims)
	slices.SortStableFunc(sorted, func(a, b api.Claim) int {
		return b.CreatedAt.Time().Compare(a.CreatedAt.Time())
	})
	s.Recent = sorted[:min(RecentLimit, len(sorted))]
	return s
}

// Badge is the one-word state shown next to a claim.
func Badge(c api.Claim) string {
	switch {
	case risk.Of(c.FraudRiskScore) == risk.High:
		return "High Risk"
	case c.Status == api.StatusUploadInProgress:
		return "Pending"
	default:
		return "Analyzed"
	}
}
