// Package risk buckets fraud risk scores into display levels.
//
// One threshold table is used everywhere a score is shown:
//
//	score > 75       High
//	40 < score <= 75 Medium
//	score <= 40      Low
//	no score         Pending
package risk

// Level is a risk bucket.
type Level int

const (
	Pending Level = iota
	Low
	Medium
	High
)

const (
	// HighAbove is the exclusive lower bound of the High bucket.
	HighAbove = 75
	// MediumAbove is the exclusive lower bound of the Medium bucket.
	MediumAbove = 40
)

// Classify buckets a score. Scores outside 0..100 are clamped by the same table.
func Classify(score int) Level {
	switch {
	case score > HighAbove:
		return High
	case score > MediumAbove:
		return Medium
	default:
		return Low
	}
}

// Of buckets an optional score; nil means analysis has not produced one yet.
func Of(score *int) Level {
	if score == nil {
		return Pending
	}
	return Classify(*score)
}

func (l Level) String() string {
	switch l {
	case High:
		return "high"
	case Medium:
		return "medium"
	case Low:
		return "low"
	default:
		return "pending"
	}
}

// Label is the human-facing name, e.g. "High Risk".
func (l Level) Label() string {
	switch l {
	case High:
		return "High Risk"
	case Medium:
		return "Medium Risk"
	case Low:
		return "Low Risk"
	default:
		return "Pending"
	}
}
