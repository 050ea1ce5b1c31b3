package model

import "time"

// Severity classifies a risk factor for display.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// FactorKind separates lead-priority factors from risk factors.
type FactorKind string

const (
	FactorLead FactorKind = "lead"
	FactorRisk FactorKind = "risk"
)

// ScoreFactor is one itemized contribution to a score. The factor lists are
// the "show me why" payload: per kind, points always sum to the raw score.
type ScoreFactor struct {
	Kind     FactorKind `json:"kind"`
	Name     string     `json:"name"`
	Points   int        `json:"points"`
	Detail   string     `json:"detail"`
	Severity Severity   `json:"severity"`
}

// ScoreRecord is the most recent scoring output for a building. Fully derived
// from the building plus its linked permits and transactions; recomputed and
// replaced, never independently mutated.
type ScoreRecord struct {
	BBL string `json:"bbl"`

	LeadScore int `json:"lead_score"` // clamped to [0,100]
	RiskScore int `json:"risk_score"` // clamped to [0,100]

	// Raw sums before clamping. Factor points sum to these, not to the
	// clamped totals; the Clamped flags say when the two differ.
	LeadRaw     int  `json:"lead_raw"`
	RiskRaw     int  `json:"risk_raw"`
	LeadClamped bool `json:"lead_clamped"`
	RiskClamped bool `json:"risk_clamped"`

	Factors    []ScoreFactor `json:"factors"`
	ComputedAt time.Time     `json:"computed_at"`
}

// LeadFactors returns the lead-priority slice of the factor list.
func (s *ScoreRecord) LeadFactors() []ScoreFactor { return s.factorsOf(FactorLead) }

// RiskFactors returns the risk slice of the factor list.
func (s *ScoreRecord) RiskFactors() []ScoreFactor { return s.factorsOf(FactorRisk) }

func (s *ScoreRecord) factorsOf(kind FactorKind) []ScoreFactor {
	var out []ScoreFactor
	for _, f := range s.Factors {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}
