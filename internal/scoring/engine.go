package scoring

import (
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/parcel-cli/internal/model"
)

// Engine computes score records against an injected policy. Scoring is
// additive and fully itemized: every point on a total is traceable to a
// named factor, and removing a factor moves the raw total by exactly that
// factor's points.
type Engine struct {
	policy Policy
}

// New creates an engine over the given point table. The mobile area-code
// set is built here so concurrent Score calls share a read-only policy.
func New(policy Policy) *Engine {
	policy.buildMobileSet()
	return &Engine{policy: policy}
}

// Score computes the lead and risk scores for a building from its fused
// fields and linked permits. Deterministic for fixed inputs and now.
func (e *Engine) Score(b *model.Building, permits []model.Permit, now time.Time) model.ScoreRecord {
	rec := model.ScoreRecord{BBL: b.BBL, ComputedAt: now}

	lead := e.leadFactors(permits, now)
	risk := e.riskFactors(b)

	rec.Factors = append(rec.Factors, lead...)
	rec.Factors = append(rec.Factors, risk...)

	for _, f := range lead {
		rec.LeadRaw += f.Points
	}
	for _, f := range risk {
		rec.RiskRaw += f.Points
	}

	rec.LeadScore, rec.LeadClamped = clamp(rec.LeadRaw)
	rec.RiskScore, rec.RiskClamped = clamp(rec.RiskRaw)
	return rec
}

func (e *Engine) leadFactors(permits []model.Permit, now time.Time) []model.ScoreFactor {
	var out []model.ScoreFactor

	if newest := newestIssued(permits); newest != nil {
		days := int(now.Sub(*newest).Hours() / 24)
		if days < 0 {
			days = 0
		}
		if pts := tierPoints(e.policy.RecencyTiers, days, true); pts > 0 {
			out = append(out, model.ScoreFactor{
				Kind:     model.FactorLead,
				Name:     "permit_recency",
				Points:   pts,
				Detail:   fmt.Sprintf("most recent permit issued %d days ago", days),
				Severity: model.SeverityInfo,
			})
		}
	}

	contacts, mobiles := e.distinctContacts(permits)
	if pts := tierPoints(e.policy.ContactTiers, contacts, false); pts > 0 {
		out = append(out, model.ScoreFactor{
			Kind:     model.FactorLead,
			Name:     "contact_depth",
			Points:   pts,
			Detail:   fmt.Sprintf("%d distinct contacts on file", contacts),
			Severity: model.SeverityInfo,
		})
	}
	if mobiles > 0 {
		bonus := mobiles * e.policy.MobileBonusPoints
		if bonus > e.policy.MobileBonusCap {
			bonus = e.policy.MobileBonusCap
		}
		if bonus > 0 {
			out = append(out, model.ScoreFactor{
				Kind:     model.FactorLead,
				Name:     "mobile_contacts",
				Points:   bonus,
				Detail:   fmt.Sprintf("%d likely-mobile contacts (area-code heuristic)", mobiles),
				Severity: model.SeverityInfo,
			})
		}
	}

	if units := maxUnits(permits); units > 0 {
		if pts := tierPoints(e.policy.ScaleTiers, units, false); pts > 0 {
			out = append(out, model.ScoreFactor{
				Kind:     model.FactorLead,
				Name:     "project_scale",
				Points:   pts,
				Detail:   fmt.Sprintf("largest permit declares %d units", units),
				Severity: model.SeverityInfo,
			})
		}
	}

	if jt, pts := e.bestJobType(permits); pts > 0 {
		out = append(out, model.ScoreFactor{
			Kind:     model.FactorLead,
			Name:     "job_type",
			Points:   pts,
			Detail:   fmt.Sprintf("highest-weight job type %s", jt),
			Severity: model.SeverityInfo,
		})
	}

	return out
}

func (e *Engine) riskFactors(b *model.Building) []model.ScoreFactor {
	var out []model.ScoreFactor
	rp := e.policy.Risk

	if rp.ECBBalance.Enabled && b.ECBOutstandingBalance != nil && *b.ECBOutstandingBalance > 0 {
		pts := rp.PointsPerDigit * digits(*b.ECBOutstandingBalance)
		if pts > rp.BalanceCap {
			pts = rp.BalanceCap
		}
		out = append(out, model.ScoreFactor{
			Kind:     model.FactorRisk,
			Name:     "ecb_outstanding_balance",
			Points:   pts,
			Detail:   fmt.Sprintf("$%.2f in unpaid ECB penalties", *b.ECBOutstandingBalance),
			Severity: model.SeverityCritical,
		})
	}

	if rp.TaxDelinquency.Enabled && rp.TaxDelinquency.Points != 0 &&
		b.TaxDelinquent != nil && *b.TaxDelinquent {
		out = append(out, model.ScoreFactor{
			Kind:     model.FactorRisk,
			Name:     "tax_delinquency",
			Points:   rp.TaxDelinquency.Points,
			Detail:   "property flagged tax delinquent",
			Severity: model.SeverityWarning,
		})
	}

	if rp.OpenViolations.Enabled && rp.OpenViolations.Points != 0 {
		open := intOrZero(b.DOBOpenViolations) + intOrZero(b.HPDOpenViolations)
		if open > rp.OpenViolationThreshold {
			out = append(out, model.ScoreFactor{
				Kind:     model.FactorRisk,
				Name:     "open_violations",
				Points:   rp.OpenViolations.Points,
				Detail:   fmt.Sprintf("%d open DOB/HPD violations", open),
				Severity: model.SeverityWarning,
			})
		}
	}

	if rp.CashPurchase.Enabled && rp.CashPurchase.Points != 0 &&
		b.IsCashPurchase != nil && *b.IsCashPurchase {
		out = append(out, model.ScoreFactor{
			Kind:     model.FactorRisk,
			Name:     "cash_purchase",
			Points:   rp.CashPurchase.Points,
			Detail:   "last sale closed without recorded financing",
			Severity: model.SeverityInfo,
		})
	}

	return out
}

func (e *Engine) distinctContacts(permits []model.Permit) (total, mobiles int) {
	seen := make(map[string]bool)
	for _, p := range permits {
		for _, c := range p.Contacts {
			if c.Name == "" && c.Phone == "" {
				continue
			}
			key := strings.ToUpper(c.Name) + "|" + c.Phone
			if seen[key] {
				continue
			}
			seen[key] = true
			total++
			if c.IsMobile || e.policy.IsMobilePhone(c.Phone) {
				mobiles++
			}
		}
	}
	return total, mobiles
}

// bestJobType returns the highest-weight job type across the permits. Job
// types are matched exactly, then by alteration family: A1/A2/A3 fall under
// the AL weight.
func (e *Engine) bestJobType(permits []model.Permit) (string, int) {
	bestType, bestPts := "", 0
	for _, p := range permits {
		jt := strings.ToUpper(strings.TrimSpace(p.JobType))
		if jt == "" {
			continue
		}
		pts, ok := e.policy.JobTypeWeights[jt]
		if !ok && jt[0] == 'A' {
			pts = e.policy.JobTypeWeights["AL"]
		}
		if pts > bestPts {
			bestType, bestPts = jt, pts
		}
	}
	return bestType, bestPts
}

func newestIssued(permits []model.Permit) *time.Time {
	var newest *time.Time
	for i := range permits {
		t := permits[i].IssuedAt
		if t == nil {
			continue
		}
		if newest == nil || t.After(*newest) {
			newest = t
		}
	}
	return newest
}

func maxUnits(permits []model.Permit) int {
	max := 0
	for _, p := range permits {
		if p.Units != nil && *p.Units > max {
			max = *p.Units
		}
	}
	return max
}

// digits counts the decimal digits of the integer part, driving the stepped
// ECB balance contribution: $500 is 3 digits, $25,000 is 5.
func digits(v float64) int {
	n := 0
	for whole := int64(v); whole > 0; whole /= 10 {
		n++
	}
	if n == 0 {
		n = 1
	}
	return n
}

func clamp(raw int) (score int, clamped bool) {
	switch {
	case raw < 0:
		return 0, true
	case raw > 100:
		return 100, true
	default:
		return raw, false
	}
}

func intOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
