// Package scoring computes the lead-priority and risk scores for a fused
// building. Scoring is a pure function of its inputs and an injected policy
// table, so alternate point tables can be substituted in tests and every
// factor can be toggled independently.
package scoring

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Tier maps an input threshold to points. Tiers are evaluated in order;
// the first matching tier wins.
type Tier struct {
	Threshold int `yaml:"threshold"`
	Points    int `yaml:"points"`
}

// RiskFactorPolicy configures one risk factor. Points of zero or
// Enabled=false removes the factor entirely, keeping the factor-sum
// contract intact.
type RiskFactorPolicy struct {
	Enabled bool `yaml:"enabled"`
	Points  int  `yaml:"points"`
}

// RiskPolicy holds the risk point table.
type RiskPolicy struct {
	// ECB balance contribution scales with the balance's digit count:
	// PointsPerDigit * digits, capped at BalanceCap.
	ECBBalance     RiskFactorPolicy `yaml:"ecb_balance"`
	PointsPerDigit int              `yaml:"points_per_digit"`
	BalanceCap     int              `yaml:"balance_cap"`

	TaxDelinquency RiskFactorPolicy `yaml:"tax_delinquency"`

	OpenViolations         RiskFactorPolicy `yaml:"open_violations"`
	OpenViolationThreshold int              `yaml:"open_violation_threshold"`

	// CashPurchase lowers risk: its points are negative.
	CashPurchase RiskFactorPolicy `yaml:"cash_purchase"`
}

// Policy is the complete scoring point table. Injected into the engine,
// never read from module-level globals.
type Policy struct {
	// Lead: permit recency. Threshold is max age in days.
	RecencyTiers []Tier `yaml:"recency_tiers"`

	// Lead: distinct contact count. Threshold is min contacts.
	ContactTiers      []Tier `yaml:"contact_tiers"`
	MobileBonusPoints int    `yaml:"mobile_bonus_points"` // per mobile contact
	MobileBonusCap    int    `yaml:"mobile_bonus_cap"`

	// Lead: project scale. Threshold is min units.
	ScaleTiers []Tier `yaml:"scale_tiers"`

	// Lead: job-type weight by permit job-type prefix.
	JobTypeWeights map[string]int `yaml:"job_type_weights"`

	// MobileAreaCodes drives the mobile-contact classification. This is an
	// area-code heuristic against mobile-heavy prefixes, not a carrier
	// lookup, and results must be presented as approximate.
	MobileAreaCodes []string `yaml:"mobile_area_codes"`

	Risk RiskPolicy `yaml:"risk"`

	mobileSet map[string]bool
}

// DefaultPolicy returns the standard point table.
func DefaultPolicy() Policy {
	return Policy{
		RecencyTiers: []Tier{
			{Threshold: 30, Points: 40},
			{Threshold: 90, Points: 30},
			{Threshold: 180, Points: 20},
			{Threshold: 365, Points: 10},
		},
		ContactTiers: []Tier{
			{Threshold: 3, Points: 30},
			{Threshold: 2, Points: 20},
			{Threshold: 1, Points: 10},
		},
		MobileBonusPoints: 5,
		MobileBonusCap:    10,
		ScaleTiers: []Tier{
			{Threshold: 50, Points: 20},
			{Threshold: 20, Points: 15},
			{Threshold: 10, Points: 10},
			{Threshold: 5, Points: 5},
		},
		JobTypeWeights: map[string]int{
			"NB": 10,
			"AL": 7, // covers A1/A2/A3 via the AL prefix family
			"DM": 5,
		},
		MobileAreaCodes: []string{"917", "347", "929", "646", "332"},
		Risk: RiskPolicy{
			ECBBalance:             RiskFactorPolicy{Enabled: true, Points: 0},
			PointsPerDigit:         8,
			BalanceCap:             40,
			TaxDelinquency:         RiskFactorPolicy{Enabled: true, Points: 15},
			OpenViolations:         RiskFactorPolicy{Enabled: true, Points: 10},
			OpenViolationThreshold: 5,
			CashPurchase:           RiskFactorPolicy{Enabled: true, Points: -10},
		},
	}
}

// LoadPolicy reads a YAML policy override. Missing file fields keep their
// zero values, so override files should start from the default table.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, eris.Wrapf(err, "scoring: read policy %s", path)
	}
	p := DefaultPolicy()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, eris.Wrapf(err, "scoring: parse policy %s", path)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate checks that the point table is internally consistent.
func (p Policy) Validate() error {
	var errs []string

	for name, tiers := range map[string][]Tier{
		"recency_tiers": p.RecencyTiers,
		"contact_tiers": p.ContactTiers,
		"scale_tiers":   p.ScaleTiers,
	} {
		for i, tier := range tiers {
			if tier.Points < 0 {
				errs = append(errs, fmt.Sprintf("%s[%d]: points must be >= 0", name, i))
			}
		}
	}
	if p.MobileBonusPoints < 0 {
		errs = append(errs, "mobile_bonus_points must be >= 0")
	}
	if p.MobileBonusCap < 0 {
		errs = append(errs, "mobile_bonus_cap must be >= 0")
	}
	for jt, w := range p.JobTypeWeights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("job_type_weights[%s] must be >= 0", jt))
		}
	}
	if p.Risk.PointsPerDigit < 0 {
		errs = append(errs, "risk.points_per_digit must be >= 0")
	}
	if p.Risk.BalanceCap < 0 {
		errs = append(errs, "risk.balance_cap must be >= 0")
	}
	if p.Risk.OpenViolationThreshold < 0 {
		errs = append(errs, "risk.open_violation_threshold must be >= 0")
	}
	if p.Risk.CashPurchase.Points > 0 {
		errs = append(errs, "risk.cash_purchase.points must be <= 0 (it lowers risk)")
	}

	if len(errs) > 0 {
		return eris.Errorf("scoring: policy validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// IsMobilePhone classifies a phone number by area code against the policy's
// mobile-heavy prefixes. This is an approximation, not a carrier lookup.
func (p *Policy) IsMobilePhone(phone string) bool {
	if p.mobileSet == nil {
		p.buildMobileSet()
	}

	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if strings.HasPrefix(d, "1") && len(d) == 11 {
		d = d[1:]
	}
	if len(d) < 10 {
		return false
	}
	return p.mobileSet[d[:3]]
}

func (p *Policy) buildMobileSet() {
	p.mobileSet = make(map[string]bool, len(p.MobileAreaCodes))
	for _, code := range p.MobileAreaCodes {
		p.mobileSet[code] = true
	}
}

// tierPoints returns the points of the first tier whose threshold the value
// meets. For recency the comparison is value <= threshold; for counts it is
// value >= threshold.
func tierPoints(tiers []Tier, value int, atMost bool) int {
	for _, tier := range tiers {
		if atMost && value <= tier.Threshold {
			return tier.Points
		}
		if !atMost && value >= tier.Threshold {
			return tier.Points
		}
	}
	return 0
}
