package model

import "time"

// EnrichmentState represents where a building sits in the enrichment cycle.
type EnrichmentState string

const (
	StateNew       EnrichmentState = "new"
	StateEnriching EnrichmentState = "enriching"
	StateEnriched  EnrichmentState = "enriched"
	StateStale     EnrichmentState = "stale"
)

// SourceStatus describes the outcome of the most recent fetch from one registry.
type SourceStatus string

const (
	SourceStatusNone     SourceStatus = "none"      // never contacted
	SourceStatusOK       SourceStatus = "ok"        // fetched a record
	SourceStatusNotFound SourceStatus = "not_found" // registry confirmed no record
	SourceStatusError    SourceStatus = "error"     // fetch failed after retries
)

// SourceCheck records the status and time of the latest attempt against one
// registry. Errors become stale-eligible sooner than confirmed not-founds.
type SourceCheck struct {
	Status    SourceStatus `json:"status"`
	CheckedAt time.Time    `json:"checked_at"`
}

// Building is the fused parcel entity, keyed by its immutable BBL.
//
// Fields are grouped by the registry that supplies them and are pointer-typed:
// nil means the source has never reported a value, which is distinct from a
// reported zero. Only the fusion engine mutates a Building.
type Building struct {
	BBL   string          `json:"bbl"`
	State EnrichmentState `json:"state"`

	// PLUTO
	OwnerName          *string  `json:"owner_name,omitempty"`
	BuildingClass      *string  `json:"building_class,omitempty"`
	ResidentialUnits   *int     `json:"residential_units,omitempty"`
	TotalUnits         *int     `json:"total_units,omitempty"`
	Floors             *float64 `json:"floors,omitempty"`
	BuildingSqFt       *int     `json:"building_sqft,omitempty"`
	YearBuilt          *int     `json:"year_built,omitempty"`
	YearAltered        *int     `json:"year_altered,omitempty"`
	ZipCode            *string  `json:"zip_code,omitempty"`
	PlutoAssessedTotal *float64 `json:"pluto_assessed_total,omitempty"`

	// RPAD
	TaxpayerName      *string  `json:"taxpayer_name,omitempty"`
	AssessedLandValue *float64 `json:"assessed_land_value,omitempty"`
	RPADAssessedTotal *float64 `json:"rpad_assessed_total,omitempty"`
	TaxDelinquent     *bool    `json:"tax_delinquent,omitempty"`

	// AssessedTotalValue is the effective assessment: RPAD when it has ever
	// responded, PLUTO otherwise. Recomputed on every fusion pass.
	AssessedTotalValue *float64 `json:"assessed_total_value,omitempty"`

	// HPD
	RegisteredOwnerName *string `json:"registered_owner_name,omitempty"`
	HPDViolationCount   *int    `json:"hpd_violation_count,omitempty"`
	HPDOpenViolations   *int    `json:"hpd_open_violations,omitempty"`
	HPDComplaintCount   *int    `json:"hpd_complaint_count,omitempty"`

	// ACRIS-derived (computed from the transaction ledger, not fetched)
	LastSalePrice    *float64   `json:"last_sale_price,omitempty"`
	LastSaleDate     *time.Time `json:"last_sale_date,omitempty"`
	LastSaleBuyer    *string    `json:"last_sale_buyer,omitempty"`
	LastSaleSeller   *string    `json:"last_sale_seller,omitempty"`
	MortgageAmount   *float64   `json:"mortgage_amount,omitempty"`
	MortgageDate     *time.Time `json:"mortgage_date,omitempty"`
	MortgageLender   *string    `json:"mortgage_lender,omitempty"`
	TransactionCount *int       `json:"transaction_count,omitempty"`
	IsCashPurchase   *bool      `json:"is_cash_purchase,omitempty"`
	FinancingRatio   *float64   `json:"financing_ratio,omitempty"`

	// ECB
	ECBViolationCount     *int     `json:"ecb_violation_count,omitempty"`
	ECBOpenViolations     *int     `json:"ecb_open_violations,omitempty"`
	ECBOutstandingBalance *float64 `json:"ecb_outstanding_balance,omitempty"`

	// DOB
	DOBViolationCount *int `json:"dob_violation_count,omitempty"`
	DOBOpenViolations *int `json:"dob_open_violations,omitempty"`

	// Business registry ("real person behind the LLC")
	PrincipalName  *string `json:"principal_name,omitempty"`
	PrincipalTitle *string `json:"principal_title,omitempty"`
	EntityStatus   *string `json:"entity_status,omitempty"`

	// Bookkeeping
	SourceChecks   map[string]SourceCheck `json:"source_checks,omitempty"`
	LastUpdated    time.Time              `json:"last_updated"`
	LastEnrichedAt *time.Time             `json:"last_enriched_at,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// NewBuilding returns a never-enriched building for a freshly derived BBL.
func NewBuilding(bbl string, now time.Time) Building {
	return Building{
		BBL:          bbl,
		State:        StateNew,
		SourceChecks: map[string]SourceCheck{},
		LastUpdated:  now,
		CreatedAt:    now,
	}
}

// DisplayOwner picks the owner identity to surface, by precedence:
// registry principal > HPD registered owner > RPAD taxpayer > PLUTO owner.
// The underlying columns are never merged; this is a read-time choice.
func (b *Building) DisplayOwner() string {
	for _, s := range []*string{b.PrincipalName, b.RegisteredOwnerName, b.TaxpayerName, b.OwnerName} {
		if s != nil && *s != "" {
			return *s
		}
	}
	return ""
}
