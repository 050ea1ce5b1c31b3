// Package source defines the registry adapter contract: each adapter fetches
// a normalized partial record for one parcel, or reports not-found/error.
package source

import "time"

// Source names, in fusion display-precedence-relevant order.
const (
	NamePluto    = "pluto"
	NameRPAD     = "rpad"
	NameHPD      = "hpd"
	NameACRIS    = "acris"
	NameECB      = "ecb"
	NameDOB      = "dob"
	NameRegistry = "registry"
)

// Patch is a tagged variant: exactly one payload pointer is set, matching
// Source. Modeling each registry's output as a fixed typed case keeps the
// fusion precedence logic exhaustively checkable at compile time.
type Patch struct {
	Source    string
	FetchedAt time.Time

	Pluto        *PlutoRecord
	RPAD         *RPADRecord
	HPD          *HPDRecord
	ACRIS        *ACRISRecord
	ACRISDerived *ACRISDerived
	ECB          *ECBRecord
	DOB          *DOBRecord
	Registry     *RegistryRecord
}

// PlutoRecord carries parcel/land-use characteristics.
type PlutoRecord struct {
	OwnerName        *string
	BuildingClass    *string
	ResidentialUnits *int
	TotalUnits       *int
	Floors           *float64
	BuildingSqFt     *int
	YearBuilt        *int
	YearAltered      *int
	ZipCode          *string
	AssessedTotal    *float64
}

// RPADRecord carries property-tax assessment data.
type RPADRecord struct {
	TaxpayerName  *string
	AssessedLand  *float64
	AssessedTotal *float64
	TaxDelinquent *bool
}

// HPDRecord carries housing-violation registry data.
type HPDRecord struct {
	RegisteredOwnerName *string
	ViolationCount      *int
	OpenViolations      *int
	ComplaintCount      *int
}

// ACRISRecord carries raw recorded documents for the transaction ledger.
// It is never fused directly; the ledger records the documents and derives
// an ACRISDerived patch from the resulting primaries.
type ACRISRecord struct {
	Documents []RawDocument
}

// RawDocument is one ACRIS document as fetched, before ledger dedup.
type RawDocument struct {
	DocumentID         string
	DocType            string
	Amount             *float64
	DocDate            *time.Time
	RecordedDate       *time.Time
	PercentTransferred *float64
	CRFN               string
	Parties            []RawParty
}

// RawParty is one party on a raw document.
type RawParty struct {
	PartyType string
	Name      string
	Address   string
}

// ACRISDerived summarizes the ledger's current primaries for fusion.
type ACRISDerived struct {
	LastSalePrice    *float64
	LastSaleDate     *time.Time
	LastSaleBuyer    *string
	LastSaleSeller   *string
	MortgageAmount   *float64
	MortgageDate     *time.Time
	MortgageLender   *string
	TransactionCount *int
	IsCashPurchase   *bool
	FinancingRatio   *float64
}

// ECBRecord carries civil-penalty violation data with financial balances.
type ECBRecord struct {
	ViolationCount     *int
	OpenViolations     *int
	OutstandingBalance *float64
}

// DOBRecord carries buildings-department violation data.
type DOBRecord struct {
	ViolationCount *int
	OpenViolations *int
}

// RegistryRecord carries the business-registry "real person behind the LLC"
// lookup result.
type RegistryRecord struct {
	PrincipalName  *string
	PrincipalTitle *string
	EntityStatus   *string
}
