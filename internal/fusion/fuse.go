// Package fusion merges partial registry records into the stored building
// under field-level precedence rules. Fuse is pure and idempotent: absence of
// new data never erases a previously fetched value, and a no-op merge leaves
// the building untouched, including last_updated.
package fusion

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/parcel-cli/internal/model"
	"github.com/sells-group/parcel-cli/internal/source"
)

// Fuse applies patches to existing and returns the merged building plus
// whether any field actually changed value. Each source writes only its own
// column group; owner-identity fields are never merged into one column, so
// every registry's answer stays independently auditable.
func Fuse(existing model.Building, patches []source.Patch, now time.Time) (model.Building, bool) {
	fused := existing
	changed := false

	for _, p := range patches {
		switch {
		case p.Pluto != nil:
			applyPluto(&fused, p.Pluto, &changed)
		case p.RPAD != nil:
			applyRPAD(&fused, p.RPAD, &changed)
		case p.HPD != nil:
			applyHPD(&fused, p.HPD, &changed)
		case p.ACRISDerived != nil:
			applyACRISDerived(&fused, p.ACRISDerived, &changed)
		case p.ECB != nil:
			applyECB(&fused, p.ECB, &changed)
		case p.DOB != nil:
			applyDOB(&fused, p.DOB, &changed)
		case p.Registry != nil:
			applyRegistry(&fused, p.Registry, &changed)
		case p.ACRIS != nil:
			// Raw documents go through the transaction ledger, which feeds
			// back an ACRISDerived patch; nothing to fuse directly.
		}
	}

	// Effective assessment: RPAD wins whenever it has ever responded, PLUTO
	// is the fallback. Evaluated fresh on every pass, not first-write-wins.
	effective := fused.RPADAssessedTotal
	if effective == nil {
		effective = fused.PlutoAssessedTotal
	}
	apply(&fused.AssessedTotalValue, effective, &changed)

	if changed {
		fused.LastUpdated = now
	}
	return fused, changed
}

func applyPluto(b *model.Building, rec *source.PlutoRecord, changed *bool) {
	applyName(&b.OwnerName, rec.OwnerName, changed)
	apply(&b.BuildingClass, rec.BuildingClass, changed)
	apply(&b.ResidentialUnits, rejectNegativeInt(rec.ResidentialUnits, "pluto.residential_units"), changed)
	apply(&b.TotalUnits, rejectNegativeInt(rec.TotalUnits, "pluto.total_units"), changed)
	apply(&b.Floors, rejectNegative(rec.Floors, "pluto.floors"), changed)
	apply(&b.BuildingSqFt, rejectNegativeInt(rec.BuildingSqFt, "pluto.building_sqft"), changed)
	apply(&b.YearBuilt, rec.YearBuilt, changed)
	apply(&b.YearAltered, rec.YearAltered, changed)
	apply(&b.ZipCode, rec.ZipCode, changed)
	apply(&b.PlutoAssessedTotal, rejectNegative(rec.AssessedTotal, "pluto.assessed_total"), changed)
}

func applyRPAD(b *model.Building, rec *source.RPADRecord, changed *bool) {
	applyName(&b.TaxpayerName, rec.TaxpayerName, changed)
	apply(&b.AssessedLandValue, rejectNegative(rec.AssessedLand, "rpad.assessed_land"), changed)
	apply(&b.RPADAssessedTotal, rejectNegative(rec.AssessedTotal, "rpad.assessed_total"), changed)
	apply(&b.TaxDelinquent, rec.TaxDelinquent, changed)
}

func applyHPD(b *model.Building, rec *source.HPDRecord, changed *bool) {
	applyName(&b.RegisteredOwnerName, rec.RegisteredOwnerName, changed)
	apply(&b.HPDViolationCount, rejectNegativeInt(rec.ViolationCount, "hpd.violation_count"), changed)
	apply(&b.HPDOpenViolations, rejectNegativeInt(rec.OpenViolations, "hpd.open_violations"), changed)
	apply(&b.HPDComplaintCount, rejectNegativeInt(rec.ComplaintCount, "hpd.complaint_count"), changed)
}

func applyACRISDerived(b *model.Building, rec *source.ACRISDerived, changed *bool) {
	apply(&b.LastSalePrice, rejectNegative(rec.LastSalePrice, "acris.last_sale_price"), changed)
	apply(&b.LastSaleDate, rec.LastSaleDate, changed)
	applyName(&b.LastSaleBuyer, rec.LastSaleBuyer, changed)
	applyName(&b.LastSaleSeller, rec.LastSaleSeller, changed)
	apply(&b.MortgageAmount, rejectNegative(rec.MortgageAmount, "acris.mortgage_amount"), changed)
	apply(&b.MortgageDate, rec.MortgageDate, changed)
	applyName(&b.MortgageLender, rec.MortgageLender, changed)
	apply(&b.TransactionCount, rejectNegativeInt(rec.TransactionCount, "acris.transaction_count"), changed)
	apply(&b.IsCashPurchase, rec.IsCashPurchase, changed)
	apply(&b.FinancingRatio, rejectNegative(rec.FinancingRatio, "acris.financing_ratio"), changed)
}

func applyECB(b *model.Building, rec *source.ECBRecord, changed *bool) {
	apply(&b.ECBViolationCount, rejectNegativeInt(rec.ViolationCount, "ecb.violation_count"), changed)
	apply(&b.ECBOpenViolations, rejectNegativeInt(rec.OpenViolations, "ecb.open_violations"), changed)
	apply(&b.ECBOutstandingBalance, rejectNegative(rec.OutstandingBalance, "ecb.outstanding_balance"), changed)
}

func applyDOB(b *model.Building, rec *source.DOBRecord, changed *bool) {
	apply(&b.DOBViolationCount, rejectNegativeInt(rec.ViolationCount, "dob.violation_count"), changed)
	apply(&b.DOBOpenViolations, rejectNegativeInt(rec.OpenViolations, "dob.open_violations"), changed)
}

func applyRegistry(b *model.Building, rec *source.RegistryRecord, changed *bool) {
	applyName(&b.PrincipalName, rec.PrincipalName, changed)
	apply(&b.PrincipalTitle, rec.PrincipalTitle, changed)
	apply(&b.EntityStatus, rec.EntityStatus, changed)
}

// apply writes src over dst unless src is nil (absence of new data is not
// evidence of deletion) or the values are already equal.
func apply[T comparable](dst **T, src *T, changed *bool) {
	if src == nil {
		return
	}
	if *dst != nil && **dst == *src {
		return
	}
	v := *src
	*dst = &v
	*changed = true
}

var upper = cases.Upper(language.Und)

// applyName is apply for name fields, treating values that differ only in
// case or whitespace as equal so cosmetic re-fetches stay no-ops.
func applyName(dst **string, src *string, changed *bool) {
	if src == nil {
		return
	}
	if *dst != nil && canonicalName(**dst) == canonicalName(*src) {
		return
	}
	v := *src
	*dst = &v
	*changed = true
}

func canonicalName(s string) string {
	return upper.String(strings.Join(strings.Fields(s), " "))
}

// rejectNegative drops internally inconsistent values field-by-field rather
// than rejecting the whole patch.
func rejectNegative(v *float64, field string) *float64 {
	if v != nil && *v < 0 {
		zap.L().Warn("fusion: rejecting negative value", zap.String("field", field), zap.Float64("value", *v))
		return nil
	}
	return v
}

func rejectNegativeInt(v *int, field string) *int {
	if v != nil && *v < 0 {
		zap.L().Warn("fusion: rejecting negative value", zap.String("field", field), zap.Int("value", *v))
		return nil
	}
	return v
}
