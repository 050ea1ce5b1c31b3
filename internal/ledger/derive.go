package ledger

import (
	"github.com/sells-group/parcel-cli/internal/model"
	"github.com/sells-group/parcel-cli/internal/source"
)

// Derive summarizes a building's ledger into the ACRIS-derived patch the
// fusion engine applies: primary sale and mortgage facts, transaction count,
// and the computed cash-purchase and financing-ratio signals.
func Derive(txns []model.Transaction, parties []model.Party) *source.ACRISDerived {
	if len(txns) == 0 {
		return nil
	}

	count := len(txns)
	d := &source.ACRISDerived{TransactionCount: &count}

	deed := SelectPrimaryDeed(txns)
	mtge := SelectPrimaryMortgage(txns, parties)

	if deed != nil {
		d.LastSalePrice = deed.Amount
		d.LastSaleDate = deed.RecordedDate
		if d.LastSaleDate == nil {
			d.LastSaleDate = deed.DocDate
		}
		d.LastSaleBuyer = firstParty(parties, deed.DocumentID, model.PartyBuyer)
		d.LastSaleSeller = firstParty(parties, deed.DocumentID, model.PartySeller)
	}

	if mtge != nil {
		d.MortgageAmount = mtge.Amount
		d.MortgageDate = mtge.RecordedDate
		if d.MortgageDate == nil {
			d.MortgageDate = mtge.DocDate
		}
		d.MortgageLender = firstParty(parties, mtge.DocumentID, model.PartyLender)
	}

	if deed != nil {
		// Cash purchase: the current sale has no live financing recorded on
		// or after it.
		cash := mtge == nil || cmpTime(mtge.RecordedDate, deed.RecordedDate) < 0
		d.IsCashPurchase = &cash

		if !cash && deed.Amount != nil && *deed.Amount > 0 && mtge.Amount != nil {
			ratio := *mtge.Amount / *deed.Amount
			d.FinancingRatio = &ratio
		}
	}

	return d
}

func firstParty(parties []model.Party, documentID, partyType string) *string {
	for _, p := range parties {
		if p.DocumentID == documentID && p.PartyType == partyType && p.Name != "" {
			name := p.Name
			return &name
		}
	}
	return nil
}
