package ledger

import (
	"time"

	"github.com/sells-group/parcel-cli/internal/model"
)

// SelectPrimaryDeed picks the current deed: latest recorded date wins; ties
// break toward the highest percent transferred (a 100% transfer outranks a
// partial one recorded the same day), then document id for determinism. A
// partial transfer below 50% is still eligible; ownership can change hands
// through partial transfers.
func SelectPrimaryDeed(txns []model.Transaction) *model.Transaction {
	var best *model.Transaction
	for i := range txns {
		t := &txns[i]
		if t.DocType != model.DocTypeDeed {
			continue
		}
		if best == nil || deedOutranks(t, best) {
			best = t
		}
	}
	return best
}

func deedOutranks(a, b *model.Transaction) bool {
	switch cmpTime(a.RecordedDate, b.RecordedDate) {
	case 1:
		return true
	case -1:
		return false
	}
	switch cmpFloat(a.PercentTransferred, b.PercentTransferred) {
	case 1:
		return true
	case -1:
		return false
	}
	return a.DocumentID > b.DocumentID
}

// SelectPrimaryMortgage picks the current mortgage: latest recorded date
// among mortgages not yet satisfied. A mortgage is excluded once a SAT/SATF
// from the same lender is recorded on an equal or later date, so paid-off
// mortgages are never surfaced as current.
func SelectPrimaryMortgage(txns []model.Transaction, parties []model.Party) *model.Transaction {
	lenderByDoc := make(map[string]string)
	for _, p := range parties {
		if p.PartyType == model.PartyLender {
			if _, ok := lenderByDoc[p.DocumentID]; !ok {
				lenderByDoc[p.DocumentID] = canonical(p.Name)
			}
		}
	}

	var best *model.Transaction
	for i := range txns {
		t := &txns[i]
		if t.DocType != model.DocTypeMortgage {
			continue
		}
		if satisfied(t, txns, lenderByDoc) {
			continue
		}
		if best == nil || mortgageOutranks(t, best) {
			best = t
		}
	}
	return best
}

func satisfied(mtge *model.Transaction, txns []model.Transaction, lenderByDoc map[string]string) bool {
	lender := lenderByDoc[mtge.DocumentID]
	for i := range txns {
		s := &txns[i]
		if s.DocType != model.DocTypeSatisfaction && s.DocType != model.DocTypeSatisfactionFull {
			continue
		}
		if lender == "" || lenderByDoc[s.DocumentID] != lender {
			continue
		}
		if cmpTime(s.RecordedDate, mtge.RecordedDate) >= 0 {
			return true
		}
	}
	return false
}

func mortgageOutranks(a, b *model.Transaction) bool {
	switch cmpTime(a.RecordedDate, b.RecordedDate) {
	case 1:
		return true
	case -1:
		return false
	}
	switch cmpFloat(a.Amount, b.Amount) {
	case 1:
		return true
	case -1:
		return false
	}
	return a.DocumentID > b.DocumentID
}

// cmpTime orders nil before any concrete time.
func cmpTime(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case a.After(*b):
		return 1
	case b.After(*a):
		return -1
	default:
		return 0
	}
}

// cmpFloat orders nil before any concrete value.
func cmpFloat(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case *a > *b:
		return 1
	case *b > *a:
		return -1
	default:
		return 0
	}
}
