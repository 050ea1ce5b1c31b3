// Package ledger maintains the append-only transaction history for each
// building: ACRIS documents are deduplicated rather than overwritten, parties
// are write-once, and the primary deed/mortgage flags are recomputed in a
// per-building pass whenever a new document lands.
package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-cli/internal/model"
	"github.com/sells-group/parcel-cli/internal/source"
)

// Store is the persistence surface the ledger needs.
type Store interface {
	GetTransaction(ctx context.Context, buildingID, documentID string) (*model.Transaction, error)
	UpsertTransaction(ctx context.Context, txn model.Transaction) error
	InsertPartyOnce(ctx context.Context, party model.Party) (bool, error)
	ListTransactions(ctx context.Context, buildingID string) ([]model.Transaction, error)
	ListParties(ctx context.Context, buildingID string) ([]model.Party, error)
	SetPrimaryFlags(ctx context.Context, buildingID, deedDocumentID, mortgageDocumentID string) error
}

// Ledger records documents and keeps primary flags current.
type Ledger struct {
	store Store
}

// New creates a Ledger over the given store.
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// Record upserts one document keyed by (buildingID, documentID). If the
// stored copy already has identical fields and the sighting carries no
// unseen parties, changed is false and nothing is written. A document change
// or a newly seen party triggers the per-building primary-flag
// recomputation.
func (l *Ledger) Record(ctx context.Context, buildingID string, doc source.RawDocument, parties []source.RawParty) (model.Transaction, []model.Party, bool, error) {
	existing, err := l.store.GetTransaction(ctx, buildingID, doc.DocumentID)
	if err != nil {
		return model.Transaction{}, nil, false, eris.Wrapf(err, "ledger: get transaction %s", doc.DocumentID)
	}

	txn := model.Transaction{
		BuildingID:         buildingID,
		DocumentID:         doc.DocumentID,
		DocType:            doc.DocType,
		Amount:             doc.Amount,
		DocDate:            doc.DocDate,
		RecordedDate:       doc.RecordedDate,
		PercentTransferred: doc.PercentTransferred,
		CRFN:               doc.CRFN,
	}
	docChanged := existing == nil
	if existing != nil {
		// Documents are immutable once recorded except the derived flags.
		txn.IsPrimaryDeed = existing.IsPrimaryDeed
		txn.IsPrimaryMortgage = existing.IsPrimaryMortgage
		docChanged = !sameDocument(*existing, txn)
	}

	// Parties land before the unchanged-document check: a document can come
	// back byte-identical while its parties dataset only now responds, and
	// those parties must still be persisted.
	var inserted []model.Party
	for _, raw := range parties {
		if raw.Name == "" {
			continue
		}
		party := model.Party{
			DocumentID: doc.DocumentID,
			PartyType:  raw.PartyType,
			Name:       raw.Name,
			Address:    raw.Address,
		}
		ok, err := l.store.InsertPartyOnce(ctx, party)
		if err != nil {
			return model.Transaction{}, nil, false, eris.Wrapf(err, "ledger: insert party for %s", doc.DocumentID)
		}
		if ok {
			inserted = append(inserted, party)
		}
	}

	if !docChanged && len(inserted) == 0 {
		return *existing, nil, false, nil
	}

	if docChanged {
		if err := l.store.UpsertTransaction(ctx, txn); err != nil {
			return model.Transaction{}, nil, false, eris.Wrapf(err, "ledger: upsert transaction %s", doc.DocumentID)
		}
	}

	if err := l.RecomputePrimaries(ctx, buildingID); err != nil {
		return model.Transaction{}, nil, false, err
	}

	return txn, inserted, true, nil
}

// RecordDocuments records a fetched batch and reports how many documents
// actually changed.
func (l *Ledger) RecordDocuments(ctx context.Context, buildingID string, docs []source.RawDocument) (int, error) {
	changed := 0
	for _, doc := range docs {
		if doc.DocumentID == "" {
			zap.L().Warn("ledger: skipping document without id", zap.String("building_id", buildingID))
			continue
		}
		_, _, didChange, err := l.Record(ctx, buildingID, doc, doc.Parties)
		if err != nil {
			return changed, err
		}
		if didChange {
			changed++
		}
	}
	return changed, nil
}

// RecomputePrimaries re-selects the primary deed and mortgage across all of
// one building's transactions. Cost is bounded to that building's history.
func (l *Ledger) RecomputePrimaries(ctx context.Context, buildingID string) error {
	txns, err := l.store.ListTransactions(ctx, buildingID)
	if err != nil {
		return eris.Wrapf(err, "ledger: list transactions for %s", buildingID)
	}
	parties, err := l.store.ListParties(ctx, buildingID)
	if err != nil {
		return eris.Wrapf(err, "ledger: list parties for %s", buildingID)
	}

	var deedID, mortgageID string
	if deed := SelectPrimaryDeed(txns); deed != nil {
		deedID = deed.DocumentID
	}
	if mtge := SelectPrimaryMortgage(txns, parties); mtge != nil {
		mortgageID = mtge.DocumentID
	}

	return eris.Wrapf(
		l.store.SetPrimaryFlags(ctx, buildingID, deedID, mortgageID),
		"ledger: set primary flags for %s", buildingID,
	)
}

// sameDocument compares the immutable document fields, ignoring the derived
// primary flags.
func sameDocument(a, b model.Transaction) bool {
	return a.DocType == b.DocType &&
		a.CRFN == b.CRFN &&
		eqFloat(a.Amount, b.Amount) &&
		eqFloat(a.PercentTransferred, b.PercentTransferred) &&
		eqTime(a.DocDate, b.DocDate) &&
		eqTime(a.RecordedDate, b.RecordedDate)
}

func eqFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func eqTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func canonical(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}
