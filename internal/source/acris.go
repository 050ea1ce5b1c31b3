package source

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// maxDocuments bounds how many recorded documents are pulled per parcel.
const maxDocuments = 50

// ACRISAdapter fetches recorded documents (deeds, mortgages, satisfactions)
// for a parcel. ACRIS splits a document across three datasets: legals (keyed
// by borough/block/lot), master (document facts), and parties.
type ACRISAdapter struct {
	client  *Client
	legals  string
	master  string
	parties string
}

// NewACRISAdapter creates the ACRIS adapter.
func NewACRISAdapter(client *Client, legals, master, parties string) *ACRISAdapter {
	return &ACRISAdapter{client: client, legals: legals, master: master, parties: parties}
}

func (a *ACRISAdapter) Name() string { return NameACRIS }

func (a *ACRISAdapter) Fetch(ctx context.Context, bblID string) (*Patch, error) {
	borough, block, lot, err := splitBBL(bblID)
	if err != nil {
		return nil, err
	}

	legalRows, err := a.client.Rows(ctx, a.legals, url.Values{
		"borough": {borough},
		"block":   {block},
		"lot":     {lot},
		"$limit":  {"500"},
	})
	if err != nil {
		return nil, eris.Wrap(err, "acris: fetch legals")
	}
	if len(legalRows) == 0 {
		return nil, ErrNotFound
	}

	seen := make(map[string]bool)
	var docs []RawDocument
	for _, legal := range legalRows {
		idPtr := legal.String("document_id")
		if idPtr == nil || seen[*idPtr] {
			continue
		}
		seen[*idPtr] = true

		doc, err := a.fetchDocument(ctx, *idPtr)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			docs = append(docs, *doc)
		}
		if len(docs) >= maxDocuments {
			break
		}
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}

	return &Patch{
		Source:    NameACRIS,
		FetchedAt: time.Now().UTC(),
		ACRIS:     &ACRISRecord{Documents: docs},
	}, nil
}

func (a *ACRISAdapter) fetchDocument(ctx context.Context, documentID string) (*RawDocument, error) {
	masterRows, err := a.client.Rows(ctx, a.master, url.Values{
		"document_id": {documentID},
		"$limit":      {"1"},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "acris: fetch master %s", documentID)
	}
	if len(masterRows) == 0 {
		return nil, nil
	}
	master := masterRows[0]

	doc := RawDocument{
		DocumentID:         documentID,
		Amount:             master.Float("document_amt"),
		DocDate:            master.Date("document_date"),
		RecordedDate:       master.Date("recorded_datetime"),
		PercentTransferred: master.Float("percent_trans"),
	}
	if dt := master.String("doc_type"); dt != nil {
		doc.DocType = strings.ToUpper(*dt)
	}
	if crfn := master.String("crfn"); crfn != nil {
		doc.CRFN = *crfn
	}

	partyRows, err := a.client.Rows(ctx, a.parties, url.Values{
		"document_id": {documentID},
		"$limit":      {"50"},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "acris: fetch parties %s", documentID)
	}
	for _, row := range partyRows {
		name := row.String("name")
		if name == nil {
			continue
		}
		party := RawParty{Name: *name}
		if addr := row.String("address_1"); addr != nil {
			party.Address = *addr
		}
		if pt := row.String("party_type"); pt != nil {
			party.PartyType = normalizePartyType(doc.DocType, *pt)
		}
		doc.Parties = append(doc.Parties, party)
	}

	return &doc, nil
}

// normalizePartyType maps ACRIS's positional party codes (1 = grantor,
// 2 = grantee) to the role implied by the document type.
func normalizePartyType(docType, code string) string {
	mortgage := docType == "MTGE" || docType == "SAT" || docType == "SATF" || docType == "ASST"
	switch strings.TrimSpace(code) {
	case "1":
		if mortgage {
			return "borrower"
		}
		return "seller"
	case "2":
		if mortgage {
			return "lender"
		}
		return "buyer"
	default:
		return strings.ToLower(strings.TrimSpace(code))
	}
}
