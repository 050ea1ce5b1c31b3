package model

import "time"

// Document types as recorded by ACRIS. Only the ones the ledger branches on
// are named; everything else passes through verbatim.
const (
	DocTypeDeed             = "DEED"
	DocTypeMortgage         = "MTGE"
	DocTypeSatisfaction     = "SAT"
	DocTypeSatisfactionFull = "SATF"
)

// Transaction is one recorded ACRIS document for a building. Immutable once
// recorded except for the two primary flags, which are recomputed whenever a
// newer document changes which transaction is primary.
type Transaction struct {
	BuildingID         string     `json:"building_id"` // BBL
	DocumentID         string     `json:"document_id"`
	DocType            string     `json:"doc_type"`
	Amount             *float64   `json:"amount,omitempty"`
	DocDate            *time.Time `json:"doc_date,omitempty"`
	RecordedDate       *time.Time `json:"recorded_date,omitempty"`
	PercentTransferred *float64   `json:"percent_transferred,omitempty"`
	CRFN               string     `json:"crfn,omitempty"`
	IsPrimaryDeed      bool       `json:"is_primary_deed"`
	IsPrimaryMortgage  bool       `json:"is_primary_mortgage"`
}

// Party types attached to ACRIS documents.
const (
	PartyBuyer    = "buyer"
	PartySeller   = "seller"
	PartyLender   = "lender"
	PartyBorrower = "borrower"
)

// Party is a buyer/seller/lender/borrower on a transaction. Write-once: it
// records a historical fact and is never mutated after creation.
type Party struct {
	DocumentID string `json:"document_id"`
	PartyType  string `json:"party_type"`
	Name       string `json:"name"`
	Address    string `json:"address,omitempty"`
}
