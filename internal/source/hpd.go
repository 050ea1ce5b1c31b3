package source

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// HPDAdapter fetches housing-violation records and aggregates them into
// per-building counts.
type HPDAdapter struct {
	client  *Client
	dataset string
}

// NewHPDAdapter creates the HPD adapter.
func NewHPDAdapter(client *Client, dataset string) *HPDAdapter {
	return &HPDAdapter{client: client, dataset: dataset}
}

func (a *HPDAdapter) Name() string { return NameHPD }

func (a *HPDAdapter) Fetch(ctx context.Context, bblID string) (*Patch, error) {
	params := url.Values{"bbl": {bblID}, "$limit": {"5000"}}
	rows, err := a.client.Rows(ctx, a.dataset, params)
	if err != nil {
		return nil, eris.Wrap(err, "hpd: fetch")
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	total := len(rows)
	open := 0
	complaints := 0
	var registeredOwner *string
	for _, row := range rows {
		if status := row.String("violationstatus"); status != nil && strings.EqualFold(*status, "open") {
			open++
		}
		if class := row.String("class"); class != nil && strings.EqualFold(*class, "complaint") {
			complaints++
		}
		if registeredOwner == nil {
			registeredOwner = row.String("registeredowner")
		}
	}

	return &Patch{
		Source:    NameHPD,
		FetchedAt: time.Now().UTC(),
		HPD: &HPDRecord{
			RegisteredOwnerName: registeredOwner,
			ViolationCount:      &total,
			OpenViolations:      &open,
			ComplaintCount:      &complaints,
		},
	}, nil
}
