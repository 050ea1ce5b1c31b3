package source

import (
	"context"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

// PlutoAdapter fetches parcel characteristics from the PLUTO dataset.
type PlutoAdapter struct {
	client  *Client
	dataset string
}

// NewPlutoAdapter creates the PLUTO adapter.
func NewPlutoAdapter(client *Client, dataset string) *PlutoAdapter {
	return &PlutoAdapter{client: client, dataset: dataset}
}

func (a *PlutoAdapter) Name() string { return NamePluto }

func (a *PlutoAdapter) Fetch(ctx context.Context, bblID string) (*Patch, error) {
	params := url.Values{"bbl": {bblID}, "$limit": {"1"}}
	rows, err := a.client.Rows(ctx, a.dataset, params)
	if err != nil {
		return nil, eris.Wrap(err, "pluto: fetch")
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	row := rows[0]
	return &Patch{
		Source:    NamePluto,
		FetchedAt: time.Now().UTC(),
		Pluto: &PlutoRecord{
			OwnerName:        row.String("ownername"),
			BuildingClass:    row.String("bldgclass"),
			ResidentialUnits: row.Int("unitsres"),
			TotalUnits:       row.Int("unitstotal"),
			Floors:           row.Float("numfloors"),
			BuildingSqFt:     row.Int("bldgarea"),
			YearBuilt:        row.Int("yearbuilt"),
			YearAltered:      row.Int("yearalter1"),
			ZipCode:          row.String("zipcode"),
			AssessedTotal:    row.Float("assesstot"),
		},
	}, nil
}
