package source

import (
	"context"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

// RPADAdapter fetches tax-assessment data from the RPAD dataset.
type RPADAdapter struct {
	client  *Client
	dataset string
}

// NewRPADAdapter creates the RPAD adapter.
func NewRPADAdapter(client *Client, dataset string) *RPADAdapter {
	return &RPADAdapter{client: client, dataset: dataset}
}

func (a *RPADAdapter) Name() string { return NameRPAD }

func (a *RPADAdapter) Fetch(ctx context.Context, bblID string) (*Patch, error) {
	params := url.Values{
		"parid":  {bblID},
		"$order": {"year DESC"},
		"$limit": {"1"},
	}
	rows, err := a.client.Rows(ctx, a.dataset, params)
	if err != nil {
		return nil, eris.Wrap(err, "rpad: fetch")
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	row := rows[0]
	return &Patch{
		Source:    NameRPAD,
		FetchedAt: time.Now().UTC(),
		RPAD: &RPADRecord{
			TaxpayerName:  row.String("owner"),
			AssessedLand:  row.Float("curavl"),
			AssessedTotal: row.Float("curavt"),
			TaxDelinquent: row.Bool("delinquent"),
		},
	}, nil
}
