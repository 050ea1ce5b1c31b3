package source

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ECBAdapter fetches civil-penalty violations and aggregates counts and the
// outstanding balance.
type ECBAdapter struct {
	client  *Client
	dataset string
}

// NewECBAdapter creates the ECB adapter.
func NewECBAdapter(client *Client, dataset string) *ECBAdapter {
	return &ECBAdapter{client: client, dataset: dataset}
}

func (a *ECBAdapter) Name() string { return NameECB }

func (a *ECBAdapter) Fetch(ctx context.Context, bblID string) (*Patch, error) {
	borough, block, lot, err := splitBBL(bblID)
	if err != nil {
		return nil, err
	}
	params := url.Values{
		"boro":   {borough},
		"block":  {block},
		"lot":    {lot},
		"$limit": {"5000"},
	}
	rows, err := a.client.Rows(ctx, a.dataset, params)
	if err != nil {
		return nil, eris.Wrap(err, "ecb: fetch")
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	total := len(rows)
	open := 0
	balance := 0.0
	for _, row := range rows {
		if status := row.String("ecb_violation_status"); status != nil && !strings.EqualFold(*status, "resolve") {
			open++
		}
		if due := row.Float("balance_due"); due != nil {
			balance += *due
		}
	}

	return &Patch{
		Source:    NameECB,
		FetchedAt: time.Now().UTC(),
		ECB: &ECBRecord{
			ViolationCount:     &total,
			OpenViolations:     &open,
			OutstandingBalance: &balance,
		},
	}, nil
}
