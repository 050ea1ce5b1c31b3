package source

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// DOBAdapter fetches buildings-department violations and aggregates counts.
type DOBAdapter struct {
	client  *Client
	dataset string
}

// NewDOBAdapter creates the DOB violations adapter.
func NewDOBAdapter(client *Client, dataset string) *DOBAdapter {
	return &DOBAdapter{client: client, dataset: dataset}
}

func (a *DOBAdapter) Name() string { return NameDOB }

func (a *DOBAdapter) Fetch(ctx context.Context, bblID string) (*Patch, error) {
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
		return nil, eris.Wrap(err, "dob: fetch")
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	total := len(rows)
	open := 0
	for _, row := range rows {
		if cat := row.String("violation_category"); cat != nil && strings.Contains(strings.ToUpper(*cat), "ACTIVE") {
			open++
		}
	}

	return &Patch{
		Source:    NameDOB,
		FetchedAt: time.Now().UTC(),
		DOB: &DOBRecord{
			ViolationCount: &total,
			OpenViolations: &open,
		},
	}, nil
}
