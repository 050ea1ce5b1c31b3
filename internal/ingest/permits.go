// Package ingest loads the permit backlog from CSV exports. Each row is
// resolved to its BBL where possible; rows that cannot be resolved are kept
// unlinked rather than dropped.
package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-cli/internal/bbl"
	"github.com/sells-group/parcel-cli/internal/model"
	"github.com/sells-group/parcel-cli/internal/scoring"
	"github.com/sells-group/parcel-cli/internal/store"
)

// permitRow is one line of the permit export. Everything arrives as text;
// normalization happens in toPermit.
type permitRow struct {
	PermitNumber string `csv:"permit_number"`
	JobType      string `csv:"job_type"`
	IssuedDate   string `csv:"issued_date"`
	ExpiresDate  string `csv:"expiration_date,omitempty"`
	Address      string `csv:"address,omitempty"`
	Block        string `csv:"block"`
	Lot          string `csv:"lot"`
	Borough      string `csv:"borough,omitempty"`
	Units        string `csv:"units,omitempty"`
	Contacts     string `csv:"contacts,omitempty"`
}

// Summary counts the outcomes of one import.
type Summary struct {
	Imported  int // permits written
	Linked    int // permits resolved to a BBL
	Unlinked  int // kept without a BBL
	Buildings int // building rows created for newly seen BBLs
	Skipped   int // rows without a permit number
}

// Importer writes permits into the store and seeds building rows for newly
// resolved BBLs.
type Importer struct {
	store  store.Store
	policy scoring.Policy
	now    func() time.Time
}

// New creates an Importer. The scoring policy supplies the mobile area-code
// classification applied to permit contacts at import time.
func New(st store.Store, policy scoring.Policy) *Importer {
	return &Importer{store: st, policy: policy, now: time.Now}
}

// ImportFile reads a permit CSV from disk.
func (im *Importer) ImportFile(ctx context.Context, path string) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close()
	return im.Import(ctx, f)
}

// permitFlushSize bounds how many permits accumulate before a batch write.
const permitFlushSize = 500

// Import reads permit rows and upserts them in batches. Re-importing the
// same file is idempotent: permits update in place and buildings are created
// only once.
func (im *Importer) Import(ctx context.Context, r io.Reader) (Summary, error) {
	csvReader := csv.NewReader(r)
	csvReader.TrimLeadingSpace = true

	dec, err := csvutil.NewDecoder(csvReader)
	if err != nil {
		return Summary{}, eris.Wrap(err, "ingest: read header")
	}

	var sum Summary
	var pending []model.Permit
	flush := func() error {
		if err := im.store.UpsertPermits(ctx, pending); err != nil {
			return err
		}
		sum.Imported += len(pending)
		pending = pending[:0]
		return nil
	}

	now := im.now().UTC()
	for {
		var row permitRow
		if err := dec.Decode(&row); err == io.EOF {
			break
		} else if err != nil {
			return sum, eris.Wrap(err, "ingest: decode row")
		}

		if strings.TrimSpace(row.PermitNumber) == "" {
			sum.Skipped++
			continue
		}

		permit := im.toPermit(row, now)

		resolved, warn, err := bbl.ResolveWithBorough(row.Block, row.Lot, permit.PermitNumber, row.Borough)
		switch {
		case err != nil:
			zap.L().Warn("ingest: permit left unlinked",
				zap.String("permit", permit.PermitNumber),
				zap.Error(err))
			sum.Unlinked++
		default:
			if warn != "" {
				zap.L().Warn("ingest: borough mismatch",
					zap.String("permit", permit.PermitNumber),
					zap.String("detail", warn))
			}
			permit.BBL = resolved
			sum.Linked++

			created, err := im.ensureBuilding(ctx, resolved, now)
			if err != nil {
				return sum, err
			}
			if created {
				sum.Buildings++
			}
		}

		pending = append(pending, permit)
		if len(pending) >= permitFlushSize {
			if err := flush(); err != nil {
				return sum, err
			}
		}
	}
	if err := flush(); err != nil {
		return sum, err
	}
	return sum, nil
}

func (im *Importer) toPermit(row permitRow, now time.Time) model.Permit {
	p := model.Permit{
		PermitNumber: strings.TrimSpace(row.PermitNumber),
		JobType:      strings.ToUpper(strings.TrimSpace(row.JobType)),
		Address:      strings.TrimSpace(row.Address),
		Block:        strings.TrimSpace(row.Block),
		Lot:          strings.TrimSpace(row.Lot),
		CreatedAt:    now,
	}
	if len(p.PermitNumber) > 0 {
		p.BoroughCode = p.PermitNumber[:1]
	}
	p.IssuedAt = parseDate(row.IssuedDate)
	p.ExpiresAt = parseDate(row.ExpiresDate)
	if units, err := strconv.Atoi(strings.TrimSpace(row.Units)); err == nil && units > 0 {
		p.Units = &units
	}
	p.Contacts = im.parseContacts(row.Contacts)
	return p
}

// parseContacts handles the legacy packed form: contacts separated by "|",
// fields by ";" as name;phone;role. Missing fields are tolerated.
func (im *Importer) parseContacts(raw string) []model.Contact {
	var contacts []model.Contact
	for _, entry := range strings.Split(raw, "|") {
		fields := strings.Split(entry, ";")
		c := model.Contact{}
		if len(fields) > 0 {
			c.Name = strings.TrimSpace(fields[0])
		}
		if len(fields) > 1 {
			c.Phone = strings.TrimSpace(fields[1])
		}
		if len(fields) > 2 {
			c.Role = strings.TrimSpace(fields[2])
		}
		if c.Name == "" && c.Phone == "" {
			continue
		}
		c.IsMobile = im.policy.IsMobilePhone(c.Phone)
		contacts = append(contacts, c)
	}
	return contacts
}

func (im *Importer) ensureBuilding(ctx context.Context, resolvedBBL string, now time.Time) (bool, error) {
	existing, err := im.store.GetBuilding(ctx, resolvedBBL)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}
	return true, im.store.SaveBuilding(ctx, model.NewBuilding(resolvedBBL, now))
}

// dateLayouts covers the export formats seen in practice.
var dateLayouts = []string{"2006-01-02", "01/02/2006", time.RFC3339}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
