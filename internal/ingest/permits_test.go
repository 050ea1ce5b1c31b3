package ingest

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parcel-cli/internal/model"
	"github.com/sells-group/parcel-cli/internal/scoring"
	"github.com/sells-group/parcel-cli/internal/store"
)

func newImporter(t *testing.T) (*Importer, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return New(st, scoring.DefaultPolicy()), st
}

const header = "permit_number,job_type,issued_date,expiration_date,address,block,lot,borough,units,contacts\n"

func TestImport_ResolvesAndLinks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	im, st := newImporter(t)

	csv := header +
		`321234567,NB,2026-01-15,,100 MAIN ST,5008,64,Brooklyn,24,ANNA PEREZ;917-555-0101;GC` + "\n"

	sum, err := im.Import(ctx, strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Imported)
	assert.Equal(t, 1, sum.Linked)
	assert.Equal(t, 1, sum.Buildings)
	assert.Equal(t, 0, sum.Unlinked)

	p, err := st.GetPermit(ctx, "321234567")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "3050080064", p.BBL)
	assert.Equal(t, "NB", p.JobType)
	require.NotNil(t, p.IssuedAt)
	require.Len(t, p.Contacts, 1)
	assert.Equal(t, "ANNA PEREZ", p.Contacts[0].Name)
	assert.True(t, p.Contacts[0].IsMobile)
	assert.Equal(t, "GC", p.Contacts[0].Role)
	require.NotNil(t, p.Units)
	assert.Equal(t, 24, *p.Units)

	b, err := st.GetBuilding(ctx, "3050080064")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, model.StateNew, b.State)
}

func TestImport_UnresolvableRowStaysUnlinked(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	im, st := newImporter(t)

	// Borough digit 9 is not a borough.
	csv := header + "921234567,AL,2026-01-15,,,5008,64,,,\n"

	sum, err := im.Import(ctx, strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Imported)
	assert.Equal(t, 1, sum.Unlinked)
	assert.Equal(t, 0, sum.Linked)

	p, err := st.GetPermit(ctx, "921234567")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Empty(t, p.BBL)
}

func TestImport_Idempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	im, st := newImporter(t)

	csv := header + "321234567,NB,2026-01-15,,,5008,64,Brooklyn,,\n"

	_, err := im.Import(ctx, strings.NewReader(csv))
	require.NoError(t, err)
	sum, err := im.Import(ctx, strings.NewReader(csv))
	require.NoError(t, err)

	// Second pass updates in place and creates no second building.
	assert.Equal(t, 1, sum.Imported)
	assert.Equal(t, 0, sum.Buildings)

	permits, err := st.ListPermitsByBBL(ctx, "3050080064")
	require.NoError(t, err)
	assert.Len(t, permits, 1)
}

func TestImport_MultipleContactsPacked(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	im, st := newImporter(t)

	csv := header +
		`421234567,DM,01/15/2026,,,100,1,Queens,,ANNA PEREZ;917-555-0101;GC|BEN CHO;212-555-0102;OWNER` + "\n"

	_, err := im.Import(ctx, strings.NewReader(csv))
	require.NoError(t, err)

	p, err := st.GetPermit(ctx, "421234567")
	require.NoError(t, err)
	require.Len(t, p.Contacts, 2)
	assert.True(t, p.Contacts[0].IsMobile)
	assert.False(t, p.Contacts[1].IsMobile)
	assert.Equal(t, "4001000001", p.BBL)
}

func TestImport_SkipsRowsWithoutPermitNumber(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	im, _ := newImporter(t)

	csv := header + ",NB,2026-01-15,,,5008,64,,,\n"

	sum, err := im.Import(ctx, strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 0, sum.Imported)
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	assert.Nil(t, parseDate(""))
	assert.Nil(t, parseDate("not a date"))
	require.NotNil(t, parseDate("2026-01-15"))
	require.NotNil(t, parseDate("01/15/2026"))
}
