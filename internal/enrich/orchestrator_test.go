package enrich

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parcel-cli/internal/config"
	"github.com/sells-group/parcel-cli/internal/model"
	"github.com/sells-group/parcel-cli/internal/scoring"
	"github.com/sells-group/parcel-cli/internal/source"
	"github.com/sells-group/parcel-cli/internal/store"
)

var enrichNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig() config.EnrichConfig {
	return config.EnrichConfig{
		BatchSize:      100,
		Concurrency:    4,
		StalenessDays:  30,
		ErrorRetryDays: 3,
		Retry:          config.RetryConfig{MaxAttempts: 1},
	}
}

func newTestOrchestrator(t *testing.T, cfg config.EnrichConfig, adapters ...source.Adapter) (*Orchestrator, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	reg := source.NewRegistry()
	for _, a := range adapters {
		reg.Register(a)
	}

	o := New(st, reg, scoring.New(scoring.DefaultPolicy()), cfg)
	o.now = func() time.Time { return enrichNow }
	return o, st
}

func strPtr(s string) *string   { return &s }
func intPtr(v int) *int         { return &v }
func f64Ptr(v float64) *float64 { return &v }

func plutoStub() *source.StubAdapter {
	return &source.StubAdapter{
		AdapterName: source.NamePluto,
		Patch: &source.Patch{
			Source: source.NamePluto,
			Pluto: &source.PlutoRecord{
				OwnerName:  strPtr("ACME REALTY LLC"),
				TotalUnits: intPtr(24),
			},
		},
	}
}

func notFoundStub(name string) *source.StubAdapter {
	return &source.StubAdapter{AdapterName: name, Err: source.ErrNotFound}
}

func errorStub(name string) *source.StubAdapter {
	return &source.StubAdapter{AdapterName: name, Err: eris.New("upstream unavailable")}
}

func TestRun_SingleSourceBuildingEnriched(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	o, st := newTestOrchestrator(t, testConfig(),
		plutoStub(),
		notFoundStub(source.NameRPAD),
		notFoundStub(source.NameHPD),
		notFoundStub(source.NameECB),
	)

	require.NoError(t, st.SaveBuilding(ctx, model.NewBuilding("4001000001", enrichNow.AddDate(0, 0, -1))))

	run, err := o.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, model.RunSummary{Enriched: 1}, run.Summary)

	b, err := st.GetBuilding(ctx, "4001000001")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, model.StateEnriched, b.State)
	require.NotNil(t, b.OwnerName)
	assert.Equal(t, "ACME REALTY LLC", *b.OwnerName)
	require.NotNil(t, b.LastEnrichedAt)
	assert.True(t, enrichNow.Equal(*b.LastEnrichedAt))
	assert.Equal(t, model.SourceStatusOK, b.SourceChecks[source.NamePluto].Status)
	assert.Equal(t, model.SourceStatusNotFound, b.SourceChecks[source.NameRPAD].Status)

	rec, err := st.GetScore(ctx, "4001000001")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 0, rec.LeadScore) // no permits linked yet
}

func TestRun_RerunWithUnchangedSourcesIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	o, st := newTestOrchestrator(t, testConfig(),
		plutoStub(),
		notFoundStub(source.NameRPAD),
	)

	require.NoError(t, st.SaveBuilding(ctx, model.NewBuilding("4001000001", enrichNow.AddDate(0, 0, -1))))

	_, err := o.Run(ctx)
	require.NoError(t, err)
	first, err := st.GetBuilding(ctx, "4001000001")
	require.NoError(t, err)
	firstScore, err := st.GetScore(ctx, "4001000001")
	require.NoError(t, err)

	// Force the building past the staleness window and run again with the
	// same source responses.
	later := enrichNow.AddDate(0, 0, 40)
	o.now = func() time.Time { return later }

	run, err := o.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Summary.Total())

	second, err := st.GetBuilding(ctx, "4001000001")
	require.NoError(t, err)
	assert.True(t, first.LastUpdated.Equal(second.LastUpdated), "unchanged data must not bump last_updated")

	// The whole stored record, computed_at included, must survive a re-run
	// with identical inputs.
	secondScore, err := st.GetScore(ctx, "4001000001")
	require.NoError(t, err)
	assert.Equal(t, firstScore, secondScore)
}

func TestRun_FreshBuildingNotReselected(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	o, st := newTestOrchestrator(t, testConfig(), plutoStub())

	require.NoError(t, st.SaveBuilding(ctx, model.NewBuilding("4001000001", enrichNow)))

	_, err := o.Run(ctx)
	require.NoError(t, err)

	// Second run inside the staleness window finds nothing to do.
	run, err := o.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, run.Summary.Total())
}

func TestRun_AdapterErrorYieldsPartial(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	o, st := newTestOrchestrator(t, testConfig(),
		plutoStub(),
		errorStub(source.NameHPD),
	)

	require.NoError(t, st.SaveBuilding(ctx, model.NewBuilding("3050080064", enrichNow.AddDate(0, 0, -1))))

	run, err := o.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.RunSummary{Partial: 1}, run.Summary)

	b, err := st.GetBuilding(ctx, "3050080064")
	require.NoError(t, err)
	// Partial data is committed, never rolled back.
	assert.Equal(t, model.StateEnriched, b.State)
	require.NotNil(t, b.OwnerName)
	assert.Equal(t, model.SourceStatusError, b.SourceChecks[source.NameHPD].Status)

	rec, err := st.GetScore(ctx, "3050080064")
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestRun_AllSourcesFailed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	o, st := newTestOrchestrator(t, testConfig(),
		errorStub(source.NamePluto),
		errorStub(source.NameHPD),
	)

	require.NoError(t, st.SaveBuilding(ctx, model.NewBuilding("3050080064", enrichNow.AddDate(0, 0, -1))))

	run, err := o.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.RunSummary{Failed: 1}, run.Summary)

	b, err := st.GetBuilding(ctx, "3050080064")
	require.NoError(t, err)
	// Still eligible next run.
	assert.Equal(t, model.StateNew, b.State)
	assert.Nil(t, b.LastEnrichedAt)
	assert.Equal(t, model.SourceStatusError, b.SourceChecks[source.NamePluto].Status)

	rec, err := st.GetScore(ctx, "3050080064")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRun_ACRISDocumentsReachLedgerAndFusion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	recorded := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	acris := &source.StubAdapter{
		AdapterName: source.NameACRIS,
		Patch: &source.Patch{
			Source: source.NameACRIS,
			ACRIS: &source.ACRISRecord{
				Documents: []source.RawDocument{
					{
						DocumentID:         "T1",
						DocType:            model.DocTypeDeed,
						Amount:             f64Ptr(1000000),
						RecordedDate:       &recorded,
						PercentTransferred: f64Ptr(100),
						Parties: []source.RawParty{
							{PartyType: model.PartyBuyer, Name: "NEW OWNER LLC"},
							{PartyType: model.PartySeller, Name: "OLD OWNER LLC"},
						},
					},
					{
						DocumentID:   "M1",
						DocType:      model.DocTypeMortgage,
						Amount:       f64Ptr(800000),
						RecordedDate: &recorded,
						Parties: []source.RawParty{
							{PartyType: model.PartyLender, Name: "BIG BANK NA"},
						},
					},
				},
			},
		},
	}

	o, st := newTestOrchestrator(t, testConfig(), plutoStub(), acris)
	require.NoError(t, st.SaveBuilding(ctx, model.NewBuilding("3050080064", enrichNow.AddDate(0, 0, -1))))

	run, err := o.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.RunSummary{Enriched: 1}, run.Summary)

	b, err := st.GetBuilding(ctx, "3050080064")
	require.NoError(t, err)
	require.NotNil(t, b.LastSalePrice)
	assert.InDelta(t, 1000000, *b.LastSalePrice, 0.001)
	require.NotNil(t, b.LastSaleBuyer)
	assert.Equal(t, "NEW OWNER LLC", *b.LastSaleBuyer)
	require.NotNil(t, b.MortgageLender)
	assert.Equal(t, "BIG BANK NA", *b.MortgageLender)
	require.NotNil(t, b.IsCashPurchase)
	assert.False(t, *b.IsCashPurchase)
	require.NotNil(t, b.FinancingRatio)
	assert.InDelta(t, 0.8, *b.FinancingRatio, 0.001)

	txns, err := st.ListTransactions(ctx, "3050080064")
	require.NoError(t, err)
	require.Len(t, txns, 2)
	for _, txn := range txns {
		switch txn.DocumentID {
		case "T1":
			assert.True(t, txn.IsPrimaryDeed)
		case "M1":
			assert.True(t, txn.IsPrimaryMortgage)
		}
	}
}

func TestRun_BatchSizeBoundsSelection(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := testConfig()
	cfg.BatchSize = 2
	o, st := newTestOrchestrator(t, cfg, plutoStub())

	for _, bbl := range []string{"1000010001", "1000010002", "1000010003"} {
		require.NoError(t, st.SaveBuilding(ctx, model.NewBuilding(bbl, enrichNow.AddDate(0, 0, -1))))
	}

	run, err := o.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, run.Summary.Total())
}

func TestEnrichOne_SkipsAlreadyClaimedBuilding(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	o, st := newTestOrchestrator(t, testConfig(), plutoStub())

	b := model.NewBuilding("3050080064", enrichNow)
	b.State = model.StateEnriching
	require.NoError(t, st.SaveBuilding(ctx, b))

	out, err := o.enrichOne(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, outcomeSkipped, out)
}

// failingStore wraps a real store and fails score writes, standing in for a
// database outage mid-run.
type failingStore struct {
	store.Store
}

func (f *failingStore) SaveScore(ctx context.Context, rec model.ScoreRecord) error {
	return eris.New("disk full")
}

func TestRun_StoreFailureAbortsRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	o, st := newTestOrchestrator(t, testConfig(), plutoStub())
	o.store = &failingStore{Store: st}

	require.NoError(t, st.SaveBuilding(ctx, model.NewBuilding("3050080064", enrichNow.AddDate(0, 0, -1))))

	run, err := o.Run(ctx)
	require.Error(t, err)
	require.NotNil(t, run)
	assert.Equal(t, model.RunStatusAborted, run.Status)
	assert.Contains(t, run.Error, "disk full")
}
