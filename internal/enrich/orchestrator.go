// Package enrich runs the batch enrichment loop: select eligible buildings,
// fetch every registry concurrently, route documents through the ledger,
// fuse, score, and persist. Buildings are independent; a batch is a worker
// pool over them with one shared rate limiter per registry underneath.
package enrich

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/parcel-cli/internal/config"
	"github.com/sells-group/parcel-cli/internal/fusion"
	"github.com/sells-group/parcel-cli/internal/ledger"
	"github.com/sells-group/parcel-cli/internal/model"
	"github.com/sells-group/parcel-cli/internal/resilience"
	"github.com/sells-group/parcel-cli/internal/scoring"
	"github.com/sells-group/parcel-cli/internal/source"
	"github.com/sells-group/parcel-cli/internal/store"
)

type outcome int

const (
	outcomeEnriched outcome = iota
	outcomePartial
	outcomeSkipped
	outcomeFailed
)

// Orchestrator drives enrichment runs. Adapter failures degrade a building
// to partial; only store failures abort a run.
type Orchestrator struct {
	store   store.Store
	ledger  *ledger.Ledger
	sources *source.Registry
	scorer  *scoring.Engine
	retry   resilience.Policy
	cfg     config.EnrichConfig
	now     func() time.Time
}

// New creates an orchestrator over the given store, adapters, and scorer.
func New(st store.Store, sources *source.Registry, scorer *scoring.Engine, cfg config.EnrichConfig) *Orchestrator {
	return &Orchestrator{
		store:   st,
		ledger:  ledger.New(st),
		sources: sources,
		scorer:  scorer,
		retry:   retryPolicy(cfg.Retry),
		cfg:     cfg,
		now:     time.Now,
	}
}

func retryPolicy(rc config.RetryConfig) resilience.Policy {
	return resilience.Policy{
		MaxAttempts:    rc.MaxAttempts,
		InitialBackoff: time.Duration(rc.InitialBackoffMs) * time.Millisecond,
		MaxBackoff:     time.Duration(rc.MaxBackoffMs) * time.Millisecond,
		Multiplier:     rc.Multiplier,
		JitterFraction: rc.JitterFraction,
	}
}

// Run executes one enrichment pass and returns the persisted run record.
// Buildings left mid-flight by an aborted run stay claimable: enrichment is
// idempotent, so the next run simply redoes them.
func (o *Orchestrator) Run(ctx context.Context) (*model.Run, error) {
	batch := o.cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}

	run, err := o.store.CreateRun(ctx, batch)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: create run")
	}

	now := o.now().UTC()
	buildings, err := o.store.ListEligible(ctx, store.EligibilityFilter{
		StaleBefore:      now.AddDate(0, 0, -o.cfg.StalenessDays),
		ErrorRetryBefore: now.AddDate(0, 0, -o.cfg.ErrorRetryDays),
		Limit:            batch,
	})
	if err != nil {
		err = eris.Wrap(err, "enrich: list eligible")
		o.abort(ctx, run, err)
		return run, err
	}

	zap.L().Info("enrich: run started",
		zap.String("run_id", run.ID),
		zap.Int("eligible", len(buildings)),
		zap.Int("batch_size", batch))

	concurrency := o.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}

	var mu sync.Mutex
	var summary model.RunSummary

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := range buildings {
		b := buildings[i]
		g.Go(func() error {
			out, err := o.enrichOne(gctx, b)
			if err != nil {
				return err
			}
			mu.Lock()
			switch out {
			case outcomeEnriched:
				summary.Enriched++
			case outcomePartial:
				summary.Partial++
			case outcomeSkipped:
				summary.Skipped++
			case outcomeFailed:
				summary.Failed++
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		run.Summary = summary
		o.abort(ctx, run, err)
		return run, err
	}

	run.Summary = summary
	run.Status = model.RunStatusComplete
	finished := o.now().UTC()
	run.FinishedAt = &finished
	if err := o.store.FinishRun(ctx, run); err != nil {
		return run, eris.Wrap(err, "enrich: finish run")
	}

	zap.L().Info("enrich: run complete",
		zap.String("run_id", run.ID),
		zap.Int("enriched", summary.Enriched),
		zap.Int("partial", summary.Partial),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))
	return run, nil
}

func (o *Orchestrator) abort(ctx context.Context, run *model.Run, cause error) {
	run.Status = model.RunStatusAborted
	run.Error = cause.Error()
	finished := o.now().UTC()
	run.FinishedAt = &finished
	if err := o.store.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		zap.L().Error("enrich: record aborted run", zap.String("run_id", run.ID), zap.Error(err))
	}
}

// enrichOne runs the full cycle for a single building. The returned error is
// only ever a store failure; adapter outcomes are folded into the result.
func (o *Orchestrator) enrichOne(ctx context.Context, b model.Building) (outcome, error) {
	now := o.now().UTC()

	// Re-read before claiming: another run may have claimed it since the
	// eligibility listing.
	current, err := o.store.GetBuilding(ctx, b.BBL)
	if err != nil {
		return outcomeFailed, err
	}
	if current == nil || current.State == model.StateEnriching {
		return outcomeSkipped, nil
	}
	b = *current
	prevState := b.State

	b.State = model.StateEnriching
	if err := o.store.SaveBuilding(ctx, b); err != nil {
		return outcomeFailed, err
	}

	results := o.fetchAll(ctx, b.BBL)

	if b.SourceChecks == nil {
		b.SourceChecks = map[string]model.SourceCheck{}
	}
	var patches []source.Patch
	var fetched, notFound, errored int
	for _, r := range results {
		switch {
		case r.err == nil:
			fetched++
			b.SourceChecks[r.name] = model.SourceCheck{Status: model.SourceStatusOK, CheckedAt: now}
			if r.patch != nil {
				patches = append(patches, *r.patch)
			}
		case errors.Is(r.err, source.ErrNotFound):
			notFound++
			b.SourceChecks[r.name] = model.SourceCheck{Status: model.SourceStatusNotFound, CheckedAt: now}
		default:
			errored++
			b.SourceChecks[r.name] = model.SourceCheck{Status: model.SourceStatusError, CheckedAt: now}
			zap.L().Warn("enrich: source fetch failed",
				zap.String("bbl", b.BBL),
				zap.String("source", r.name),
				zap.Error(r.err))
		}
	}

	// Raw documents go through the ledger; what fusion sees is the derived
	// summary of the resulting primaries.
	for _, p := range patches {
		if p.ACRIS != nil && len(p.ACRIS.Documents) > 0 {
			if _, err := o.ledger.RecordDocuments(ctx, b.BBL, p.ACRIS.Documents); err != nil {
				return outcomeFailed, err
			}
		}
	}
	txns, err := o.store.ListTransactions(ctx, b.BBL)
	if err != nil {
		return outcomeFailed, err
	}
	parties, err := o.store.ListParties(ctx, b.BBL)
	if err != nil {
		return outcomeFailed, err
	}
	if derived := ledger.Derive(txns, parties); derived != nil {
		patches = append(patches, source.Patch{
			Source:       source.NameACRIS,
			FetchedAt:    now,
			ACRISDerived: derived,
		})
	}

	fused, _ := fusion.Fuse(b, patches, now)

	var out outcome
	switch {
	case fetched+notFound == 0:
		// Nothing completed. Whatever we knew before stands; the building
		// stays eligible under its previous state.
		out = outcomeFailed
		fused.State = prevState
	case errored > 0:
		out = outcomePartial
		fused.State = model.StateEnriched
		fused.LastEnrichedAt = &now
	default:
		out = outcomeEnriched
		fused.State = model.StateEnriched
		fused.LastEnrichedAt = &now
	}

	if err := o.store.SaveBuilding(ctx, fused); err != nil {
		return outcomeFailed, err
	}

	if out == outcomeFailed {
		return out, nil
	}

	permits, err := o.store.ListPermitsByBBL(ctx, b.BBL)
	if err != nil {
		return out, err
	}
	rec := o.scorer.Score(&fused, permits, now)
	prev, err := o.store.GetScore(ctx, b.BBL)
	if err != nil {
		return out, err
	}
	// An unchanged re-run leaves the stored record untouched, computed_at
	// stamp included.
	if prev != nil && sameScore(*prev, rec) {
		return out, nil
	}
	if err := o.store.SaveScore(ctx, rec); err != nil {
		return out, err
	}
	return out, nil
}

// sameScore compares everything but the computation stamp.
func sameScore(a, b model.ScoreRecord) bool {
	if a.LeadScore != b.LeadScore || a.RiskScore != b.RiskScore ||
		a.LeadRaw != b.LeadRaw || a.RiskRaw != b.RiskRaw ||
		a.LeadClamped != b.LeadClamped || a.RiskClamped != b.RiskClamped ||
		len(a.Factors) != len(b.Factors) {
		return false
	}
	for i := range a.Factors {
		if a.Factors[i] != b.Factors[i] {
			return false
		}
	}
	return true
}

type fetchResult struct {
	name  string
	patch *source.Patch
	err   error
}

// fetchAll queries every registered adapter concurrently. Each call carries
// its own retry schedule; pacing against the registries comes from the rate
// limiter each adapter shares across workers.
func (o *Orchestrator) fetchAll(ctx context.Context, bbl string) []fetchResult {
	adapters := o.sources.All()
	results := make([]fetchResult, len(adapters))

	var wg sync.WaitGroup
	for i, a := range adapters {
		wg.Add(1)
		go func(i int, a source.Adapter) {
			defer wg.Done()
			patch, err := resilience.DoVal(ctx, o.retry, "fetch "+a.Name(),
				func(ctx context.Context) (*source.Patch, error) {
					return a.Fetch(ctx, bbl)
				})
			results[i] = fetchResult{name: a.Name(), patch: patch, err: err}
		}(i, a)
	}
	wg.Wait()
	return results
}
