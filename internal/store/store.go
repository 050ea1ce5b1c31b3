// Package store persists buildings, permits, the transaction ledger, score
// records, and enrichment runs. Two implementations share the interface:
// SQLite for single-operator installs and Postgres for shared ones.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/parcel-cli/internal/config"
	"github.com/sells-group/parcel-cli/internal/model"
)

// EligibilityFilter selects buildings due for enrichment: everything NEW or
// STALE, plus ENRICHED buildings whose last pass predates StaleBefore. A
// building whose latest pass left errored sources re-qualifies at the
// earlier ErrorRetryBefore cutoff instead.
type EligibilityFilter struct {
	StaleBefore      time.Time
	ErrorRetryBefore time.Time
	Limit            int
}

// Store defines the persistence interface for the enrichment pipeline.
type Store interface {
	// Permits
	UpsertPermit(ctx context.Context, p model.Permit) error
	UpsertPermits(ctx context.Context, permits []model.Permit) error
	GetPermit(ctx context.Context, permitNumber string) (*model.Permit, error)
	ListPermitsByBBL(ctx context.Context, bbl string) ([]model.Permit, error)

	// Buildings
	GetBuilding(ctx context.Context, bbl string) (*model.Building, error)
	SaveBuilding(ctx context.Context, b model.Building) error
	ListEligible(ctx context.Context, f EligibilityFilter) ([]model.Building, error)

	// Transaction ledger
	GetTransaction(ctx context.Context, buildingID, documentID string) (*model.Transaction, error)
	UpsertTransaction(ctx context.Context, txn model.Transaction) error
	InsertPartyOnce(ctx context.Context, party model.Party) (bool, error)
	ListTransactions(ctx context.Context, buildingID string) ([]model.Transaction, error)
	ListParties(ctx context.Context, buildingID string) ([]model.Party, error)
	SetPrimaryFlags(ctx context.Context, buildingID, deedDocumentID, mortgageDocumentID string) error

	// Scores
	SaveScore(ctx context.Context, rec model.ScoreRecord) error
	GetScore(ctx context.Context, bbl string) (*model.ScoreRecord, error)

	// Runs
	CreateRun(ctx context.Context, batchSize int) (*model.Run, error)
	FinishRun(ctx context.Context, run *model.Run) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates the store named by the config's driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return NewSQLite(cfg.Path)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// hasSourceErrors reports whether any registry check on the building ended
// in an error. Extracted into its own column so eligibility queries can
// retry errored buildings sooner.
func hasSourceErrors(b *model.Building) bool {
	for _, check := range b.SourceChecks {
		if check.Status == model.SourceStatusError {
			return true
		}
	}
	return false
}
