package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/parcel-cli/internal/scoring"
	"github.com/sells-group/parcel-cli/internal/store"
)

// openStore opens and migrates the configured store.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// loadScoringPolicy returns the configured point table, falling back to the
// built-in defaults when no override file is set.
func loadScoringPolicy() (scoring.Policy, error) {
	if cfg.Scoring.PolicyPath == "" {
		return scoring.DefaultPolicy(), nil
	}
	return scoring.LoadPolicy(cfg.Scoring.PolicyPath)
}
