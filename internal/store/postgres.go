package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/parcel-cli/internal/db"
	"github.com/sells-group/parcel-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot enrichment-loop operations.
var preparedStatements = map[string]string{
	"get_building": `SELECT data FROM buildings WHERE bbl = $1`,
	"save_building": `INSERT INTO buildings (bbl, state, data, has_source_errors, last_enriched_at, last_updated, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (bbl) DO UPDATE SET
			state = EXCLUDED.state,
			data = EXCLUDED.data,
			has_source_errors = EXCLUDED.has_source_errors,
			last_enriched_at = EXCLUDED.last_enriched_at,
			last_updated = EXCLUDED.last_updated`,
	"get_transaction": `SELECT building_id, document_id, doc_type, amount, doc_date, recorded_date,
			percent_transferred, crfn, is_primary_deed, is_primary_mortgage
		FROM transactions WHERE building_id = $1 AND document_id = $2`,
	"upsert_transaction": `INSERT INTO transactions (building_id, document_id, doc_type, amount, doc_date,
			recorded_date, percent_transferred, crfn, is_primary_deed, is_primary_mortgage)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (building_id, document_id) DO UPDATE SET
			doc_type = EXCLUDED.doc_type,
			amount = EXCLUDED.amount,
			doc_date = EXCLUDED.doc_date,
			recorded_date = EXCLUDED.recorded_date,
			percent_transferred = EXCLUDED.percent_transferred,
			crfn = EXCLUDED.crfn,
			is_primary_deed = EXCLUDED.is_primary_deed,
			is_primary_mortgage = EXCLUDED.is_primary_mortgage`,
	"insert_party": `INSERT INTO parties (document_id, party_type, name, address)
		VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
	"save_score": `INSERT INTO score_records (bbl, data, computed_at) VALUES ($1, $2, $3)
		ON CONFLICT (bbl) DO UPDATE SET data = EXCLUDED.data, computed_at = EXCLUDED.computed_at`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests to substitute a
// pgxmock pool.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for bulk loads that bypass the
// row-at-a-time interface.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS permits (
	permit_number TEXT PRIMARY KEY,
	bbl           TEXT NOT NULL DEFAULT '',
	data          JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS buildings (
	bbl               TEXT PRIMARY KEY,
	state             TEXT NOT NULL DEFAULT 'new',
	data              JSONB NOT NULL,
	has_source_errors BOOLEAN NOT NULL DEFAULT false,
	last_enriched_at  TIMESTAMPTZ,
	last_updated      TIMESTAMPTZ NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	building_id         TEXT NOT NULL,
	document_id         TEXT NOT NULL,
	doc_type            TEXT NOT NULL,
	amount              DOUBLE PRECISION,
	doc_date            TIMESTAMPTZ,
	recorded_date       TIMESTAMPTZ,
	percent_transferred DOUBLE PRECISION,
	crfn                TEXT NOT NULL DEFAULT '',
	is_primary_deed     BOOLEAN NOT NULL DEFAULT false,
	is_primary_mortgage BOOLEAN NOT NULL DEFAULT false,
	PRIMARY KEY (building_id, document_id)
);

CREATE TABLE IF NOT EXISTS parties (
	document_id TEXT NOT NULL,
	party_type  TEXT NOT NULL,
	name        TEXT NOT NULL,
	address     TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (document_id, party_type, name)
);

CREATE TABLE IF NOT EXISTS score_records (
	bbl         TEXT PRIMARY KEY,
	data        JSONB NOT NULL,
	computed_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS enrichment_runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	batch_size  INTEGER NOT NULL,
	data        JSONB NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_permits_bbl ON permits(bbl);
CREATE INDEX IF NOT EXISTS idx_buildings_state ON buildings(state);
CREATE INDEX IF NOT EXISTS idx_buildings_last_enriched ON buildings(last_enriched_at);
CREATE INDEX IF NOT EXISTS idx_transactions_building ON transactions(building_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Permits

func (s *PostgresStore) UpsertPermit(ctx context.Context, p model.Permit) error {
	data, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal permit")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO permits (permit_number, bbl, data, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (permit_number) DO UPDATE SET bbl = EXCLUDED.bbl, data = EXCLUDED.data`,
		p.PermitNumber, p.BBL, data, p.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert permit %s", p.PermitNumber)
}

// UpsertPermits bulk-loads one import batch through a temp table and COPY.
func (s *PostgresStore) UpsertPermits(ctx context.Context, permits []model.Permit) error {
	if len(permits) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(permits))
	for _, p := range permits {
		data, err := json.Marshal(p)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal permit")
		}
		rows = append(rows, []any{p.PermitNumber, p.BBL, data, p.CreatedAt.UTC()})
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "permits",
		Columns:      []string{"permit_number", "bbl", "data", "created_at"},
		ConflictKeys: []string{"permit_number"},
		UpdateCols:   []string{"bbl", "data"},
	}, rows)
	return eris.Wrap(err, "postgres: bulk upsert permits")
}

func (s *PostgresStore) GetPermit(ctx context.Context, permitNumber string) (*model.Permit, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM permits WHERE permit_number = $1`, permitNumber,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get permit %s", permitNumber)
	}
	var p model.Permit
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal permit")
	}
	return &p, nil
}

func (s *PostgresStore) ListPermitsByBBL(ctx context.Context, bbl string) ([]model.Permit, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM permits WHERE bbl = $1 ORDER BY permit_number`, bbl,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list permits for %s", bbl)
	}
	defer rows.Close()

	var permits []model.Permit
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan permit")
		}
		var p model.Permit
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal permit")
		}
		permits = append(permits, p)
	}
	return permits, eris.Wrap(rows.Err(), "postgres: list permits iterate")
}

// Buildings

func (s *PostgresStore) GetBuilding(ctx context.Context, bbl string) (*model.Building, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, "get_building", bbl).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get building %s", bbl)
	}
	var b model.Building
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal building")
	}
	return &b, nil
}

func (s *PostgresStore) SaveBuilding(ctx context.Context, b model.Building) error {
	data, err := json.Marshal(b)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal building")
	}
	var lastEnriched *time.Time
	if b.LastEnrichedAt != nil {
		t := b.LastEnrichedAt.UTC()
		lastEnriched = &t
	}
	_, err = s.pool.Exec(ctx, "save_building",
		b.BBL, string(b.State), data, hasSourceErrors(&b),
		lastEnriched, b.LastUpdated.UTC(), b.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: save building %s", b.BBL)
}

func (s *PostgresStore) ListEligible(ctx context.Context, f EligibilityFilter) ([]model.Building, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM buildings
		 WHERE state IN ('new', 'stale')
		    OR (state = 'enriched' AND last_enriched_at < $1)
		    OR (state = 'enriched' AND has_source_errors AND last_enriched_at < $2)
		 ORDER BY last_enriched_at ASC NULLS FIRST, bbl ASC
		 LIMIT $3`,
		f.StaleBefore.UTC(), f.ErrorRetryBefore.UTC(), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list eligible")
	}
	defer rows.Close()

	var buildings []model.Building
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan building")
		}
		var b model.Building
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal building")
		}
		buildings = append(buildings, b)
	}
	return buildings, eris.Wrap(rows.Err(), "postgres: list eligible iterate")
}

// Transaction ledger

func (s *PostgresStore) GetTransaction(ctx context.Context, buildingID, documentID string) (*model.Transaction, error) {
	row := s.pool.QueryRow(ctx, "get_transaction", buildingID, documentID)
	txn, err := scanPgTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get transaction %s", documentID)
	}
	return txn, nil
}

func (s *PostgresStore) UpsertTransaction(ctx context.Context, txn model.Transaction) error {
	_, err := s.pool.Exec(ctx, "upsert_transaction",
		txn.BuildingID, txn.DocumentID, txn.DocType, txn.Amount,
		txn.DocDate, txn.RecordedDate, txn.PercentTransferred, txn.CRFN,
		txn.IsPrimaryDeed, txn.IsPrimaryMortgage,
	)
	return eris.Wrapf(err, "postgres: upsert transaction %s", txn.DocumentID)
}

func (s *PostgresStore) InsertPartyOnce(ctx context.Context, party model.Party) (bool, error) {
	tag, err := s.pool.Exec(ctx, "insert_party",
		party.DocumentID, party.PartyType, party.Name, party.Address,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert party for %s", party.DocumentID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, buildingID string) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT building_id, document_id, doc_type, amount, doc_date, recorded_date,
		        percent_transferred, crfn, is_primary_deed, is_primary_mortgage
		 FROM transactions WHERE building_id = $1 ORDER BY document_id`,
		buildingID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list transactions for %s", buildingID)
	}
	defer rows.Close()

	var txns []model.Transaction
	for rows.Next() {
		txn, err := scanPgTransaction(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan transaction")
		}
		txns = append(txns, *txn)
	}
	return txns, eris.Wrap(rows.Err(), "postgres: list transactions iterate")
}

func (s *PostgresStore) ListParties(ctx context.Context, buildingID string) ([]model.Party, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.document_id, p.party_type, p.name, p.address
		 FROM parties p
		 JOIN transactions t ON t.document_id = p.document_id
		 WHERE t.building_id = $1
		 ORDER BY p.document_id, p.party_type, p.name`,
		buildingID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list parties for %s", buildingID)
	}
	defer rows.Close()

	var parties []model.Party
	for rows.Next() {
		var p model.Party
		if err := rows.Scan(&p.DocumentID, &p.PartyType, &p.Name, &p.Address); err != nil {
			return nil, eris.Wrap(err, "postgres: scan party")
		}
		parties = append(parties, p)
	}
	return parties, eris.Wrap(rows.Err(), "postgres: list parties iterate")
}

func (s *PostgresStore) SetPrimaryFlags(ctx context.Context, buildingID, deedDocumentID, mortgageDocumentID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE transactions SET
			is_primary_deed = (document_id = $1 AND $1 != ''),
			is_primary_mortgage = (document_id = $2 AND $2 != '')
		 WHERE building_id = $3`,
		deedDocumentID, mortgageDocumentID, buildingID,
	)
	return eris.Wrapf(err, "postgres: set primary flags for %s", buildingID)
}

// Scores

func (s *PostgresStore) SaveScore(ctx context.Context, rec model.ScoreRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal score")
	}
	_, err = s.pool.Exec(ctx, "save_score", rec.BBL, data, rec.ComputedAt.UTC())
	return eris.Wrapf(err, "postgres: save score %s", rec.BBL)
}

func (s *PostgresStore) GetScore(ctx context.Context, bbl string) (*model.ScoreRecord, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM score_records WHERE bbl = $1`, bbl,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get score %s", bbl)
	}
	var rec model.ScoreRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal score")
	}
	return &rec, nil
}

// Runs

func (s *PostgresStore) CreateRun(ctx context.Context, batchSize int) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		Status:    model.RunStatusRunning,
		BatchSize: batchSize,
		StartedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(run)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal run")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO enrichment_runs (id, status, batch_size, data, started_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, string(run.Status), run.BatchSize, data, run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return run, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, run *model.Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE enrichment_runs SET status = $1, data = $2, finished_at = $3 WHERE id = $4`,
		string(run.Status), data, run.FinishedAt, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", run.ID)
	}
	return nil
}

func scanPgTransaction(row pgx.Row) (*model.Transaction, error) {
	var txn model.Transaction
	err := row.Scan(&txn.BuildingID, &txn.DocumentID, &txn.DocType, &txn.Amount,
		&txn.DocDate, &txn.RecordedDate, &txn.PercentTransferred, &txn.CRFN,
		&txn.IsPrimaryDeed, &txn.IsPrimaryMortgage)
	if err != nil {
		return nil, err
	}
	return &txn, nil
}
