package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/parcel-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS permits (
	permit_number TEXT PRIMARY KEY,
	bbl           TEXT NOT NULL DEFAULT '',
	data          TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS buildings (
	bbl               TEXT PRIMARY KEY,
	state             TEXT NOT NULL DEFAULT 'new',
	data              TEXT NOT NULL,
	has_source_errors INTEGER NOT NULL DEFAULT 0,
	last_enriched_at  DATETIME,
	last_updated      DATETIME NOT NULL,
	created_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	building_id         TEXT NOT NULL,
	document_id         TEXT NOT NULL,
	doc_type            TEXT NOT NULL,
	amount              REAL,
	doc_date            DATETIME,
	recorded_date       DATETIME,
	percent_transferred REAL,
	crfn                TEXT NOT NULL DEFAULT '',
	is_primary_deed     INTEGER NOT NULL DEFAULT 0,
	is_primary_mortgage INTEGER NOT NULL DEFAULT 0,
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
	data        TEXT NOT NULL,
	computed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS enrichment_runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	batch_size  INTEGER NOT NULL,
	data        TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_permits_bbl ON permits(bbl);
CREATE INDEX IF NOT EXISTS idx_buildings_state ON buildings(state);
CREATE INDEX IF NOT EXISTS idx_buildings_last_enriched ON buildings(last_enriched_at);
CREATE INDEX IF NOT EXISTS idx_transactions_building ON transactions(building_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Permits

func (s *SQLiteStore) UpsertPermit(ctx context.Context, p model.Permit) error {
	data, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal permit")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO permits (permit_number, bbl, data, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(permit_number) DO UPDATE SET bbl = excluded.bbl, data = excluded.data`,
		p.PermitNumber, p.BBL, string(data), p.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert permit %s", p.PermitNumber)
}

// UpsertPermits writes one import batch inside a single transaction.
func (s *SQLiteStore) UpsertPermits(ctx context.Context, permits []model.Permit) error {
	if len(permits) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin permit batch")
	}
	defer tx.Rollback()

	for _, p := range permits {
		data, err := json.Marshal(p)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal permit")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO permits (permit_number, bbl, data, created_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(permit_number) DO UPDATE SET bbl = excluded.bbl, data = excluded.data`,
			p.PermitNumber, p.BBL, string(data), p.CreatedAt.UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert permit %s", p.PermitNumber)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit permit batch")
}

func (s *SQLiteStore) GetPermit(ctx context.Context, permitNumber string) (*model.Permit, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data FROM permits WHERE permit_number = ?`, permitNumber,
	)
	var data string
	if err := row.Scan(&data); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get permit %s", permitNumber)
	}
	var p model.Permit
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal permit")
	}
	return &p, nil
}

func (s *SQLiteStore) ListPermitsByBBL(ctx context.Context, bbl string) ([]model.Permit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM permits WHERE bbl = ? ORDER BY permit_number`, bbl,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list permits for %s", bbl)
	}
	defer rows.Close()

	var permits []model.Permit
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan permit")
		}
		var p model.Permit
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal permit")
		}
		permits = append(permits, p)
	}
	return permits, eris.Wrap(rows.Err(), "sqlite: list permits iterate")
}

// Buildings

func (s *SQLiteStore) GetBuilding(ctx context.Context, bbl string) (*model.Building, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data FROM buildings WHERE bbl = ?`, bbl,
	)
	var data string
	if err := row.Scan(&data); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get building %s", bbl)
	}
	var b model.Building
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal building")
	}
	return &b, nil
}

func (s *SQLiteStore) SaveBuilding(ctx context.Context, b model.Building) error {
	data, err := json.Marshal(b)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal building")
	}
	var lastEnriched any
	if b.LastEnrichedAt != nil {
		lastEnriched = b.LastEnrichedAt.UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO buildings (bbl, state, data, has_source_errors, last_enriched_at, last_updated, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(bbl) DO UPDATE SET
			state = excluded.state,
			data = excluded.data,
			has_source_errors = excluded.has_source_errors,
			last_enriched_at = excluded.last_enriched_at,
			last_updated = excluded.last_updated`,
		b.BBL, string(b.State), string(data), hasSourceErrors(&b),
		lastEnriched, b.LastUpdated.UTC(), b.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save building %s", b.BBL)
}

func (s *SQLiteStore) ListEligible(ctx context.Context, f EligibilityFilter) ([]model.Building, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM buildings
		 WHERE state IN ('new', 'stale')
		    OR (state = 'enriched' AND last_enriched_at < ?)
		    OR (state = 'enriched' AND has_source_errors = 1 AND last_enriched_at < ?)
		 ORDER BY last_enriched_at IS NOT NULL, last_enriched_at ASC, bbl ASC
		 LIMIT ?`,
		f.StaleBefore.UTC(), f.ErrorRetryBefore.UTC(), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list eligible")
	}
	defer rows.Close()

	var buildings []model.Building
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan building")
		}
		var b model.Building
		if err := json.Unmarshal([]byte(data), &b); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal building")
		}
		buildings = append(buildings, b)
	}
	return buildings, eris.Wrap(rows.Err(), "sqlite: list eligible iterate")
}

// Transaction ledger

func (s *SQLiteStore) GetTransaction(ctx context.Context, buildingID, documentID string) (*model.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT building_id, document_id, doc_type, amount, doc_date, recorded_date,
		        percent_transferred, crfn, is_primary_deed, is_primary_mortgage
		 FROM transactions WHERE building_id = ? AND document_id = ?`,
		buildingID, documentID,
	)
	txn, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get transaction %s", documentID)
	}
	return txn, nil
}

func (s *SQLiteStore) UpsertTransaction(ctx context.Context, txn model.Transaction) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (building_id, document_id, doc_type, amount, doc_date,
			recorded_date, percent_transferred, crfn, is_primary_deed, is_primary_mortgage)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(building_id, document_id) DO UPDATE SET
			doc_type = excluded.doc_type,
			amount = excluded.amount,
			doc_date = excluded.doc_date,
			recorded_date = excluded.recorded_date,
			percent_transferred = excluded.percent_transferred,
			crfn = excluded.crfn,
			is_primary_deed = excluded.is_primary_deed,
			is_primary_mortgage = excluded.is_primary_mortgage`,
		txn.BuildingID, txn.DocumentID, txn.DocType, nullFloat(txn.Amount),
		nullTime(txn.DocDate), nullTime(txn.RecordedDate),
		nullFloat(txn.PercentTransferred), txn.CRFN,
		txn.IsPrimaryDeed, txn.IsPrimaryMortgage,
	)
	return eris.Wrapf(err, "sqlite: upsert transaction %s", txn.DocumentID)
}

func (s *SQLiteStore) InsertPartyOnce(ctx context.Context, party model.Party) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO parties (document_id, party_type, name, address) VALUES (?, ?, ?, ?)`,
		party.DocumentID, party.PartyType, party.Name, party.Address,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert party for %s", party.DocumentID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListTransactions(ctx context.Context, buildingID string) ([]model.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT building_id, document_id, doc_type, amount, doc_date, recorded_date,
		        percent_transferred, crfn, is_primary_deed, is_primary_mortgage
		 FROM transactions WHERE building_id = ? ORDER BY document_id`,
		buildingID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list transactions for %s", buildingID)
	}
	defer rows.Close()

	var txns []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan transaction")
		}
		txns = append(txns, *txn)
	}
	return txns, eris.Wrap(rows.Err(), "sqlite: list transactions iterate")
}

func (s *SQLiteStore) ListParties(ctx context.Context, buildingID string) ([]model.Party, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.document_id, p.party_type, p.name, p.address
		 FROM parties p
		 JOIN transactions t ON t.document_id = p.document_id
		 WHERE t.building_id = ?
		 ORDER BY p.document_id, p.party_type, p.name`,
		buildingID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list parties for %s", buildingID)
	}
	defer rows.Close()

	var parties []model.Party
	for rows.Next() {
		var p model.Party
		if err := rows.Scan(&p.DocumentID, &p.PartyType, &p.Name, &p.Address); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan party")
		}
		parties = append(parties, p)
	}
	return parties, eris.Wrap(rows.Err(), "sqlite: list parties iterate")
}

func (s *SQLiteStore) SetPrimaryFlags(ctx context.Context, buildingID, deedDocumentID, mortgageDocumentID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET
			is_primary_deed = CASE WHEN document_id = ? AND ? != '' THEN 1 ELSE 0 END,
			is_primary_mortgage = CASE WHEN document_id = ? AND ? != '' THEN 1 ELSE 0 END
		 WHERE building_id = ?`,
		deedDocumentID, deedDocumentID, mortgageDocumentID, mortgageDocumentID, buildingID,
	)
	return eris.Wrapf(err, "sqlite: set primary flags for %s", buildingID)
}

// Scores

func (s *SQLiteStore) SaveScore(ctx context.Context, rec model.ScoreRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal score")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO score_records (bbl, data, computed_at) VALUES (?, ?, ?)
		 ON CONFLICT(bbl) DO UPDATE SET data = excluded.data, computed_at = excluded.computed_at`,
		rec.BBL, string(data), rec.ComputedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save score %s", rec.BBL)
}

func (s *SQLiteStore) GetScore(ctx context.Context, bbl string) (*model.ScoreRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data FROM score_records WHERE bbl = ?`, bbl,
	)
	var data string
	if err := row.Scan(&data); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get score %s", bbl)
	}
	var rec model.ScoreRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal score")
	}
	return &rec, nil
}

// Runs

func (s *SQLiteStore) CreateRun(ctx context.Context, batchSize int) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		Status:    model.RunStatusRunning,
		BatchSize: batchSize,
		StartedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(run)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal run")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO enrichment_runs (id, status, batch_size, data, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, string(run.Status), run.BatchSize, string(data), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, run *model.Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run")
	}
	var finished any
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE enrichment_runs SET status = ?, data = ?, finished_at = ? WHERE id = ?`,
		string(run.Status), string(data), finished, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", run.ID)
	}
	return checkRowsAffected(res, "run", run.ID)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTransaction(row scannable) (*model.Transaction, error) {
	var txn model.Transaction
	var amount, percent sql.NullFloat64
	var docDate, recordedDate sql.NullTime

	err := row.Scan(&txn.BuildingID, &txn.DocumentID, &txn.DocType, &amount,
		&docDate, &recordedDate, &percent, &txn.CRFN,
		&txn.IsPrimaryDeed, &txn.IsPrimaryMortgage)
	if err != nil {
		return nil, err
	}

	if amount.Valid {
		txn.Amount = &amount.Float64
	}
	if percent.Valid {
		txn.PercentTransferred = &percent.Float64
	}
	if docDate.Valid {
		t := docDate.Time.UTC()
		txn.DocDate = &t
	}
	if recordedDate.Valid {
		t := recordedDate.Time.UTC()
		txn.RecordedDate = &t
	}
	return &txn, nil
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.UTC()
}
