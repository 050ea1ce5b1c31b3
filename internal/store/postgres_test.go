package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parcel-cli/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewPostgresWithPool(mock), mock
}

func TestPostgres_GetBuilding(t *testing.T) {
	s, mock := newMockStore(t)

	b := model.NewBuilding("3050080064", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	data, err := json.Marshal(b)
	require.NoError(t, err)

	mock.ExpectQuery("get_building").
		WithArgs("3050080064").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow(data))

	got, err := s.GetBuilding(context.Background(), "3050080064")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "3050080064", got.BBL)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetBuildingMissing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("get_building").
		WithArgs("4001000001").
		WillReturnRows(pgxmock.NewRows([]string{"data"}))

	got, err := s.GetBuilding(context.Background(), "4001000001")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_InsertPartyOnce(t *testing.T) {
	s, mock := newMockStore(t)

	party := model.Party{DocumentID: "D1", PartyType: model.PartyBuyer, Name: "NEW OWNER LLC"}

	mock.ExpectExec("insert_party").
		WithArgs("D1", model.PartyBuyer, "NEW OWNER LLC", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	inserted, err := s.InsertPartyOnce(context.Background(), party)
	require.NoError(t, err)
	assert.True(t, inserted)

	// Conflict: zero rows affected means the party already existed.
	mock.ExpectExec("insert_party").
		WithArgs("D1", model.PartyBuyer, "NEW OWNER LLC", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err = s.InsertPartyOnce(context.Background(), party)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SetPrimaryFlags(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE transactions SET").
		WithArgs("T2", "M1", "3050080064").
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	err := s.SetPrimaryFlags(context.Background(), "3050080064", "T2", "M1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveScore(t *testing.T) {
	s, mock := newMockStore(t)

	rec := model.ScoreRecord{
		BBL:        "3050080064",
		LeadScore:  70,
		ComputedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	mock.ExpectExec("save_score").
		WithArgs(rec.BBL, data, rec.ComputedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveScore(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FinishRunNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	run := &model.Run{ID: "missing", Status: model.RunStatusComplete}
	data, err := json.Marshal(run)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE enrichment_runs").
		WithArgs(string(run.Status), data, run.FinishedAt, run.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = s.FinishRun(context.Background(), run)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertPermitsBulkPath(t *testing.T) {
	s, mock := newMockStore(t)

	// Batch loads go Begin -> CREATE TEMP TABLE -> COPY -> INSERT ON
	// CONFLICT -> Commit.
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_permits"},
		[]string{"permit_number", "bbl", "data", "created_at"}).
		WillReturnResult(2)
	mock.ExpectExec("INSERT INTO").
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	err := s.UpsertPermits(context.Background(), []model.Permit{
		{PermitNumber: "321234567", BBL: "3050080064", JobType: "NB", CreatedAt: now},
		{PermitNumber: "321234568", BBL: "3050080064", JobType: "A1", CreatedAt: now},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertTransactionError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("upsert_transaction").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(fmt.Errorf("connection reset"))

	err := s.UpsertTransaction(context.Background(), model.Transaction{
		BuildingID: "3050080064",
		DocumentID: "T1",
		DocType:    model.DocTypeDeed,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert transaction T1")
	assert.NoError(t, mock.ExpectationsWereMet())
}
