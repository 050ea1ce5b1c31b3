package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parcel-cli/internal/model"
	"github.com/sells-group/parcel-cli/internal/store"
)

func newServeStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRouter_Health(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(newRouter(newServeStore(t)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_BuildingLookup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := newServeStore(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := model.NewBuilding("3050080064", now)
	owner := "ACME REALTY LLC"
	b.OwnerName = &owner
	require.NoError(t, st.SaveBuilding(ctx, b))

	issued := now.AddDate(0, 0, -20)
	require.NoError(t, st.UpsertPermit(ctx, model.Permit{
		PermitNumber: "321234567",
		BBL:          "3050080064",
		JobType:      "NB",
		IssuedAt:     &issued,
		CreatedAt:    now,
	}))
	require.NoError(t, st.SaveScore(ctx, model.ScoreRecord{
		BBL:        "3050080064",
		LeadScore:  50,
		LeadRaw:    50,
		ComputedAt: now,
	}))

	srv := httptest.NewServer(newRouter(st))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/buildings/3050080064")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view buildingView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	require.NotNil(t, view.Building)
	assert.Equal(t, "3050080064", view.Building.BBL)
	require.NotNil(t, view.Building.OwnerName)
	assert.Equal(t, owner, *view.Building.OwnerName)
	require.Len(t, view.Permits, 1)
	assert.Equal(t, "321234567", view.Permits[0].PermitNumber)
	require.NotNil(t, view.Score)
	assert.Equal(t, 50, view.Score.LeadScore)
}

func TestRouter_UnknownBuilding(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(newRouter(newServeStore(t)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/buildings/9999999999")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
