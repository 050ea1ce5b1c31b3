package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parcel-cli/internal/config"
	"github.com/sells-group/parcel-cli/internal/resilience"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.SourcesConfig{
		BaseURL:     srv.URL,
		TimeoutSecs: 5,
		RatePerSec:  1000,
		Burst:       10,
	})
}

func TestRows_DecodesRecords(t *testing.T) {
	t.Parallel()

	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/resource/64uk-42ks.json", r.URL.Path)
		assert.Equal(t, "3050080064", r.URL.Query().Get("bbl"))
		w.Write([]byte(`[{"ownername":"ACME LLC","unitsres":"12","assesstot":"1250000.5"}]`))
	})

	rows, err := c.Rows(context.Background(), "64uk-42ks", map[string][]string{"bbl": {"3050080064"}})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	require.NotNil(t, rows[0].String("ownername"))
	assert.Equal(t, "ACME LLC", *rows[0].String("ownername"))
	require.NotNil(t, rows[0].Int("unitsres"))
	assert.Equal(t, 12, *rows[0].Int("unitsres"))
	require.NotNil(t, rows[0].Float("assesstot"))
	assert.InDelta(t, 1250000.5, *rows[0].Float("assesstot"), 0.001)
}

func TestRows_TransientOnServerError(t *testing.T) {
	t.Parallel()

	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.Rows(context.Background(), "abcd-1234", nil)
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestRows_PermanentOnClientError(t *testing.T) {
	t.Parallel()

	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := c.Rows(context.Background(), "abcd-1234", nil)
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestRow_DefensiveParsing(t *testing.T) {
	t.Parallel()

	row := Row{
		"empty":    "",
		"garbage":  "N/A",
		"money":    "$1,234,567.89",
		"zero":     "0",
		"date":     "2021-06-01T00:00:00.000",
		"flag_yes": "Y",
		"flag_bad": "maybe",
	}

	assert.Nil(t, row.String("empty"))
	assert.Nil(t, row.String("missing"))
	assert.Nil(t, row.Float("garbage"))
	assert.Nil(t, row.Int("garbage"))

	require.NotNil(t, row.Float("money"))
	assert.InDelta(t, 1234567.89, *row.Float("money"), 0.001)

	// Zero parses as zero, it does not normalize to nil.
	require.NotNil(t, row.Int("zero"))
	assert.Equal(t, 0, *row.Int("zero"))

	require.NotNil(t, row.Date("date"))
	assert.Equal(t, time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC), *row.Date("date"))

	require.NotNil(t, row.Bool("flag_yes"))
	assert.True(t, *row.Bool("flag_yes"))
	assert.Nil(t, row.Bool("flag_bad"))
}

func TestSplitBBL(t *testing.T) {
	t.Parallel()

	borough, block, lot, err := splitBBL("3050080064")
	require.NoError(t, err)
	assert.Equal(t, "3", borough)
	assert.Equal(t, "5008", block)
	assert.Equal(t, "64", lot)

	_, _, _, err = splitBBL("12345")
	require.Error(t, err)
}

func TestPlutoAdapter_Fetch(t *testing.T) {
	t.Parallel()

	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"ownername":"ACME LLC","unitsres":"12","yearbuilt":"1931","numfloors":"6","zipcode":"11215"}]`))
	})
	a := NewPlutoAdapter(c, "64uk-42ks")

	patch, err := a.Fetch(context.Background(), "3050080064")
	require.NoError(t, err)
	assert.Equal(t, NamePluto, patch.Source)
	require.NotNil(t, patch.Pluto)
	assert.Equal(t, "ACME LLC", *patch.Pluto.OwnerName)
	assert.Equal(t, 12, *patch.Pluto.ResidentialUnits)
	assert.Equal(t, 1931, *patch.Pluto.YearBuilt)
	assert.Nil(t, patch.Pluto.BuildingClass)
}

func TestPlutoAdapter_NotFound(t *testing.T) {
	t.Parallel()

	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	a := NewPlutoAdapter(c, "64uk-42ks")

	_, err := a.Fetch(context.Background(), "3050080064")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestECBAdapter_AggregatesBalance(t *testing.T) {
	t.Parallel()

	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.URL.Query().Get("boro"))
		assert.Equal(t, "5008", r.URL.Query().Get("block"))
		assert.Equal(t, "64", r.URL.Query().Get("lot"))
		w.Write([]byte(`[
			{"ecb_violation_status":"ACTIVE","balance_due":"2500.00"},
			{"ecb_violation_status":"RESOLVE","balance_due":"0"},
			{"ecb_violation_status":"ACTIVE","balance_due":"750.50"}
		]`))
	})
	a := NewECBAdapter(c, "6bgk-3dad")

	patch, err := a.Fetch(context.Background(), "3050080064")
	require.NoError(t, err)
	require.NotNil(t, patch.ECB)
	assert.Equal(t, 3, *patch.ECB.ViolationCount)
	assert.Equal(t, 2, *patch.ECB.OpenViolations)
	assert.InDelta(t, 3250.50, *patch.ECB.OutstandingBalance, 0.001)
}

func TestRegistrySelect(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(&StubAdapter{AdapterName: "pluto"})
	r.Register(&StubAdapter{AdapterName: "rpad"})
	r.Register(&StubAdapter{AdapterName: "hpd"})

	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, "pluto", all[0].Name())
	assert.Equal(t, "hpd", all[2].Name())

	some, err := r.Select([]string{"hpd", "pluto"})
	require.NoError(t, err)
	require.Len(t, some, 2)
	// Registration order wins over request order.
	assert.Equal(t, "pluto", some[0].Name())
	assert.Equal(t, "hpd", some[1].Name())

	_, err = r.Select([]string{"nope"})
	require.Error(t, err)
}

func TestNormalizePartyType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "seller", normalizePartyType("DEED", "1"))
	assert.Equal(t, "buyer", normalizePartyType("DEED", "2"))
	assert.Equal(t, "borrower", normalizePartyType("MTGE", "1"))
	assert.Equal(t, "lender", normalizePartyType("MTGE", "2"))
	assert.Equal(t, "lender", normalizePartyType("SAT", "2"))
}
