package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/parcel-cli/internal/config"
	"github.com/sells-group/parcel-cli/internal/resilience"
)

// Client is a minimal Socrata open-data client shared by the registry
// adapters. The rate limiter is per-client and shared across all workers so
// the aggregate call rate never exceeds the registry's tolerance regardless
// of orchestrator concurrency.
type Client struct {
	http     *http.Client
	limiter  *rate.Limiter
	baseURL  string
	appToken string
}

// NewClient builds a Socrata client from the sources configuration.
func NewClient(cfg config.SourcesConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	perSec := cfg.RatePerSec
	if perSec <= 0 {
		perSec = 2
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		http:     &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Limit(perSec), burst),
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		appToken: cfg.AppToken,
	}
}

// Row is one decoded Socrata record. Socrata serves most values as strings;
// the typed accessors normalize defensively: a missing, empty, or
// unparseable value is nil, never zero.
type Row map[string]any

// Rows fetches dataset records matching the given query parameters.
func (c *Client) Rows(ctx context.Context, dataset string, params url.Values) ([]Row, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "socrata: rate limit wait")
	}

	u := fmt.Sprintf("%s/resource/%s.json", c.baseURL, dataset)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "socrata: build request for %s", dataset)
	}
	if c.appToken != "" {
		req.Header.Set("X-App-Token", c.appToken)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.MarkTransient(eris.Wrapf(err, "socrata: fetch %s", dataset), 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := eris.Errorf("socrata: %s returned %d: %s", dataset, resp.StatusCode, strings.TrimSpace(string(body)))
		if resilience.RetryableStatus(resp.StatusCode) {
			return nil, resilience.MarkTransient(err, resp.StatusCode)
		}
		return nil, err
	}

	var rows []Row
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, eris.Wrapf(err, "socrata: decode %s", dataset)
	}
	return rows, nil
}

// String returns the trimmed string value for key, or nil if absent/empty.
func (r Row) String(key string) *string {
	v, ok := r[key]
	if !ok {
		return nil
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return nil
	}
	return &s
}

// Float parses a numeric value, tolerating currency symbols and thousands
// separators. Non-numeric input normalizes to nil, never to zero: zero is a
// meaningful value (for example, zero open violations).
func (r Row) Float(key string) *float64 {
	s := r.String(key)
	if s == nil {
		return nil
	}
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(*s)
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &f
}

// Int parses an integer value with the same defensive rules as Float.
func (r Row) Int(key string) *int {
	f := r.Float(key)
	if f == nil {
		return nil
	}
	n := int(*f)
	return &n
}

// Date parses a Socrata floating timestamp or plain date.
func (r Row) Date(key string) *time.Time {
	s := r.String(key)
	if s == nil {
		return nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05.000", "2006-01-02T15:04:05", "2006-01-02", "01/02/2006"} {
		if t, err := time.Parse(layout, *s); err == nil {
			return &t
		}
	}
	return nil
}

// Bool parses Y/N and true/false style flags.
func (r Row) Bool(key string) *bool {
	s := r.String(key)
	if s == nil {
		return nil
	}
	var b bool
	switch strings.ToUpper(*s) {
	case "Y", "YES", "TRUE", "1":
		b = true
	case "N", "NO", "FALSE", "0":
		b = false
	default:
		return nil
	}
	return &b
}

// splitBBL breaks a 10-digit BBL into the borough/block/lot columns ACRIS
// datasets are keyed by.
func splitBBL(bblID string) (borough, block, lot string, err error) {
	if len(bblID) != 10 {
		return "", "", "", eris.Errorf("source: malformed bbl %q", bblID)
	}
	return bblID[0:1], strings.TrimLeft(bblID[1:6], "0"), strings.TrimLeft(bblID[6:10], "0"), nil
}
