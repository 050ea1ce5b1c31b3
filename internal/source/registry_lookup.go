package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/parcel-cli/internal/resilience"
)

// RegistryAdapter looks up the "real person behind the LLC" for a parcel
// through the business-registry service. The service itself is an external
// collaborator; this adapter only speaks its lookup contract.
type RegistryAdapter struct {
	http    *http.Client
	limiter *rate.Limiter
	baseURL string
}

// NewRegistryAdapter creates the business-registry adapter.
func NewRegistryAdapter(baseURL string, timeout time.Duration, limit rate.Limit, burst int) *RegistryAdapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if limit <= 0 {
		limit = 2
	}
	if burst <= 0 {
		burst = 1
	}
	return &RegistryAdapter{
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (a *RegistryAdapter) Name() string { return NameRegistry }

func (a *RegistryAdapter) Fetch(ctx context.Context, bblID string) (*Patch, error) {
	if a.baseURL == "" {
		return nil, ErrNotFound
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "registry: rate limit wait")
	}

	u := fmt.Sprintf("%s/principals/%s", a.baseURL, bblID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "registry: build request")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, resilience.MarkTransient(eris.Wrap(err, "registry: fetch"), 0)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resilience.RetryableStatus(resp.StatusCode):
		return nil, resilience.MarkTransient(eris.Errorf("registry: status %d", resp.StatusCode), resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, eris.Errorf("registry: status %d", resp.StatusCode)
	}

	var body struct {
		PrincipalName  *string `json:"principal_name"`
		PrincipalTitle *string `json:"principal_title"`
		EntityStatus   *string `json:"entity_status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, eris.Wrap(err, "registry: decode")
	}
	if body.PrincipalName == nil && body.EntityStatus == nil {
		return nil, ErrNotFound
	}

	return &Patch{
		Source:    NameRegistry,
		FetchedAt: time.Now().UTC(),
		Registry: &RegistryRecord{
			PrincipalName:  body.PrincipalName,
			PrincipalTitle: body.PrincipalTitle,
			EntityStatus:   body.EntityStatus,
		},
	}, nil
}
