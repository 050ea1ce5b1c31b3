package source

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/sells-group/parcel-cli/internal/config"
)

// NewDefaultRegistry wires every configured registry adapter against the
// shared Socrata client. Each adapter owns one logical rate limiter shared
// across workers; the Socrata-backed adapters share the open-data host's
// limiter through the common client.
func NewDefaultRegistry(cfg config.SourcesConfig) *Registry {
	client := NewClient(cfg)
	ids := cfg.Datasets

	r := NewRegistry()
	r.Register(NewPlutoAdapter(client, ids.Pluto))
	r.Register(NewRPADAdapter(client, ids.RPAD))
	r.Register(NewHPDAdapter(client, ids.HPD))
	r.Register(NewACRISAdapter(client, ids.ACRISLegals, ids.ACRISMaster, ids.ACRISParties))
	r.Register(NewECBAdapter(client, ids.ECB))
	r.Register(NewDOBAdapter(client, ids.DOB))
	r.Register(NewRegistryAdapter(
		cfg.RegistryURL,
		time.Duration(cfg.TimeoutSecs)*time.Second,
		rate.Limit(cfg.RatePerSec),
		cfg.Burst,
	))
	return r
}
