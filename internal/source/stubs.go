package source

import (
	"context"
	"sync"
)

// StubAdapter is a canned-response adapter for tests and dry runs. It either
// returns Patch/Err verbatim or delegates to FetchFn when set.
type StubAdapter struct {
	AdapterName string
	Patch       *Patch
	Err         error
	FetchFn     func(ctx context.Context, bbl string) (*Patch, error)

	mu    sync.Mutex
	calls []string
}

func (s *StubAdapter) Name() string { return s.AdapterName }

func (s *StubAdapter) Fetch(ctx context.Context, bbl string) (*Patch, error) {
	s.mu.Lock()
	s.calls = append(s.calls, bbl)
	s.mu.Unlock()

	if s.FetchFn != nil {
		return s.FetchFn(ctx, bbl)
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Patch, nil
}

// Calls returns the BBLs fetched so far.
func (s *StubAdapter) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}
