// Package trendstest provides in-memory doubles for the trends package.
package trendstest

import (
	"context"
	"sync"
	"time"

	"github.com/i474232898/artist-trends/internal/trends"
)

// StubProvider is a trends.Provider that returns canned tables. A non-nil Err
// is returned from every call.
type StubProvider struct {
	Timeline []trends.TimelineRow
	Regions  []trends.RegionRow
	Related  map[string]trends.RelatedTables
	Trending []trends.TrendingRow
	Err      error

	mu          sync.Mutex
	calls       int
	lastRegion  trends.RegionOptions
	lastQuery   trends.Query
	lastCountry string
}

var day0 = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Interest returns timeline rows for term with one row per value, one day apart
// starting 2024-01-01.
func Interest(term string, values ...int) []trends.TimelineRow {
	rows := make([]trends.TimelineRow, 0, len(values))
	for i, v := range values {
		rows = append(rows, trends.TimelineRow{
			Time:   day0.AddDate(0, 0, i),
			Values: map[string]int{term: v},
		})
	}
	return rows
}

func (s *StubProvider) Name() string { return "stub" }

// Calls returns how many provider calls were made.
func (s *StubProvider) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// LastQuery returns the query of the most recent artist call.
func (s *StubProvider) LastQuery() trends.Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastQuery
}

// LastRegionOptions returns the options of the most recent regional call.
func (s *StubProvider) LastRegionOptions() trends.RegionOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRegion
}

// LastCountry returns the country of the most recent trending call.
func (s *StubProvider) LastCountry() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCountry
}

func (s *StubProvider) record(q trends.Query) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastQuery = q
}

func (s *StubProvider) InterestOverTime(ctx context.Context, q trends.Query) ([]trends.TimelineRow, error) {
	s.record(q)
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Timeline, nil
}

func (s *StubProvider) InterestByRegion(ctx context.Context, q trends.Query, opts trends.RegionOptions) ([]trends.RegionRow, error) {
	s.record(q)
	s.mu.Lock()
	s.lastRegion = opts
	s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Regions, nil
}

func (s *StubProvider) RelatedQueries(ctx context.Context, q trends.Query) (map[string]trends.RelatedTables, error) {
	s.record(q)
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Related, nil
}

func (s *StubProvider) TrendingSearches(ctx context.Context, country string) ([]trends.TrendingRow, error) {
	s.record(trends.Query{})
	s.mu.Lock()
	s.lastCountry = country
	s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Trending, nil
}

// CountingPacer records Wait calls without delaying.
type CountingPacer struct {
	mu    sync.Mutex
	waits int
}

func (p *CountingPacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	p.waits++
	p.mu.Unlock()
	return ctx.Err()
}

// Waits returns how many times Wait was called.
func (p *CountingPacer) Waits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waits
}
