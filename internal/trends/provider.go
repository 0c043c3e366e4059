package trends

import (
	"context"
)

// Provider abstracts the external search-interest source (e.g. Google Trends).
// Implementations must be safe for concurrent use; every call is parameterized
// solely by its arguments.
type Provider interface {
	Name() string
	InterestOverTime(ctx context.Context, q Query) ([]TimelineRow, error)
	InterestByRegion(ctx context.Context, q Query, opts RegionOptions) ([]RegionRow, error)
	// RelatedQueries returns the related-query tables keyed by search term.
	RelatedQueries(ctx context.Context, q Query) (map[string]RelatedTables, error)
	TrendingSearches(ctx context.Context, country string) ([]TrendingRow, error)
}

// Pacer is waited on before every provider call.
type Pacer interface {
	Wait(ctx context.Context) error
}
