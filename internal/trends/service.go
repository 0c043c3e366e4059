package trends

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const (
	topCountriesLimit = 10
	relatedLimit      = 10
	trendingLimit     = 20

	DefaultCountry = "US"
)

var (
	// ErrMissingParameter is returned when a required query parameter is absent.
	ErrMissingParameter = errors.New("missing required parameter")
	// ErrMalformedRow is returned when a provider row cannot be shaped into a record.
	ErrMalformedRow = errors.New("malformed provider row")
)

// Outcome tags the result of a single provider call.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeEmpty
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeEmpty:
		return "empty"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// result is what the gateway sees of a provider call. Empty and Failed are
// reported identically to clients; the distinction only reaches logs and metrics.
type result[T any] struct {
	data    T
	outcome Outcome
	err     error
}

func (r result[T]) usable() bool { return r.outcome == OutcomeOK }

// Service translates artist queries into paced provider calls and shapes the
// provider tables into response envelopes.
type Service struct {
	provider Provider
	pacer    Pacer
	log      zerolog.Logger
}

// NewService creates a new Service.
func NewService(provider Provider, pacer Pacer, log zerolog.Logger) *Service {
	return &Service{
		provider: provider,
		pacer:    pacer,
		log:      log.With().Str("component", "trends_service").Str("provider", provider.Name()).Logger(),
	}
}

// fetch paces and invokes one provider call. Any provider error is logged and
// collapsed into OutcomeFailed here, at the call site.
func fetch[T any](ctx context.Context, s *Service, op string, call func(context.Context) (T, error), empty func(T) bool) result[T] {
	var res result[T]

	waitStart := time.Now()
	if err := s.pacer.Wait(ctx); err != nil {
		res.outcome, res.err = OutcomeFailed, fmt.Errorf("pacing: %w", err)
	} else {
		pacingWaitDuration.Observe(time.Since(waitStart).Seconds())

		start := time.Now()
		res.data, res.err = call(ctx)
		providerCallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

		switch {
		case res.err != nil:
			res.outcome = OutcomeFailed
		case empty(res.data):
			res.outcome = OutcomeEmpty
		default:
			res.outcome = OutcomeOK
		}
	}

	providerCallsTotal.WithLabelValues(op, res.outcome.String()).Inc()
	if res.outcome == OutcomeFailed {
		s.log.Error().Err(res.err).Str("operation", op).Msg("trends request failed")
	}
	return res
}

// InterestOverTime returns the daily interest for an artist over the trailing
// 12 months together with its peak and average.
func (s *Service) InterestOverTime(ctx context.Context, artist string) (InterestReport, error) {
	if artist == "" {
		return InterestReport{}, fmt.Errorf("%w: artist", ErrMissingParameter)
	}

	q := ArtistQuery(artist)
	res := fetch(ctx, s, "interest_over_time", func(ctx context.Context) ([]TimelineRow, error) {
		return s.provider.InterestOverTime(ctx, q)
	}, func(rows []TimelineRow) bool { return len(rows) == 0 })

	if !res.usable() {
		return InterestReport{
			Artist:           artist,
			InterestOverTime: []InterestPoint{},
			Status:           StatusNoData,
		}, nil
	}

	points := make([]InterestPoint, 0, len(res.data))
	values := make([]int, 0, len(res.data))
	for _, row := range res.data {
		v, ok := row.Values[artist]
		if !ok {
			return InterestReport{}, fmt.Errorf("%w: timeline row %s has no column %q",
				ErrMalformedRow, row.Time.Format(time.DateOnly), artist)
		}
		points = append(points, InterestPoint{
			Date:     row.Time.UTC().Format(time.DateOnly),
			Interest: v,
		})
		values = append(values, v)
	}

	return InterestReport{
		Artist:           artist,
		InterestOverTime: points,
		PeakInterest:     Peak(values),
		AverageInterest:  OneDecimal(Average(values)),
		Timeframe:        TimeframeLabel,
		Status:           StatusSuccess,
	}, nil
}

// RegionalInterest returns the countries reporting nonzero interest for an
// artist, most interested first, plus the top ten.
func (s *Service) RegionalInterest(ctx context.Context, artist string) (RegionalReport, error) {
	if artist == "" {
		return RegionalReport{}, fmt.Errorf("%w: artist", ErrMissingParameter)
	}

	q := ArtistQuery(artist)
	opts := RegionOptions{Resolution: "COUNTRY", IncludeLowVolume: true, IncludeGeoCode: false}
	res := fetch(ctx, s, "interest_by_region", func(ctx context.Context) ([]RegionRow, error) {
		return s.provider.InterestByRegion(ctx, q, opts)
	}, func(rows []RegionRow) bool { return len(rows) == 0 })

	if !res.usable() {
		return RegionalReport{
			Artist:           artist,
			RegionalInterest: []RegionalInterest{},
			TopCountries:     []RegionalInterest{},
			Status:           StatusNoData,
		}, nil
	}

	regions := make([]RegionalInterest, 0, len(res.data))
	for _, row := range res.data {
		v, ok := row.Values[artist]
		if !ok {
			return RegionalReport{}, fmt.Errorf("%w: region %q has no column %q", ErrMalformedRow, row.Name, artist)
		}
		if v > 0 {
			regions = append(regions, RegionalInterest{Country: row.Name, Interest: v})
		}
	}

	// Ties keep provider order.
	sort.SliceStable(regions, func(i, j int) bool {
		return regions[i].Interest > regions[j].Interest
	})

	return RegionalReport{
		Artist:           artist,
		RegionalInterest: regions,
		TopCountries:     TopN(regions, topCountriesLimit),
		Status:           StatusSuccess,
	}, nil
}

// RelatedQueries returns the first ten rising and top related queries for an
// artist.
func (s *Service) RelatedQueries(ctx context.Context, artist string) (RelatedReport, error) {
	if artist == "" {
		return RelatedReport{}, fmt.Errorf("%w: artist", ErrMissingParameter)
	}

	q := ArtistQuery(artist)
	res := fetch(ctx, s, "related_queries", func(ctx context.Context) (map[string]RelatedTables, error) {
		return s.provider.RelatedQueries(ctx, q)
	}, func(tables map[string]RelatedTables) bool {
		t, ok := tables[artist]
		return !ok || (len(t.Top) == 0 && len(t.Rising) == 0)
	})

	if !res.usable() {
		return RelatedReport{
			Artist:        artist,
			RisingQueries: []RelatedQuery{},
			TopQueries:    []RelatedQuery{},
			Status:        StatusNoData,
		}, nil
	}

	tables := res.data[artist]

	rising := make([]RelatedQuery, 0, relatedLimit)
	for _, row := range TopN(tables.Rising, relatedLimit) {
		rising = append(rising, RelatedQuery{Query: row.Query, Value: row.Value})
	}

	top := make([]RelatedQuery, 0, relatedLimit)
	for _, row := range TopN(tables.Top, relatedLimit) {
		top = append(top, RelatedQuery{Query: row.Query, Value: coerceDigits(row.Value)})
	}

	return RelatedReport{
		Artist:        artist,
		RisingQueries: rising,
		TopQueries:    top,
		Status:        StatusSuccess,
	}, nil
}

// TrendingSearches returns today's trending searches for a country code,
// in provider order.
func (s *Service) TrendingSearches(ctx context.Context, country string) (TrendingReport, error) {
	if country == "" {
		country = DefaultCountry
	}

	res := fetch(ctx, s, "trending_searches", func(ctx context.Context) ([]TrendingRow, error) {
		return s.provider.TrendingSearches(ctx, country)
	}, func(rows []TrendingRow) bool { return len(rows) == 0 })

	if !res.usable() {
		return TrendingReport{
			Country:          country,
			TrendingSearches: []string{},
			Status:           StatusNoData,
		}, nil
	}

	rows := TopN(res.data, trendingLimit)
	searches := make([]string, 0, len(rows))
	for i, row := range rows {
		if len(row.Columns) == 0 {
			return TrendingReport{}, fmt.Errorf("%w: trending row %d has no columns", ErrMalformedRow, i)
		}
		searches = append(searches, row.Columns[0])
	}

	return TrendingReport{
		Country:          country,
		TrendingSearches: searches,
		Status:           StatusSuccess,
	}, nil
}

// coerceDigits turns a label made only of ASCII digits into a number.
func coerceDigits(v QueryValue) QueryValue {
	if !v.IsText || !isDigits(v.Text) {
		return v
	}
	n, err := strconv.Atoi(v.Text)
	if err != nil {
		return v
	}
	return NumberValue(n)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
