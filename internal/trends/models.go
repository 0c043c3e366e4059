package trends

import (
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// Status values carried by every response envelope.
const (
	StatusSuccess = "success"
	StatusNoData  = "no_data"
	StatusError   = "error"
)

// Timeframe is the provider window used for every artist query.
const (
	Timeframe      = "today 12-m"
	TimeframeLabel = "12 months"
)

// Query describes a single provider request. The gateway always builds the
// same shape: one term, category 0, trailing 12 months, no geo, web search.
type Query struct {
	Terms     []string
	Category  int
	Timeframe string
	Geo       string
	Property  string
}

// ArtistQuery returns the fixed query shape for an artist name.
func ArtistQuery(artist string) Query {
	return Query{
		Terms:     []string{artist},
		Category:  0,
		Timeframe: Timeframe,
	}
}

// RegionOptions controls the regional breakdown.
type RegionOptions struct {
	Resolution       string
	IncludeLowVolume bool
	IncludeGeoCode   bool
}

// InterestPoint is one day of interest in the requested window.
type InterestPoint struct {
	Date     string `json:"date"` // YYYY-MM-DD
	Interest int    `json:"interest"`
}

// RegionalInterest is the interest reported for a single country.
type RegionalInterest struct {
	Country  string `json:"country"`
	Interest int    `json:"interest"`
}

// QueryValue holds either a numeric magnitude or a provider label such as
// "Breakout". It marshals to a JSON integer or string accordingly.
type QueryValue struct {
	Number int
	Text   string
	IsText bool
}

// NumberValue returns a numeric QueryValue.
func NumberValue(n int) QueryValue { return QueryValue{Number: n} }

// TextValue returns a label QueryValue.
func TextValue(s string) QueryValue { return QueryValue{Text: s, IsText: true} }

func (v QueryValue) String() string {
	if v.IsText {
		return v.Text
	}
	return strconv.Itoa(v.Number)
}

func (v QueryValue) MarshalJSON() ([]byte, error) {
	if v.IsText {
		return json.Marshal(v.Text)
	}
	return json.Marshal(v.Number)
}

func (v *QueryValue) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*v = NumberValue(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*v = TextValue(s)
	return nil
}

// OneDecimal is a float written with exactly one fractional digit, so a whole
// mean renders as 30.0 rather than 30.
type OneDecimal float64

func (d OneDecimal) MarshalJSON() ([]byte, error) {
	return strconv.AppendFloat(nil, float64(d), 'f', 1, 64), nil
}

// RelatedQuery is one row of a related-queries ranking.
type RelatedQuery struct {
	Query string     `json:"query"`
	Value QueryValue `json:"value"`
}

// TimelineRow is one row of the provider's interest-over-time table. Values is
// keyed by search term.
type TimelineRow struct {
	Time    time.Time
	Values  map[string]int
	Partial bool
}

// RegionRow is one row of the provider's interest-by-region table.
type RegionRow struct {
	Name   string
	Code   string // only set when geo codes were requested
	Values map[string]int
}

// RelatedRow is one row of a related-queries table.
type RelatedRow struct {
	Query string
	Value QueryValue
}

// RelatedTables holds the two related-query rankings for one term.
type RelatedTables struct {
	Top    []RelatedRow
	Rising []RelatedRow
}

// TrendingRow is one row of the daily trending table.
type TrendingRow struct {
	Columns []string
}

// InterestReport is the response of the interest-over-time endpoint.
type InterestReport struct {
	Artist           string          `json:"artist"`
	InterestOverTime []InterestPoint `json:"interest_over_time"`
	PeakInterest     int             `json:"peak_interest"`
	AverageInterest  OneDecimal      `json:"average_interest"`
	Timeframe        string          `json:"timeframe,omitempty"`
	Status           string          `json:"status"`
}

// RegionalReport is the response of the regional endpoint.
type RegionalReport struct {
	Artist           string             `json:"artist"`
	RegionalInterest []RegionalInterest `json:"regional_interest"`
	TopCountries     []RegionalInterest `json:"top_countries"`
	Status           string             `json:"status"`
}

// RelatedReport is the response of the related-queries endpoint.
type RelatedReport struct {
	Artist        string         `json:"artist"`
	RisingQueries []RelatedQuery `json:"rising_queries"`
	TopQueries    []RelatedQuery `json:"top_queries"`
	Status        string         `json:"status"`
}

// TrendingReport is the response of the trending-searches endpoint.
type TrendingReport struct {
	Country          string   `json:"country"`
	TrendingSearches []string `json:"trending_searches"`
	Status           string   `json:"status"`
}
