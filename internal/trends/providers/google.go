package providers

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/i474232898/artist-trends/internal/trends"
)

const (
	widgetTimeseries     = "TIMESERIES"
	widgetGeoMap         = "GEO_MAP"
	widgetRelatedQueries = "RELATED_QUERIES"

	sessionCookie = "NID"
	userAgent     = "Mozilla/5.0 (compatible; artist-trends/1.0)"
)

// GoogleTrendsConfig configures the Google Trends client.
type GoogleTrendsConfig struct {
	BaseURL    string
	Language   string // hl, e.g. en-US
	TZ         int    // offset in minutes
	MaxRetries int
}

// GoogleTrendsProvider implements trends.Provider against the public Google
// Trends web endpoints. Each data call is an explore request that hands out
// widget tokens, followed by one widgetdata request.
type GoogleTrendsProvider struct {
	name    string
	baseURL string
	hl      string
	tz      string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	log     zerolog.Logger

	mu      sync.RWMutex
	cookies []*http.Cookie
}

type widget struct {
	ID      string
	Token   string
	Request string // raw JSON
}

func NewGoogleTrendsProvider(client *http.Client, cfg GoogleTrendsConfig, log zerolog.Logger) *GoogleTrendsProvider {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "google-trends",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &GoogleTrendsProvider{
		name:    "google-trends",
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		hl:      cfg.Language,
		tz:      strconv.Itoa(cfg.TZ),
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      cfg.MaxRetries,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuit: cb,
		log:     log.With().Str("component", "google_trends").Logger(),
	}
}

func (p *GoogleTrendsProvider) Name() string {
	return p.name
}

// Refresh fetches a fresh session cookie. Google throttles cookieless clients
// far more aggressively.
func (p *GoogleTrendsProvider) Refresh(ctx context.Context) error {
	values := url.Values{}
	values.Set("geo", geoFromLanguage(p.hl))

	_, resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, p.get("/trends/explore", values, false))
	if err != nil {
		return fmt.Errorf("refresh session: %w", err)
	}

	var fresh []*http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == sessionCookie {
			fresh = append(fresh, c)
		}
	}
	if len(fresh) == 0 {
		return fmt.Errorf("refresh session: no %s cookie in response", sessionCookie)
	}

	p.mu.Lock()
	p.cookies = fresh
	p.mu.Unlock()

	p.log.Debug().Msg("session cookie refreshed")
	return nil
}

func (p *GoogleTrendsProvider) ensureSession(ctx context.Context) {
	p.mu.RLock()
	has := len(p.cookies) > 0
	p.mu.RUnlock()
	if has {
		return
	}
	if err := p.Refresh(ctx); err != nil {
		p.log.Warn().Err(err).Msg("continuing without session cookie")
	}
}

// get returns a request builder for a GET against the provider.
func (p *GoogleTrendsProvider) get(path string, values url.Values, withSession bool) func() (*http.Request, error) {
	return func() (*http.Request, error) {
		u := fmt.Sprintf("%s%s?%s", p.baseURL, path, values.Encode())
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept-Language", p.hl)
		if withSession {
			p.mu.RLock()
			for _, c := range p.cookies {
				req.AddCookie(c)
			}
			p.mu.RUnlock()
		}
		return req, nil
	}
}

type comparisonItem struct {
	Keyword string `json:"keyword"`
	Time    string `json:"time"`
	Geo     string `json:"geo"`
}

type exploreRequest struct {
	ComparisonItem []comparisonItem `json:"comparisonItem"`
	Category       int              `json:"category"`
	Property       string           `json:"property"`
}

func (p *GoogleTrendsProvider) explore(ctx context.Context, q trends.Query) ([]widget, error) {
	p.ensureSession(ctx)

	payload := exploreRequest{Category: q.Category, Property: q.Property}
	for _, term := range q.Terms {
		payload.ComparisonItem = append(payload.ComparisonItem, comparisonItem{
			Keyword: term,
			Time:    q.Timeframe,
			Geo:     q.Geo,
		})
	}
	reqJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	values := url.Values{}
	values.Set("hl", p.hl)
	values.Set("tz", p.tz)
	values.Set("req", string(reqJSON))

	body, _, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, p.get("/trends/api/explore", values, true))
	if err != nil {
		return nil, fmt.Errorf("explore: %w", err)
	}

	body = trimXSSI(body)
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("explore: invalid json response")
	}

	var widgets []widget
	for _, w := range gjson.GetBytes(body, "widgets").Array() {
		widgets = append(widgets, widget{
			ID:      w.Get("id").String(),
			Token:   w.Get("token").String(),
			Request: w.Get("request").Raw,
		})
	}
	return widgets, nil
}

func (p *GoogleTrendsProvider) widgetData(ctx context.Context, path string, w widget) ([]byte, error) {
	values := url.Values{}
	values.Set("req", w.Request)
	values.Set("token", w.Token)
	values.Set("tz", p.tz)

	body, _, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, p.get(path, values, true))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", w.ID, err)
	}
	return trimXSSI(body), nil
}

func findWidgets(widgets []widget, prefix string) []widget {
	var out []widget
	for _, w := range widgets {
		if strings.HasPrefix(w.ID, prefix) {
			out = append(out, w)
		}
	}
	return out
}

func findWidget(widgets []widget, id string) (widget, error) {
	for _, w := range widgets {
		if w.ID == id {
			return w, nil
		}
	}
	return widget{}, fmt.Errorf("explore: no %s widget in response", id)
}

func (p *GoogleTrendsProvider) InterestOverTime(ctx context.Context, q trends.Query) ([]trends.TimelineRow, error) {
	widgets, err := p.explore(ctx, q)
	if err != nil {
		return nil, err
	}
	w, err := findWidget(widgets, widgetTimeseries)
	if err != nil {
		return nil, err
	}

	body, err := p.widgetData(ctx, "/trends/api/widgetdata/multiline", w)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Default struct {
			TimelineData []struct {
				Time      string `json:"time"`
				Value     []int  `json:"value"`
				IsPartial bool   `json:"isPartial"`
			} `json:"timelineData"`
		} `json:"default"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode timeline: %w", err)
	}

	rows := make([]trends.TimelineRow, 0, len(payload.Default.TimelineData))
	for _, d := range payload.Default.TimelineData {
		sec, err := strconv.ParseInt(d.Time, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode timeline: bad time %q: %w", d.Time, err)
		}
		rows = append(rows, trends.TimelineRow{
			Time:    time.Unix(sec, 0).UTC(),
			Values:  columns(q.Terms, d.Value),
			Partial: d.IsPartial,
		})
	}
	return rows, nil
}

func (p *GoogleTrendsProvider) InterestByRegion(ctx context.Context, q trends.Query, opts trends.RegionOptions) ([]trends.RegionRow, error) {
	widgets, err := p.explore(ctx, q)
	if err != nil {
		return nil, err
	}
	w, err := findWidget(widgets, widgetGeoMap)
	if err != nil {
		return nil, err
	}

	// Resolution can only be chosen for worldwide queries.
	if q.Geo == "" && opts.Resolution != "" {
		req, err := sjson.Set(w.Request, "resolution", opts.Resolution)
		if err != nil {
			return nil, err
		}
		w.Request = req
	}
	req, err := sjson.Set(w.Request, "includeLowSearchVolumeGeos", opts.IncludeLowVolume)
	if err != nil {
		return nil, err
	}
	w.Request = req

	body, err := p.widgetData(ctx, "/trends/api/widgetdata/comparedgeo", w)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Default struct {
			GeoMapData []struct {
				GeoCode string `json:"geoCode"`
				GeoName string `json:"geoName"`
				Value   []int  `json:"value"`
			} `json:"geoMapData"`
		} `json:"default"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode regions: %w", err)
	}

	rows := make([]trends.RegionRow, 0, len(payload.Default.GeoMapData))
	for _, g := range payload.Default.GeoMapData {
		row := trends.RegionRow{
			Name:   g.GeoName,
			Values: columns(q.Terms, g.Value),
		}
		if opts.IncludeGeoCode {
			row.Code = g.GeoCode
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (p *GoogleTrendsProvider) RelatedQueries(ctx context.Context, q trends.Query) (map[string]trends.RelatedTables, error) {
	widgets, err := p.explore(ctx, q)
	if err != nil {
		return nil, err
	}

	related := findWidgets(widgets, widgetRelatedQueries)
	if len(related) == 0 {
		return nil, fmt.Errorf("explore: no %s widget in response", widgetRelatedQueries)
	}

	out := make(map[string]trends.RelatedTables, len(related))
	for i, w := range related {
		kw := gjson.Get(w.Request, "restriction.complexKeywordsRestriction.keyword.0.value").String()
		if kw == "" && i < len(q.Terms) {
			kw = q.Terms[i]
		}

		body, err := p.widgetData(ctx, "/trends/api/widgetdata/relatedsearches", w)
		if err != nil {
			return nil, err
		}

		var payload struct {
			Default struct {
				RankedList []struct {
					RankedKeyword []struct {
						Query          string `json:"query"`
						Value          int    `json:"value"`
						FormattedValue string `json:"formattedValue"`
					} `json:"rankedKeyword"`
				} `json:"rankedList"`
			} `json:"default"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("decode related queries: %w", err)
		}

		var tables trends.RelatedTables
		ranked := payload.Default.RankedList
		if len(ranked) > 0 {
			for _, k := range ranked[0].RankedKeyword {
				tables.Top = append(tables.Top, trends.RelatedRow{Query: k.Query, Value: trends.NumberValue(k.Value)})
			}
		}
		if len(ranked) > 1 {
			for _, k := range ranked[1].RankedKeyword {
				tables.Rising = append(tables.Rising, trends.RelatedRow{Query: k.Query, Value: risingValue(k.Value, k.FormattedValue)})
			}
		}
		out[kw] = tables
	}
	return out, nil
}

type trendingFeed struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Items []struct {
			Title   string `xml:"title"`
			Traffic string `xml:"approx_traffic"`
		} `xml:"item"`
	} `xml:"channel"`
}

// TrendingSearches reads the daily trending feed for a country. Each row is
// [title, approximate traffic].
func (p *GoogleTrendsProvider) TrendingSearches(ctx context.Context, country string) ([]trends.TrendingRow, error) {
	p.ensureSession(ctx)

	values := url.Values{}
	values.Set("geo", strings.ToUpper(country))

	body, _, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, p.get("/trending/rss", values, true))
	if err != nil {
		return nil, fmt.Errorf("trending: %w", err)
	}

	var feed trendingFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("decode trending feed: %w", err)
	}

	rows := make([]trends.TrendingRow, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		rows = append(rows, trends.TrendingRow{
			Columns: []string{strings.TrimSpace(item.Title), strings.TrimSpace(item.Traffic)},
		})
	}
	return rows, nil
}

// columns maps the per-term value vector onto term names. Missing trailing
// values leave their term absent.
func columns(terms []string, values []int) map[string]int {
	out := make(map[string]int, len(terms))
	for i, term := range terms {
		if i < len(values) {
			out[term] = values[i]
		}
	}
	return out
}

// risingValue keeps the provider's label when growth is too large to quantify.
func risingValue(value int, formatted string) trends.QueryValue {
	if strings.EqualFold(formatted, "breakout") {
		return trends.TextValue(formatted)
	}
	return trends.NumberValue(value)
}

// trimXSSI strips the ")]}'" guard Google prepends to JSON responses.
func trimXSSI(body []byte) []byte {
	if i := bytes.IndexAny(body, "{["); i > 0 {
		return body[i:]
	}
	return body
}

func geoFromLanguage(hl string) string {
	if len(hl) < 2 {
		return ""
	}
	return hl[len(hl)-2:]
}
