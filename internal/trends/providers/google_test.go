package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/i474232898/artist-trends/internal/trends"
)

const exploreResponse = `)]}'
{"widgets":[
 {"id":"TIMESERIES","token":"ts-token","request":{"time":"2024-01-01 2024-12-31","resolution":"WEEK","comparisonItem":[{"geo":{},"complexKeywordsRestriction":{"keyword":[{"type":"BROAD","value":"Drake"}]}}]}},
 {"id":"GEO_MAP","token":"geo-token","request":{"geo":{},"comparisonItem":[{"time":"2024-01-01 2024-12-31"}],"resolution":"REGION","locale":"en-US"}},
 {"id":"RELATED_TOPICS","token":"topics-token","request":{}},
 {"id":"RELATED_QUERIES","token":"rq-token","request":{"restriction":{"complexKeywordsRestriction":{"keyword":[{"type":"BROAD","value":"Drake"}]}},"keywordType":"QUERY"}}
]}`

const timelineResponse = `)]}',
{"default":{"timelineData":[
 {"time":"1704067200","formattedTime":"Jan 1, 2024","value":[10],"hasData":[true],"formattedValue":["10"]},
 {"time":"1704153600","formattedTime":"Jan 2, 2024","value":[50],"hasData":[true],"formattedValue":["50"]},
 {"time":"1704240000","formattedTime":"Jan 3, 2024","value":[30],"hasData":[true],"formattedValue":["30"],"isPartial":true}
]}}`

const geoResponse = `)]}',
{"default":{"geoMapData":[
 {"geoCode":"US","geoName":"United States","value":[100],"formattedValue":["100"],"maxValueIndex":0,"hasData":[true]},
 {"geoCode":"AQ","geoName":"Antarctica","value":[0],"formattedValue":[""],"maxValueIndex":0,"hasData":[false]},
 {"geoCode":"CA","geoName":"Canada","value":[85],"formattedValue":["85"],"maxValueIndex":0,"hasData":[true]}
]}}`

const relatedResponse = `)]}',
{"default":{"rankedList":[
 {"rankedKeyword":[{"query":"drake album","value":100,"formattedValue":"100","hasData":true},{"query":"drake songs","value":42,"formattedValue":"42","hasData":true}]},
 {"rankedKeyword":[{"query":"drake kendrick","value":250500,"formattedValue":"Breakout","hasData":true},{"query":"drake tour","value":350,"formattedValue":"+350%","hasData":true}]}
]}}`

const trendingResponse = `<?xml version="1.0" encoding="UTF-8"?>
<rss xmlns:ht="https://trends.google.com/trending/rss" version="2.0">
 <channel>
  <title>Daily Search Trends</title>
  <item><title>first trend</title><ht:approx_traffic>500+</ht:approx_traffic></item>
  <item><title>second trend</title><ht:approx_traffic>200+</ht:approx_traffic></item>
 </channel>
</rss>`

type fakeTrends struct {
	server        *httptest.Server
	sessionHits   atomic.Int32
	cookielessHit atomic.Int32
	geoRequest    atomic.Value
}

func newFakeTrends(t *testing.T) *fakeTrends {
	t.Helper()
	f := &fakeTrends{}

	requireSession := func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("NID"); err != nil || c.Value != "session-1" {
			f.cookielessHit.Add(1)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/trends/explore", func(w http.ResponseWriter, r *http.Request) {
		f.sessionHits.Add(1)
		if r.URL.Query().Get("geo") != "US" {
			t.Errorf("expected geo=US on session request, got %q", r.URL.Query().Get("geo"))
		}
		http.SetCookie(w, &http.Cookie{Name: "NID", Value: "session-1"})
		fmt.Fprint(w, "<html>explore</html>")
	})
	mux.HandleFunc("/trends/api/explore", func(w http.ResponseWriter, r *http.Request) {
		requireSession(w, r)
		req := r.URL.Query().Get("req")
		if gjson.Get(req, "comparisonItem.0.time").String() != trends.Timeframe {
			t.Errorf("unexpected explore request %s", req)
		}
		fmt.Fprint(w, exploreResponse)
	})
	mux.HandleFunc("/trends/api/widgetdata/multiline", func(w http.ResponseWriter, r *http.Request) {
		requireSession(w, r)
		if r.URL.Query().Get("token") != "ts-token" {
			http.Error(w, "bad token", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, timelineResponse)
	})
	mux.HandleFunc("/trends/api/widgetdata/comparedgeo", func(w http.ResponseWriter, r *http.Request) {
		f.geoRequest.Store(r.URL.Query().Get("req"))
		fmt.Fprint(w, geoResponse)
	})
	mux.HandleFunc("/trends/api/widgetdata/relatedsearches", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "rq-token" {
			http.Error(w, "bad token", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, relatedResponse)
	})
	mux.HandleFunc("/trending/rss", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("geo") != "GB" {
			t.Errorf("expected geo=GB, got %q", r.URL.Query().Get("geo"))
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, trendingResponse)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func newTestProvider(baseURL string, retries int) *GoogleTrendsProvider {
	return NewGoogleTrendsProvider(&http.Client{Timeout: 5 * time.Second}, GoogleTrendsConfig{
		BaseURL:    baseURL,
		Language:   "en-US",
		TZ:         360,
		MaxRetries: retries,
	}, zerolog.Nop())
}

func TestGoogleTrendsInterestOverTime(t *testing.T) {
	f := newFakeTrends(t)
	p := newTestProvider(f.server.URL, 0)

	rows, err := p.InterestOverTime(context.Background(), trends.ArtistQuery("Drake"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	want := []int{10, 50, 30}
	for i, row := range rows {
		if row.Values["Drake"] != want[i] {
			t.Errorf("row %d: expected %d, got %d", i, want[i], row.Values["Drake"])
		}
	}
	if got := rows[0].Time.Format(time.DateOnly); got != "2024-01-01" {
		t.Errorf("expected first row on 2024-01-01, got %s", got)
	}
	if !rows[2].Partial || rows[0].Partial {
		t.Errorf("expected only the last row to be partial")
	}

	if f.sessionHits.Load() != 1 {
		t.Errorf("expected one session request, got %d", f.sessionHits.Load())
	}
	if f.cookielessHit.Load() != 0 {
		t.Errorf("expected session cookie on every data request")
	}

	// Session is reused.
	if _, err := p.InterestOverTime(context.Background(), trends.ArtistQuery("Drake")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.sessionHits.Load() != 1 {
		t.Errorf("expected session to be reused, got %d session requests", f.sessionHits.Load())
	}
}

func TestGoogleTrendsInterestByRegion(t *testing.T) {
	f := newFakeTrends(t)
	p := newTestProvider(f.server.URL, 0)

	opts := trends.RegionOptions{Resolution: "COUNTRY", IncludeLowVolume: true}
	rows, err := p.InterestByRegion(context.Background(), trends.ArtistQuery("Drake"), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].Name != "United States" || rows[0].Values["Drake"] != 100 {
		t.Errorf("unexpected first row %+v", rows[0])
	}
	if rows[0].Code != "" {
		t.Errorf("expected geo code to be omitted, got %q", rows[0].Code)
	}

	req, _ := f.geoRequest.Load().(string)
	if gjson.Get(req, "resolution").String() != "COUNTRY" {
		t.Errorf("expected resolution rewritten to COUNTRY, got %s", req)
	}
	if !gjson.Get(req, "includeLowSearchVolumeGeos").Bool() {
		t.Errorf("expected low volume geos included, got %s", req)
	}
}

func TestGoogleTrendsRelatedQueries(t *testing.T) {
	f := newFakeTrends(t)
	p := newTestProvider(f.server.URL, 0)

	tables, err := p.RelatedQueries(context.Background(), trends.ArtistQuery("Drake"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	drake, ok := tables["Drake"]
	if !ok {
		t.Fatalf("expected tables keyed by Drake, got %v", tables)
	}
	if len(drake.Top) != 2 || drake.Top[0].Query != "drake album" || drake.Top[0].Value != trends.NumberValue(100) {
		t.Errorf("unexpected top table %+v", drake.Top)
	}
	if len(drake.Rising) != 2 {
		t.Fatalf("expected 2 rising rows, got %d", len(drake.Rising))
	}
	if drake.Rising[0].Value != trends.TextValue("Breakout") {
		t.Errorf("expected Breakout label, got %+v", drake.Rising[0].Value)
	}
	if drake.Rising[1].Value != trends.NumberValue(350) {
		t.Errorf("expected numeric growth, got %+v", drake.Rising[1].Value)
	}
}

func TestGoogleTrendsTrendingSearches(t *testing.T) {
	f := newFakeTrends(t)
	p := newTestProvider(f.server.URL, 0)

	rows, err := p.TrendingSearches(context.Background(), "gb")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Columns[0] != "first trend" || rows[0].Columns[1] != "500+" {
		t.Errorf("unexpected first row %v", rows[0].Columns)
	}
	if rows[1].Columns[0] != "second trend" {
		t.Errorf("unexpected second row %v", rows[1].Columns)
	}
}

func TestGoogleTrendsRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL, 0)
	_, err := p.TrendingSearches(context.Background(), "US")
	if !errors.Is(err, errRateLimited) {
		t.Fatalf("expected rate limited error, got %v", err)
	}
}

func TestGoogleTrendsBlockPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>Our systems have detected unusual traffic from your computer network.</body></html>")
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL, 0)
	_, err := p.InterestOverTime(context.Background(), trends.ArtistQuery("Drake"))
	if !errors.Is(err, errBlocked) {
		t.Fatalf("expected blocked error, got %v", err)
	}
}

func TestGoogleTrendsTrendingFeedMentioningUnusualTraffic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<rss xmlns:ht="https://trends.google.com/trending/rss" version="2.0">
 <channel>
  <item><title>google detected unusual traffic outage</title><ht:approx_traffic>1000+</ht:approx_traffic></item>
 </channel>
</rss>`)
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL, 0)
	rows, err := p.TrendingSearches(context.Background(), "US")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].Columns[0] != "google detected unusual traffic outage" {
		t.Fatalf("unexpected rows %v", rows)
	}
}

func TestIsBlockPage(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		body        string
		want        bool
	}{
		{"html interstitial", "text/html; charset=UTF-8", "<html><body>detected unusual traffic</body></html>", true},
		{"doctype without content type", "", "  <!DOCTYPE html><p>/sorry/index</p>", true},
		{"plain html page", "text/html", "<html><body>explore</body></html>", false},
		{"rss feed", "text/xml", "<?xml version=\"1.0\"?><rss><title>unusual traffic</title></rss>", false},
		{"rss labelled html", "text/html", "<?xml version=\"1.0\"?><rss><title>unusual traffic</title></rss>", false},
		{"json", "application/json", `{"note":"unusual traffic"}`, false},
		{"empty", "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isBlockPage(tc.contentType, []byte(tc.body)); got != tc.want {
				t.Fatalf("isBlockPage(%q, %q) = %v, want %v", tc.contentType, tc.body, got, tc.want)
			}
		})
	}
}

func TestGoogleTrendsMissingWidget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `)]}'`+"\n"+`{"widgets":[]}`)
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL, 0)
	_, err := p.InterestOverTime(context.Background(), trends.ArtistQuery("Drake"))
	if err == nil || !strings.Contains(err.Error(), widgetTimeseries) {
		t.Fatalf("expected missing widget error, got %v", err)
	}
}

func TestDoRequestWithResilienceRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL, 1)
	p.httpCfg.Backoff.InitialInterval = 10 * time.Millisecond

	body, _, err := doRequestWithResilience(context.Background(), p.httpCfg, p.circuit, p.get("/", nil, false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != "ok" || calls.Load() != 2 {
		t.Fatalf("expected success on second attempt, got %q after %d calls", body, calls.Load())
	}
}

func TestDoRequestWithResilienceNoRetryByDefault(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL, 0)
	_, _, err := doRequestWithResilience(context.Background(), p.httpCfg, p.circuit, p.get("/", nil, false))
	if !errors.Is(err, errServerError) {
		t.Fatalf("expected server error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestTrimXSSI(t *testing.T) {
	cases := map[string]string{
		")]}'\n{\"a\":1}":  `{"a":1}`,
		")]}',\n{\"a\":1}": `{"a":1}`,
		`{"a":1}`:          `{"a":1}`,
	}
	for in, want := range cases {
		if got := string(trimXSSI([]byte(in))); got != want {
			t.Errorf("trimXSSI(%q) = %q, want %q", in, got, want)
		}
	}
}
