// Package tfl wraps the transit provider's REST API: line route sequences,
// radius stop-point search, timetables and the journey planner. Calls are
// rate limited per endpoint family, retried with backoff, and sequence and
// timetable responses are written through a local content-addressed cache.
package tfl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/midpoint-labs/midpoint/pkg/metrics"
	"github.com/midpoint-labs/midpoint/pkg/retry"
)

// Family identifies an endpoint family for rate limiting and metrics.
type Family string

const (
	FamilySequence  Family = "sequence"
	FamilyStopPoint Family = "stoppoint"
	FamilyTimetable Family = "timetable"
	FamilyJourney   Family = "journey"
)

const (
	defaultBaseURL          = "https://api.tfl.gov.uk"
	defaultSequenceTimeout  = 15 * time.Second
	defaultStopPointTimeout = 15 * time.Second
	defaultTimetableTimeout = 15 * time.Second
	defaultJourneyTimeout   = 30 * time.Second

	maxResponseBytes = 32 << 20
)

// Limit is the token-bucket setting for one endpoint family.
type Limit struct {
	RPS   float64
	Burst int
}

// Config holds provider client configuration.
type Config struct {
	Logger   *slog.Logger
	APIKey   string
	BaseURL  string
	CacheDir string // empty disables response caching
	Clock    clockwork.Clock
	Retry    retry.Config
	Limits   map[Family]Limit // optional per-family overrides
	Metrics  *metrics.Metrics
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("api key is required")
	}
	return nil
}

// Client is a provider API client. Safe for concurrent use.
type Client struct {
	log      *slog.Logger
	cfg      Config
	baseURL  string
	http     *http.Client
	limiters map[Family]*rate.Limiter
	cache    *Cache
}

// New builds a client from the configuration.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid provider config: %w", err)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}

	limiters := make(map[Family]*rate.Limiter)
	for _, f := range []Family{FamilySequence, FamilyStopPoint, FamilyTimetable, FamilyJourney} {
		l := Limit{RPS: 5, Burst: 5}
		if override, ok := cfg.Limits[f]; ok && override.RPS > 0 {
			l = override
			if l.Burst <= 0 {
				l.Burst = 1
			}
		}
		limiters[f] = rate.NewLimiter(rate.Limit(l.RPS), l.Burst)
	}

	var cache *Cache
	if cfg.CacheDir != "" {
		var err error
		cache, err = NewCache(cfg.CacheDir, cfg.Clock)
		if err != nil {
			return nil, fmt.Errorf("opening response cache: %w", err)
		}
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}

	return &Client{
		log:      cfg.Logger,
		cfg:      cfg,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		http:     &http.Client{Transport: transport},
		limiters: limiters,
		cache:    cache,
	}, nil
}

// LinesForModes lists the lines serving the given modes.
func (c *Client) LinesForModes(ctx context.Context, modes []string) ([]Line, error) {
	u := fmt.Sprintf("%s/Line/Mode/%s", c.baseURL, url.PathEscape(strings.Join(modes, ",")))
	body, err := c.get(ctx, FamilySequence, u, true, defaultSequenceTimeout)
	if err != nil {
		return nil, fmt.Errorf("listing lines for modes %v: %w", modes, err)
	}
	var lines []Line
	if err := json.Unmarshal(body, &lines); err != nil {
		return nil, fmt.Errorf("decoding line list: %w", err)
	}
	return lines, nil
}

// RouteSequence fetches the ordered stop sequence of a line in one
// direction ("inbound" or "outbound").
func (c *Client) RouteSequence(ctx context.Context, lineID, direction string) (*RouteSequence, error) {
	u := fmt.Sprintf("%s/Line/%s/Route/Sequence/%s",
		c.baseURL, url.PathEscape(lineID), url.PathEscape(direction))
	body, err := c.get(ctx, FamilySequence, u, true, defaultSequenceTimeout)
	if err != nil {
		return nil, fmt.Errorf("fetching %s %s route sequence: %w", lineID, direction, err)
	}
	var seq RouteSequence
	if err := json.Unmarshal(body, &seq); err != nil {
		return nil, fmt.Errorf("decoding %s route sequence: %w", lineID, err)
	}
	return &seq, nil
}

// StopsNear searches for rail and metro stop points within radiusM metres.
// The provider occasionally returns stops outside the radius; callers filter.
func (c *Client) StopsNear(ctx context.Context, lat, lon float64, radiusM int) ([]StopPoint, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("radius", strconv.Itoa(radiusM))
	q.Set("stopTypes", "NaptanMetroStation,NaptanRailStation")
	u := fmt.Sprintf("%s/StopPoint?%s", c.baseURL, q.Encode())

	body, err := c.get(ctx, FamilyStopPoint, u, false, defaultStopPointTimeout)
	if err != nil {
		return nil, fmt.Errorf("searching stops near (%f, %f): %w", lat, lon, err)
	}
	var search stopPointSearch
	if err := json.Unmarshal(body, &search); err != nil {
		return nil, fmt.Errorf("decoding stop point search: %w", err)
	}
	return search.StopPoints, nil
}

// Timetable fetches the schedule of a line departing from one stop.
func (c *Client) Timetable(ctx context.Context, lineID, fromStopID string) (*TimetableResponse, error) {
	u := fmt.Sprintf("%s/Line/%s/Timetable/%s",
		c.baseURL, url.PathEscape(lineID), url.PathEscape(fromStopID))
	body, err := c.get(ctx, FamilyTimetable, u, true, defaultTimetableTimeout)
	if err != nil {
		return nil, fmt.Errorf("fetching %s timetable from %s: %w", lineID, fromStopID, err)
	}
	var tt TimetableResponse
	if err := json.Unmarshal(body, &tt); err != nil {
		return nil, fmt.Errorf("decoding %s timetable: %w", lineID, err)
	}
	return &tt, nil
}

// TimetableBetween fetches the schedule of a line between two specific
// stops. Used for segments the terminal-rooted timetables do not cover.
func (c *Client) TimetableBetween(ctx context.Context, lineID, fromStopID, toStopID string) (*TimetableResponse, error) {
	u := fmt.Sprintf("%s/Line/%s/Timetable/%s/to/%s",
		c.baseURL, url.PathEscape(lineID), url.PathEscape(fromStopID), url.PathEscape(toStopID))
	body, err := c.get(ctx, FamilyTimetable, u, true, defaultTimetableTimeout)
	if err != nil {
		return nil, fmt.Errorf("fetching %s timetable %s -> %s: %w", lineID, fromStopID, toStopID, err)
	}
	var tt TimetableResponse
	if err := json.Unmarshal(body, &tt); err != nil {
		return nil, fmt.Errorf("decoding %s timetable: %w", lineID, err)
	}
	return &tt, nil
}

// PlanJourneys asks the journey planner for routes between two stop points.
// Returns ErrNoJourney when the planner finds none.
func (c *Client) PlanJourneys(ctx context.Context, from, to string, opts JourneyOptions) ([]Journey, error) {
	q := url.Values{}
	if opts.Mode != "" {
		q.Set("mode", opts.Mode)
	}
	if opts.Date != "" {
		q.Set("date", opts.Date)
	}
	if opts.Time != "" {
		q.Set("time", opts.Time)
	}
	if opts.Preference != "" {
		q.Set("journeyPreference", opts.Preference)
	}
	u := fmt.Sprintf("%s/Journey/JourneyResults/%s/to/%s",
		c.baseURL, url.PathEscape(from), url.PathEscape(to))
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}

	body, err := c.get(ctx, FamilyJourney, u, false, defaultJourneyTimeout)
	if err != nil {
		return nil, fmt.Errorf("planning journey %s -> %s: %w", from, to, err)
	}
	var results journeyResults
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("decoding journey results: %w", err)
	}
	if len(results.Journeys) == 0 {
		return nil, fmt.Errorf("journey %s -> %s: %w", from, to, ErrNoJourney)
	}
	return results.Journeys, nil
}

// JourneyDuration returns the fastest journey's duration in minutes.
func (c *Client) JourneyDuration(ctx context.Context, from, to string, opts JourneyOptions) (float64, error) {
	journeys, err := c.PlanJourneys(ctx, from, to, opts)
	if err != nil {
		return 0, err
	}
	best := journeys[0].Duration
	for _, j := range journeys[1:] {
		if j.Duration < best {
			best = j.Duration
		}
	}
	return float64(best), nil
}

// get performs a rate-limited, retried GET. The URL must not contain
// credentials; the API key is attached per attempt so cache keys stay
// stable across key rotation.
func (c *Client) get(ctx context.Context, family Family, rawURL string, cacheable bool, timeout time.Duration) ([]byte, error) {
	reqID := CacheKey(rawURL)[:8]
	log := c.log.With("request_id", reqID, "family", string(family))

	if cacheable && c.cache != nil {
		if body, ok := c.cache.Get(rawURL); ok {
			log.Debug("provider response served from cache")
			c.cfg.Metrics.IncCacheHit(string(family))
			return body, nil
		}
	}

	if err := c.limiters[family].Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limit: %w", err)
	}

	var body []byte
	attempt := 0
	err := retry.Do(ctx, c.cfg.Retry, func() error {
		attempt++
		if attempt > 1 {
			log.Debug("retrying provider request", "attempt", attempt)
			c.cfg.Metrics.IncProviderRetry(string(family))
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		u := rawURL
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + "app_key=" + url.QueryEscape(c.cfg.APIKey)

		req, err := http.NewRequestWithContext(callCtx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("executing request: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			body = data
			return nil
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return fmt.Errorf("status %d: %w", resp.StatusCode, ErrAuth)
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("status %d: %w", resp.StatusCode, ErrNotFound)
		case resp.StatusCode == http.StatusMultipleChoices:
			// The journey planner answers 300 when an endpoint is
			// ambiguous; there is no resolvable journey for us.
			return fmt.Errorf("status %d: %w", resp.StatusCode, ErrNoJourney)
		default:
			return &apiError{statusCode: resp.StatusCode, url: rawURL}
		}
	})
	if err != nil {
		log.Debug("provider request failed", "error", err)
		c.cfg.Metrics.IncProviderRequest(string(family), "error")
		return nil, err
	}

	c.cfg.Metrics.IncProviderRequest(string(family), "ok")
	if cacheable && c.cache != nil {
		if err := c.cache.Put(rawURL, body); err != nil {
			log.Warn("failed to cache provider response", "error", err)
		}
	}
	return body, nil
}
