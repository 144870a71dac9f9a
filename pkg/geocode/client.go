// Package geocode looks up campus lot coordinates through the Places
// text-search API. It exists to backfill the static lot table when a
// shapefile import leaves entries without coordinates.
package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/slugwatch/citation-cli/internal/config"
	"github.com/slugwatch/citation-cli/internal/model"
	"github.com/slugwatch/citation-cli/internal/resilience"
)

// Client queries the Places findplacefromtext endpoint with a shared rate
// limiter. The API's terms cap request rates, so the limiter is not
// optional.
type Client struct {
	key        string
	baseURL    string
	hint       string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New builds a Client from config. RatePerSec defaults to 10.
func New(cfg config.GeocodeConfig) *Client {
	perSec := cfg.RatePerSec
	if perSec <= 0 {
		perSec = 10
	}
	return &Client{
		key:        cfg.Key,
		baseURL:    cfg.BaseURL,
		hint:       cfg.Hint,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(perSec), 1),
	}
}

type placesResponse struct {
	Candidates []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"candidates"`
	Status string `json:"status"`
}

// Lookup resolves a lot name to a coordinate. The configured hint (campus
// name and town) is appended to disambiguate short lot names. A clean
// no-match returns ok=false with no error.
func (c *Client) Lookup(ctx context.Context, name string) (model.Coordinate, bool, error) {
	if c.key == "" {
		return model.Coordinate{}, false, eris.New("geocode: api key not configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return model.Coordinate{}, false, eris.Wrap(err, "geocode: rate limit")
	}

	query := name
	if c.hint != "" {
		query = name + " " + c.hint
	}
	params := url.Values{
		"input":     {query},
		"inputtype": {"textquery"},
		"fields":    {"geometry"},
		"key":       {c.key},
	}

	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("places", "findplacefromtext")
	m, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (coordMatch, error) {
		return c.lookup(ctx, c.baseURL+"?"+params.Encode())
	})
	if err != nil {
		return model.Coordinate{}, false, err
	}
	return m.coord, m.ok, nil
}

// coordMatch bundles the retried lookup's result so Lookup keeps its
// three-value signature.
type coordMatch struct {
	coord model.Coordinate
	ok    bool
}

func (c *Client) lookup(ctx context.Context, reqURL string) (coordMatch, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return coordMatch{}, eris.Wrap(err, "geocode: build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return coordMatch{}, eris.Wrap(err, "geocode: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return coordMatch{}, resilience.NewTransientError(
			eris.Errorf("geocode: status %d", resp.StatusCode), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return coordMatch{}, eris.Errorf("geocode: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return coordMatch{}, eris.Wrap(err, "geocode: read body")
	}

	var parsed placesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return coordMatch{}, eris.Wrap(err, "geocode: parse response")
	}
	if parsed.Status != "OK" || len(parsed.Candidates) == 0 {
		return coordMatch{ok: false}, nil
	}

	loc := parsed.Candidates[0].Geometry.Location
	return coordMatch{coord: model.Coordinate{Lat: loc.Lat, Lng: loc.Lng}, ok: true}, nil
}
