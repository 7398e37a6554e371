package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/chromatic/internal/export"
	"github.com/banshee-data/chromatic/internal/httputil"
)

// Client talks to a running chromatic server.
type Client struct {
	BaseURL string
	HTTP    httputil.HTTPClient
}

// NewClient returns a client for baseURL (e.g. "http://localhost:8080").
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    httputil.NewStandardClient(30 * time.Second),
	}
}

// SimulateParams are the optional query parameters of POST /api/rainbows.
// Zero values are left to the server's configuration.
type SimulateParams struct {
	SignalToNoise float64
	Dt            float64
	DtUnit        string
	R             float64
	Seed          *int64
}

func (p SimulateParams) query() url.Values {
	q := url.Values{}
	setFloat := func(name string, v float64) {
		if v != 0 {
			q.Set(name, strconv.FormatFloat(v, 'g', -1, 64))
		}
	}
	setFloat("snr", p.SignalToNoise)
	setFloat("dt", p.Dt)
	setFloat("R", p.R)
	if p.DtUnit != "" {
		q.Set("dt_unit", p.DtUnit)
	}
	if p.Seed != nil {
		q.Set("seed", strconv.FormatInt(*p.Seed, 10))
	}
	return q
}

func (c *Client) url(path string, q url.Values) string {
	u := c.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// Simulate asks the server to build and register a new rainbow.
func (c *Client) Simulate(ctx context.Context, p SimulateParams) (export.Summary, error) {
	var out export.Summary
	err := httputil.FetchJSON(ctx, c.HTTP, http.MethodPost, c.url("/api/rainbows", p.query()), &out)
	return out, err
}

// List returns the summaries of the server's registered rainbows.
func (c *Client) List(ctx context.Context) ([]export.Summary, error) {
	var out []export.Summary
	err := httputil.FetchJSON(ctx, c.HTTP, http.MethodGet, c.url("/api/rainbows", nil), &out)
	return out, err
}

// TableCSV downloads the flattened table of a rainbow as CSV.
func (c *Client) TableCSV(ctx context.Context, id, timeFormat string) ([]byte, error) {
	q := url.Values{"format": {"csv"}}
	if timeFormat != "" {
		q.Set("timeformat", timeFormat)
	}
	return httputil.Fetch(ctx, c.HTTP, http.MethodGet, c.url("/api/rainbows/"+url.PathEscape(id)+"/table", q), nil)
}

// Arrays downloads the raw-array export of a rainbow.
func (c *Client) Arrays(ctx context.Context, id, timeFormat string) (export.ArraysDocument, error) {
	q := url.Values{}
	if timeFormat != "" {
		q.Set("timeformat", timeFormat)
	}
	var out export.ArraysDocument
	err := httputil.FetchJSON(ctx, c.HTTP, http.MethodGet, c.url("/api/rainbows/"+url.PathEscape(id)+"/arrays", q), &out)
	if err != nil {
		return out, fmt.Errorf("fetch arrays %s: %w", id, err)
	}
	return out, nil
}
