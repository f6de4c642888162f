// Package geocode resolves addresses through the tracking server's
// ZONEGEOCODE page.
package geocode

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/samirrijal/trackzone/internal/core/domain"
)

const maxBodyBytes = 1 << 20

// Options configures a Client.
type Options struct {
	Endpoint   string
	Timeout    time.Duration
	RatePerSec float64
	Burst      int
	HTTPClient *http.Client
}

// Client implements ports.Geocoder over HTTP.
type Client struct {
	endpoint *url.URL
	timeout  time.Duration
	limiter  *rate.Limiter
	http     *http.Client
}

// NewClient creates a Client for the given endpoint.
func NewClient(opts Options) (*Client, error) {
	u, err := url.Parse(opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse geocode endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("geocode endpoint %q must be absolute", opts.Endpoint)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &Client{
		endpoint: u,
		timeout:  opts.Timeout,
		limiter:  rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.Burst),
		http:     opts.HTTPClient,
	}, nil
}

// Geocode looks up addr. A non-2xx status or an unusable body is reported
// as ok=false; err is reserved for transport failures and cancellation.
func (c *Client) Geocode(ctx context.Context, addr, country string) (domain.GeoPoint, bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.GeoPoint{}, false, fmt.Errorf("geocode rate limit: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(addr, country), nil)
	if err != nil {
		return domain.GeoPoint{}, false, fmt.Errorf("build geocode request: %w", err)
	}
	req.Header.Set("Accept", "application/xml, text/xml")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.GeoPoint{}, false, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.WarnContext(ctx, "geocode returned non-2xx", "status", resp.StatusCode, "addr", addr)
		_, _ = io.Copy(io.Discard, resp.Body)
		return domain.GeoPoint{}, false, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return domain.GeoPoint{}, false, fmt.Errorf("read geocode response: %w", err)
	}
	p, ok := Parse(body)
	return p, ok, nil
}

func (c *Client) requestURL(addr, country string) string {
	u := *c.endpoint
	q := u.Query()
	q.Set("page", "ZONEGEOCODE")
	q.Set("addr", addr)
	q.Set("country", country)
	// Defeats intermediary caches.
	q.Set("_uniq", strconv.FormatFloat(rand.Float64(), 'f', -1, 64))
	u.RawQuery = q.Encode()
	return u.String()
}
