// Package fetch retrieves raw records from upstream HTTP sources page by
// page. Pagination is opportunistic: the source's response shape selects the
// strategy, and a hard page ceiling bounds every window.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"polyflow/config"
	"polyflow/logger"
)

// Client fetches paginated windows from upstream sources. It is safe for
// concurrent use by independent streams.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Log
}

// NewClient builds a Client from the source configuration. The underlying
// HTTP client can be swapped through WithHTTPClient for tests.
func NewClient(cfg config.SourceConfig) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = rps
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     logger.GetLogger(),
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// Request describes one windowed fetch against a single endpoint.
type Request struct {
	URL      string
	Query    url.Values
	Start    time.Time
	End      time.Time
	PageSize int
	MaxPages int
}

// Window fetches every page of the requested window and returns the raw
// records in arrival order. Any transport error or non-2xx response aborts
// the whole call; the caller retries the window on its next cycle.
func (c *Client) Window(ctx context.Context, req Request) ([]map[string]interface{}, error) {
	if req.PageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive")
	}
	if req.MaxPages <= 0 {
		return nil, fmt.Errorf("max pages must be positive")
	}

	var records []map[string]interface{}
	state := Start()

	for pages := 0; pages < req.MaxPages; pages++ {
		if state.Kind == KindExhausted {
			break
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		page, err := c.getPage(ctx, req, state)
		if err != nil {
			return nil, err
		}

		records = append(records, page.Records...)
		state = Next(state, page, req.PageSize)
	}

	if state.Kind != KindExhausted {
		c.log.WithComponent("fetcher").WithFields(logger.Fields{
			"url":       req.URL,
			"max_pages": req.MaxPages,
		}).Warn("page ceiling reached before source was exhausted")
	}

	return records, nil
}

// Object fetches a single JSON object from the given endpoint. Non-object
// responses are treated as absent rather than failing, matching the
// best-effort posture of the windowed fetch.
func (c *Client) Object(ctx context.Context, rawURL string, query url.Values) (map[string]interface{}, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	for key, values := range query {
		for _, v := range values {
			q.Set(key, v)
		}
	}
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", "polyflow/1.0")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("HTTP error: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var object map[string]interface{}
	if err := json.Unmarshal(body, &object); err != nil {
		return nil, nil
	}
	return object, nil
}

func (c *Client) getPage(ctx context.Context, req Request, state PageState) (Page, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return Page{}, fmt.Errorf("parse url: %w", err)
	}

	q := u.Query()
	for key, values := range req.Query {
		for _, v := range values {
			q.Set(key, v)
		}
	}
	q.Set("limit", strconv.Itoa(req.PageSize))
	if !req.Start.IsZero() {
		q.Set("start_ts", req.Start.UTC().Format(time.RFC3339))
	}
	if !req.End.IsZero() {
		q.Set("end_ts", req.End.UTC().Format(time.RFC3339))
	}

	switch state.Kind {
	case KindCursor:
		q.Set("cursor", state.Cursor)
	case KindPage:
		q.Set("page", strconv.Itoa(state.Page))
	case KindOffset:
		q.Set("offset", strconv.Itoa(state.Offset))
	}
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Page{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", "polyflow/1.0")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Page{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return Page{}, fmt.Errorf("HTTP error: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Page{}, fmt.Errorf("failed to read response body: %w", err)
	}

	return ParsePage(body), nil
}
