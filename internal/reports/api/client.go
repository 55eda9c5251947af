// Package api fetches report datasets from the dashboard REST API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sitereports/internal/core"
	applog "sitereports/internal/log"
	"sitereports/internal/reports"
)

// maxErrorBody caps how much of a failed response is kept in the error.
const maxErrorBody = 512

type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
}

var _ reports.Fetcher = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithToken sends "Authorization: Bearer <token>" on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// WithHTTPClient replaces the pooled default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse reports API URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("reports API URL must be http or https, got %q", u.Scheme)
	}
	c := &Client{baseURL: u, http: newHTTPClientWithPooling(timeout)}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// newHTTPClientWithPooling keeps connections to the API alive between tab switches.
func newHTTPClientWithPooling(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// RequestURL builds GET {base}/reports/{tab}. site_id and supervisor_id are
// omitted when the filter selects everything.
func (c *Client) RequestURL(tab core.Tab, f core.Filter) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/reports/" + url.PathEscape(string(tab))

	q := url.Values{}
	q.Set("start_date", f.StartDate.String())
	q.Set("end_date", f.EndDate.String())
	if !f.AllSites() {
		q.Set("site_id", f.Site)
	}
	if !f.AllSupervisors() {
		q.Set("supervisor_id", f.Supervisor)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Fetch retrieves and decodes one report. Every failure is a *reports.NetworkError.
func (c *Client) Fetch(ctx context.Context, tab core.Tab, f core.Filter) (core.Dataset, error) {
	ds, err := core.NewDataset(tab)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.RequestURL(tab, f), nil)
	if err != nil {
		return nil, &reports.NetworkError{Tab: tab, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &reports.NetworkError{Tab: tab, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &reports.NetworkError{Tab: tab, StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}

	if err := json.NewDecoder(resp.Body).Decode(ds); err != nil {
		return nil, &reports.NetworkError{Tab: tab, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}

	slog.DebugContext(ctx, "Report fetched from API",
		applog.FieldComponent, applog.ComponentReports,
		applog.FieldTab, tab,
		"status", resp.StatusCode,
		"duration", time.Since(start))
	return core.Deref(ds), nil
}
