// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package edgar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"
)

const (
	// DefaultDataURL serves the XBRL company facts API.
	DefaultDataURL = "https://data.sec.gov"

	// DefaultTickersURL lists every registrant's ticker and CIK.
	DefaultTickersURL = "https://www.sec.gov/files/company_tickers.json"

	// DefaultArchivesURL is the root of the filing archive, used for citations.
	DefaultArchivesURL = "https://www.sec.gov/Archives/edgar/data"

	// DefaultRequestsPerSecond is the SEC fair-access ceiling.
	DefaultRequestsPerSecond = 10

	maxBodyBytes = 64 << 20
)

// HTTPClient allows injecting mock HTTP clients for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig configures the EDGAR transport.
type ClientConfig struct {
	// UserAgent identifies the caller. SEC rejects anonymous traffic, so
	// it should name the application and a contact address.
	UserAgent string

	DataURL    string
	TickersURL string

	// RequestsPerSecond throttles every outgoing request.
	RequestsPerSecond float64

	// MaxRetries is the number of extra attempts after a 429, a 5xx or a
	// network error.
	MaxRetries uint

	// RetryInitialInterval is the first backoff delay.
	RetryInitialInterval time.Duration

	// Timeout bounds one HTTP attempt when the default client is used.
	Timeout time.Duration
}

// DefaultClientConfig returns production settings for userAgent.
func DefaultClientConfig(userAgent string) ClientConfig {
	return ClientConfig{
		UserAgent:            userAgent,
		DataURL:              DefaultDataURL,
		TickersURL:           DefaultTickersURL,
		RequestsPerSecond:    DefaultRequestsPerSecond,
		MaxRetries:           3,
		RetryInitialInterval: 500 * time.Millisecond,
		Timeout:              30 * time.Second,
	}
}

// Client fetches JSON documents from EDGAR.
//
// Every attempt waits on a shared token bucket. Rate-limit responses,
// server errors and network failures are retried with exponential
// backoff; other statuses fail at once.
//
// Thread Safety: safe for concurrent use.
type Client struct {
	http    HTTPClient
	cfg     ClientConfig
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates a client. A nil httpClient uses an http.Client with
// cfg.Timeout; a nil logger uses slog.Default().
func NewClient(cfg ClientConfig, httpClient HTTPClient, logger *slog.Logger) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("%w: user agent is required by SEC fair-access policy", ErrInvalidRequest)
	}
	def := DefaultClientConfig(cfg.UserAgent)
	if cfg.DataURL == "" {
		cfg.DataURL = def.DataURL
	}
	if cfg.TickersURL == "" {
		cfg.TickersURL = def.TickersURL
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = def.RetryInitialInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:    httpClient,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:  logger,
	}, nil
}

// getJSON fetches url and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.cfg.RetryInitialInterval

	attempt := 0
	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		attempt++
		b, err := c.fetch(ctx, url)
		if err != nil && !isRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		if err != nil {
			c.logger.Debug("edgar request failed, retrying",
				slog.String("url", url),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
		}
		return b, err
	}, backoff.WithBackOff(exp), backoff.WithMaxTries(c.cfg.MaxRetries+1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return fmt.Errorf("fetch %s: %w", url, ctxErr)
		}
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUpstream, url, err)
	}
	return nil
}

// fetch performs one throttled GET.
func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUpstream, err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("%w: read body: %v", ErrUpstream, err)
		}
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: url, Err: errNotFoundStatus}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: url, Err: ErrRateLimited}
	default:
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: url, Err: ErrUpstream}
	}
}

// errNotFoundStatus marks a 404 before the gateway decides which
// not-found sentinel it means.
var errNotFoundStatus = errors.New("not found")

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return errors.Is(err, ErrUpstream)
}
