// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

// Package httpx is the shared outbound HTTP layer: per-domain rate
// limiting, bounded retries with jittered exponential backoff, and
// Retry-After handling for HTTP 429.
//
// Retry policy: transport errors, timeouts, 429 and 500/502/503/504
// are retried up to the configured attempt count. Any other 4xx fails
// immediately. 429, 403 and transport errors additionally raise the
// domain's backoff level; 2xx lowers it.
package httpx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/cartelera-project/cartelera/internal/config"
	"github.com/cartelera-project/cartelera/internal/logging"
	"github.com/cartelera-project/cartelera/internal/metrics"
	"github.com/cartelera-project/cartelera/internal/ratelimit"
)

// Client is a resilient HTTP client. A nil limiter disables domain
// rate limiting (used for auxiliary services with their own policies).
// Safe for concurrent use.
type Client struct {
	hc      *http.Client
	limiter *ratelimit.Limiter
	retry   config.RetryConfig
	ua      string

	randMu sync.Mutex
	rng    *rand.Rand
}

// New builds a client with the given per-request timeout. Zero retry
// fields fall back to 3 attempts, 1s initial delay, 30s max.
func New(timeout time.Duration, ua string, retry config.RetryConfig, limiter *ratelimit.Limiter) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if retry.Attempts <= 0 {
		retry.Attempts = 3
	}
	if retry.InitialDelay <= 0 {
		retry.InitialDelay = time.Second
	}
	if retry.MaxDelay < retry.InitialDelay {
		retry.MaxDelay = 30 * time.Second
	}

	return &Client{
		hc:      &http.Client{Timeout: timeout},
		limiter: limiter,
		retry:   retry,
		ua:      ua,
		//nolint:gosec // G404: weak random is fine for retry jitter
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Get issues a GET and returns the full response body. extra headers
// may be nil.
func (c *Client) Get(ctx context.Context, reqURL string, extra http.Header) ([]byte, error) {
	resp, err := c.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
		if err != nil {
			return nil, err
		}
		applyHeader(req, extra)
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body from %s: %w", reqURL, err)
	}
	return body, nil
}

// GetJSON issues a GET and decodes the response body into out.
func (c *Client) GetJSON(ctx context.Context, reqURL string, extra http.Header, out any) error {
	body, err := c.Get(ctx, reqURL, extra)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode JSON from %s: %w", reqURL, err)
	}
	return nil
}

// PostJSON issues a POST with a JSON payload and, when out is non-nil,
// decodes the response into it. The payload is re-encoded per attempt.
func (c *Client) PostJSON(ctx context.Context, reqURL string, extra http.Header, payload, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request payload for %s: %w", reqURL, err)
	}

	resp, err := c.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		applyHeader(req, extra)
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body from %s: %w", reqURL, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode JSON from %s: %w", reqURL, err)
	}
	return nil
}

// Do runs the retry loop around requests produced by build. build is
// called once per attempt so request bodies are fresh each time. On
// success the caller owns resp.Body.
func (c *Client) Do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt < c.retry.Attempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		req, err := build(ctx)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		if c.ua != "" && req.Header.Get("User-Agent") == "" {
			req.Header.Set("User-Agent", c.ua)
		}
		domain := req.URL.Hostname()

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx, domain); err != nil {
				return nil, err
			}
		}
		if attempt > 0 {
			metrics.RecordHTTPRetry(domain)
		}

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			metrics.RecordHTTPTransportError(domain, time.Since(start))
			c.recordFailure(domain)
			lastErr = fmt.Errorf("request %s: %w", req.URL.Redacted(), err)
			if ctx.Err() != nil {
				return nil, lastErr
			}
			if attempt < c.retry.Attempts-1 {
				if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
					return nil, err
				}
			}
			continue
		}

		metrics.RecordHTTPRequest(domain, resp.StatusCode, time.Since(start))

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			c.recordSuccess(domain)
			return resp, nil
		}

		body := readBodyForError(resp.Body)
		_ = resp.Body.Close()
		statusErr := &StatusError{StatusCode: resp.StatusCode, URL: req.URL.Redacted(), Body: body}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden {
			c.recordFailure(domain)
		}
		if !retryableStatus(resp.StatusCode) {
			return nil, statusErr
		}

		lastErr = statusErr
		if attempt == c.retry.Attempts-1 {
			break
		}

		delay := c.backoff(attempt)
		if resp.StatusCode == http.StatusTooManyRequests {
			if ra := parseRetryAfter(resp.Header.Get("Retry-After")); ra > delay {
				delay = ra
			}
			if c.limiter != nil {
				c.limiter.Penalize(domain, delay)
			}
		}
		logging.Debug().
			Str("domain", domain).
			Int("status", resp.StatusCode).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("retrying request")
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

func (c *Client) recordSuccess(domain string) {
	if c.limiter == nil {
		return
	}
	c.limiter.RecordSuccess(domain)
	metrics.SetBackoffLevel(domain, c.limiter.Level(domain))
}

func (c *Client) recordFailure(domain string) {
	if c.limiter == nil {
		return
	}
	c.limiter.RecordFailure(domain)
	metrics.SetBackoffLevel(domain, c.limiter.Level(domain))
}

// backoff computes the jittered delay before retry attempt+1.
func (c *Client) backoff(attempt int) time.Duration {
	d := float64(c.retry.InitialDelay) * math.Pow(2, float64(attempt))
	if d > float64(c.retry.MaxDelay) {
		d = float64(c.retry.MaxDelay)
	}

	var jitter float64
	if c.retry.Jitter > 0 {
		c.randMu.Lock()
		jitter = c.rng.Float64() * float64(c.retry.Jitter)
		c.randMu.Unlock()
	}
	return time.Duration(d + jitter)
}

// sleep waits d or until ctx is done.
func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func applyHeader(req *http.Request, extra http.Header) {
	for k, values := range extra {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
}
