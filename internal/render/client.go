// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

// Package render calls the headless rendering service that executes
// JavaScript-heavy listing pages and returns their settled HTML.
//
// The service is one shared process, so it sits behind a circuit
// breaker: three consecutive failures open the circuit for a minute
// and the remaining sources of the run fall back to static fetching
// or fail fast instead of queueing on a dead renderer.
package render

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/cartelera-project/cartelera/internal/config"
	"github.com/cartelera-project/cartelera/internal/httpx"
	"github.com/cartelera-project/cartelera/internal/logging"
)

// ErrNotConfigured is returned when no rendering service URL is set.
var ErrNotConfigured = errors.New("render: no base URL configured")

// Action types understood by the rendering service.
const (
	ActionClick    = "click"
	ActionWait     = "wait"
	ActionScroll   = "scroll"
	ActionType     = "type"
	ActionKeypress = "keypress"
)

// Request describes one rendering job. Headers are forwarded to the
// target site and actions run in order before the page is captured.
type Request struct {
	URL     string
	Formats []string // rendered formats to return, defaults to html
	WaitFor string   // CSS selector to await before capture
	Timeout time.Duration
	Headers map[string]string
	Actions []Action
}

// Action is one scripted browser step. Selector targets click and
// type, Milliseconds paces wait, Direction steers scroll, Text feeds
// type and Key names the keypress.
type Action struct {
	Type         string `json:"type"`
	Selector     string `json:"selector,omitempty"`
	Milliseconds int    `json:"milliseconds,omitempty"`
	Direction    string `json:"direction,omitempty"`
	Text         string `json:"text,omitempty"`
	Key          string `json:"key,omitempty"`
}

// Result is the rendered document in the requested formats.
type Result struct {
	Markdown string
	HTML     string
	Metadata map[string]any
}

// Client invokes the rendering service. Safe for concurrent use.
type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker[Result]
}

type renderRequest struct {
	URL     string            `json:"url"`
	Formats []string          `json:"formats"`
	WaitFor string            `json:"wait_for,omitempty"`
	Timeout int               `json:"timeout,omitempty"` // milliseconds
	Headers map[string]string `json:"headers,omitempty"`
	Actions []Action          `json:"actions,omitempty"`
}

type renderResponse struct {
	Markdown string         `json:"markdown"`
	HTML     string         `json:"html"`
	Metadata map[string]any `json:"metadata"`
	Error    string         `json:"error,omitempty"`
}

// New builds a render client. hc should carry the render timeout; the
// per-request wait budget is passed per call.
func New(cfg config.RenderConfig, hc *httpx.Client) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker[Result](gobreaker.Settings{
		Name:        "render-service",
		MaxRequests: 1,
		Interval:    2 * time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("render circuit state change")
		},
	})

	return &Client{
		http:    hc,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		timeout: timeout,
		cb:      cb,
	}
}

// Configured reports whether a rendering service is available.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

// Render submits req to the rendering service. An empty Formats asks
// for HTML only and a zero Timeout uses the configured default.
func (c *Client) Render(ctx context.Context, req Request) (Result, error) {
	if !c.Configured() {
		return Result{}, ErrNotConfigured
	}
	if len(req.Formats) == 0 {
		req.Formats = []string{"html"}
	}
	if req.Timeout <= 0 {
		req.Timeout = c.timeout
	}

	res, err := c.cb.Execute(func() (Result, error) {
		return c.render(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Result{}, fmt.Errorf("render service unavailable (circuit open): %w", err)
		}
		return Result{}, err
	}
	return res, nil
}

func (c *Client) render(ctx context.Context, req Request) (Result, error) {
	header := http.Header{}
	if c.apiKey != "" {
		header.Set("Authorization", "Bearer "+c.apiKey)
	}

	wire := renderRequest{
		URL:     req.URL,
		Formats: req.Formats,
		WaitFor: req.WaitFor,
		Timeout: int(req.Timeout / time.Millisecond),
		Headers: req.Headers,
		Actions: req.Actions,
	}
	var resp renderResponse
	if err := c.http.PostJSON(ctx, c.baseURL+"/render", header, wire, &resp); err != nil {
		return Result{}, fmt.Errorf("render %s: %w", req.URL, err)
	}
	if resp.Error != "" {
		return Result{}, fmt.Errorf("render %s: service error: %s", req.URL, resp.Error)
	}
	if resp.Markdown == "" && resp.HTML == "" {
		return Result{}, fmt.Errorf("render %s: empty document", req.URL)
	}
	return Result{Markdown: resp.Markdown, HTML: resp.HTML, Metadata: resp.Metadata}, nil
}
