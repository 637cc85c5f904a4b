// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/cartelera-project/cartelera/internal/httpx"
	"github.com/cartelera-project/cartelera/internal/logging"
	"github.com/cartelera-project/cartelera/internal/parse"
	"github.com/cartelera-project/cartelera/internal/sources"
)

const (
	defaultPageSize = 100
	// Cap for paginated APIs that report no total and never return a
	// short page.
	defaultMaxPages = 20
)

// APIFetcher pulls paginated JSON from GOLD sources.
type APIFetcher struct {
	http *httpx.Client
}

// NewAPI creates the GOLD adapter on the shared HTTP client.
func NewAPI(hc *httpx.Client) *APIFetcher {
	return &APIFetcher{http: hc}
}

// Fetch retrieves every page of the source's API per its pagination
// scheme. Pagination stops on a short page, on the reported total, or
// at maxPages. Any page error aborts the source.
func (f *APIFetcher) Fetch(ctx context.Context, cfg *sources.SourceConfig, maxPages int) ([]RawRecord, error) {
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	switch cfg.Pagination {
	case sources.PaginationOffset, sources.PaginationSocrata:
		return f.fetchOffset(ctx, cfg, maxPages)
	case sources.PaginationPage:
		return f.fetchPaged(ctx, cfg, maxPages)
	default:
		root, err := f.getPage(ctx, cfg.Endpoint)
		if err != nil {
			return nil, err
		}
		return records(parse.Items(root, cfg.ItemsPath)), nil
	}
}

// fetchOffset walks offset+limit pagination. The socrata variant is
// the same loop with $-prefixed parameter names. TotalPath, when
// configured, points at the reported total item count.
func (f *APIFetcher) fetchOffset(ctx context.Context, cfg *sources.SourceConfig, maxPages int) ([]RawRecord, error) {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	offsetParam, limitParam := "offset", "limit"
	if cfg.Pagination == sources.PaginationSocrata {
		offsetParam, limitParam = "$offset", "$limit"
	}

	var out []RawRecord
	total := -1
	for page := 0; page < maxPages; page++ {
		pageURL, err := queryURL(cfg.Endpoint, map[string]string{
			offsetParam: strconv.Itoa(page * pageSize),
			limitParam:  strconv.Itoa(pageSize),
		})
		if err != nil {
			return nil, err
		}
		root, err := f.getPage(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page+1, err)
		}
		items := parse.Items(root, cfg.ItemsPath)
		out = append(out, records(items)...)
		if total < 0 && cfg.TotalPath != "" {
			total = parse.Count(root, cfg.TotalPath)
		}
		logging.Debug().
			Str("source", cfg.Slug).
			Int("page", page+1).
			Int("items", len(items)).
			Int("total", total).
			Msg("api page fetched")
		if len(items) < pageSize {
			break
		}
		if total >= 0 && len(out) >= total {
			break
		}
	}
	return out, nil
}

// fetchPaged walks page-number pagination. TotalPath, when configured,
// points at the reported total page count.
func (f *APIFetcher) fetchPaged(ctx context.Context, cfg *sources.SourceConfig, maxPages int) ([]RawRecord, error) {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	var out []RawRecord
	totalPages := -1
	for page := 1; page <= maxPages; page++ {
		pageURL, err := queryURL(cfg.Endpoint, map[string]string{
			"page":     strconv.Itoa(page),
			"pageSize": strconv.Itoa(pageSize),
		})
		if err != nil {
			return nil, err
		}
		root, err := f.getPage(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		items := parse.Items(root, cfg.ItemsPath)
		if len(items) == 0 {
			break
		}
		out = append(out, records(items)...)
		if totalPages < 0 && cfg.TotalPath != "" {
			totalPages = parse.Count(root, cfg.TotalPath)
		}
		logging.Debug().
			Str("source", cfg.Slug).
			Int("page", page).
			Int("items", len(items)).
			Int("total_pages", totalPages).
			Msg("api page fetched")
		if totalPages >= 0 && page >= totalPages {
			break
		}
		if len(items) < pageSize {
			break
		}
	}
	return out, nil
}

func (f *APIFetcher) getPage(ctx context.Context, pageURL string) (any, error) {
	body, err := f.http.Get(ctx, pageURL, nil)
	if err != nil {
		return nil, err
	}
	var root any
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, fmt.Errorf("decode %s: %w", pageURL, err)
	}
	return root, nil
}

func records(items []map[string]any) []RawRecord {
	out := make([]RawRecord, 0, len(items))
	for _, item := range items {
		out = append(out, RawRecord{Item: item})
	}
	return out
}

// queryURL returns the endpoint with the given query parameters set,
// preserving any parameters already baked into it.
func queryURL(endpoint string, params map[string]string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("endpoint %q: %w", endpoint, err)
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
