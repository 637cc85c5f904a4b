// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

// Package fetch retrieves raw event records from external providers.
// One adapter per source tier: JSON APIs (GOLD), syndication feeds
// (SILVER) and listing pages, optionally rendered headlessly (BRONZE).
// All outbound traffic goes through the shared rate-limited HTTP
// client; adapters never talk to the network directly.
package fetch

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/cartelera-project/cartelera/internal/httpx"
	"github.com/cartelera-project/cartelera/internal/models"
	"github.com/cartelera-project/cartelera/internal/render"
	"github.com/cartelera-project/cartelera/internal/sources"
)

// RawRecord is one fetched item before normalization. API adapters
// carry the decoded JSON object for dotted-path mapping; feed and page
// adapters extract canonical field strings at fetch time.
type RawRecord struct {
	Item   map[string]any
	Fields map[string]string
}

// Adapter retrieves all raw records for one source. maxPages caps
// pagination; zero or negative means the adapter's own default.
type Adapter interface {
	Fetch(ctx context.Context, cfg *sources.SourceConfig, maxPages int) ([]RawRecord, error)
}

// Fetchers bundles the three tier adapters.
type Fetchers struct {
	api  *APIFetcher
	feed *FeedFetcher
	page *PageFetcher
}

// NewFetchers builds the adapter set on a shared HTTP client. The
// renderer may be nil when no rendering service is configured; BRONZE
// sources that need it will fail with ErrNotConfigured.
func NewFetchers(hc *httpx.Client, renderer *render.Client) *Fetchers {
	return &Fetchers{
		api:  NewAPI(hc),
		feed: NewFeed(hc),
		page: NewPage(hc, renderer, 0),
	}
}

// ForTier returns the adapter handling the given source tier.
func (f *Fetchers) ForTier(tier models.Tier) Adapter {
	switch tier {
	case models.TierSilver:
		return f.feed
	case models.TierBronze:
		return f.page
	default:
		return f.api
	}
}

// applySelectors runs each configured CSS selector against the scope
// and stores non-empty results under the canonical field key,
// overwriting whatever an earlier stage extracted.
func applySelectors(scope *goquery.Selection, selectors map[string]string, fields map[string]string) {
	for field, selector := range selectors {
		if v := extract(scope, selector); v != "" {
			fields[field] = v
		}
	}
}

// extract evaluates one selector against the scope. A "@name" suffix
// reads the attribute instead of the element text ("a@href",
// "time@datetime"); an empty base selector targets the scope itself.
func extract(scope *goquery.Selection, selector string) string {
	sel, attr := selector, ""
	if i := strings.LastIndex(selector, "@"); i >= 0 {
		sel, attr = selector[:i], selector[i+1:]
	}
	target := scope
	if sel != "" {
		target = scope.Find(sel).First()
	}
	if target.Length() == 0 {
		return ""
	}
	if attr != "" {
		return strings.TrimSpace(target.AttrOr(attr, ""))
	}
	return strings.TrimSpace(target.Text())
}

func put(fields map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		fields[key] = v
	}
}
