// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

package fetch

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/cartelera-project/cartelera/internal/httpx"
	"github.com/cartelera-project/cartelera/internal/logging"
	"github.com/cartelera-project/cartelera/internal/parse"
	"github.com/cartelera-project/cartelera/internal/render"
	"github.com/cartelera-project/cartelera/internal/sources"
)

const defaultRenderWait = 60 * time.Second

// PageFetcher scrapes BRONZE listing pages, through the headless
// rendering service for JS-heavy sites or as static HTML otherwise.
type PageFetcher struct {
	http       *httpx.Client
	renderer   *render.Client
	renderWait time.Duration
}

// NewPage creates the BRONZE adapter. renderWait is the base wait-for
// timeout handed to the rendering service; zero means 60s.
func NewPage(hc *httpx.Client, renderer *render.Client, renderWait time.Duration) *PageFetcher {
	if renderWait <= 0 {
		renderWait = defaultRenderWait
	}
	return &PageFetcher{http: hc, renderer: renderer, renderWait: renderWait}
}

// Fetch walks the listing pages, extracting one record per card. A
// listing page that fails aborts the source; an empty page past the
// first ends pagination. Detail pages, when configured, merge over the
// card fields and their failures only cost the extra fields.
func (f *PageFetcher) Fetch(ctx context.Context, cfg *sources.SourceConfig, maxPages int) ([]RawRecord, error) {
	if maxPages <= 0 {
		maxPages = 1
	}
	var out []RawRecord
	for page := 1; page <= maxPages; page++ {
		pageURL := cfg.ListingURL
		if page > 1 {
			var err error
			if pageURL, err = pagedURL(cfg.ListingURL, page); err != nil {
				return nil, err
			}
		}
		doc, err := f.listing(ctx, cfg, pageURL)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		cards := doc.Find(cfg.CardSelector)
		if cards.Length() == 0 {
			if page == 1 {
				return nil, fmt.Errorf("source %s: no cards matched %q on %s", cfg.Slug, cfg.CardSelector, pageURL)
			}
			break
		}
		recs := cardRecords(cfg, pageURL, cards)
		if cfg.FetchDetail {
			if err := f.mergeDetails(ctx, cfg, recs); err != nil {
				return nil, err
			}
		}
		logging.Debug().
			Str("source", cfg.Slug).
			Int("page", page).
			Int("cards", cards.Length()).
			Msg("listing page scraped")
		out = append(out, recs...)
	}
	return out, nil
}

// listing fetches one listing page as a parsed document. Rendered
// pages that come back without the awaited content are retried once
// with a doubled wait before the page counts as delivered.
func (f *PageFetcher) listing(ctx context.Context, cfg *sources.SourceConfig, pageURL string) (*goquery.Document, error) {
	if !cfg.Render {
		body, err := f.http.Get(ctx, pageURL, nil)
		if err != nil {
			return nil, err
		}
		return goquery.NewDocumentFromReader(bytes.NewReader(body))
	}

	doc, err := f.rendered(ctx, pageURL, cfg.WaitFor, f.renderWait)
	if err != nil {
		return nil, err
	}
	if complete(doc, cfg) {
		return doc, nil
	}
	logging.Debug().
		Str("source", cfg.Slug).
		Str("url", pageURL).
		Msg("partial render, retrying with doubled wait")
	return f.rendered(ctx, pageURL, cfg.WaitFor, 2*f.renderWait)
}

func (f *PageFetcher) rendered(ctx context.Context, pageURL, waitFor string, wait time.Duration) (*goquery.Document, error) {
	if !f.renderer.Configured() {
		return nil, render.ErrNotConfigured
	}
	res, err := f.renderer.Render(ctx, render.Request{URL: pageURL, WaitFor: waitFor, Timeout: wait})
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(res.HTML))
}

// complete reports whether a rendered listing contains the content the
// source is configured to wait for.
func complete(doc *goquery.Document, cfg *sources.SourceConfig) bool {
	if cfg.WaitFor != "" && doc.Find(cfg.WaitFor).Length() == 0 {
		return false
	}
	return doc.Find(cfg.CardSelector).Length() > 0
}

// cardRecords extracts the configured selectors from each card. Link
// and image URLs are absolutized against the listing page so detail
// fetches and downstream stages see full URLs.
func cardRecords(cfg *sources.SourceConfig, pageURL string, cards *goquery.Selection) []RawRecord {
	out := make([]RawRecord, 0, cards.Length())
	cards.Each(func(_ int, card *goquery.Selection) {
		fields := make(map[string]string, len(cfg.Selectors))
		applySelectors(card, cfg.Selectors, fields)
		if link := fields[sources.FieldExternalURL]; link != "" {
			fields[sources.FieldExternalURL] = parse.AbsoluteURL(pageURL, link)
		}
		if img := fields[sources.FieldImageURL]; img != "" {
			fields[sources.FieldImageURL] = parse.AbsoluteURL(pageURL, img)
		}
		out = append(out, RawRecord{Fields: fields})
	})
	return out
}

func (f *PageFetcher) mergeDetails(ctx context.Context, cfg *sources.SourceConfig, recs []RawRecord) error {
	for i := range recs {
		if err := ctx.Err(); err != nil {
			return err
		}
		pageURL := recs[i].Fields[sources.FieldExternalURL]
		if pageURL == "" {
			continue
		}
		doc, err := f.detail(ctx, cfg, pageURL)
		if err != nil {
			logging.Warn().Err(err).
				Str("source", cfg.Slug).
				Str("url", pageURL).
				Msg("detail failed, keeping listing fields")
			continue
		}
		applySelectors(doc.Selection, cfg.DetailSelectors, recs[i].Fields)
	}
	return nil
}

// detail fetches one event page, re-rendered for rendering sources.
// The wait-for selector applies only to listings, so details render
// without one.
func (f *PageFetcher) detail(ctx context.Context, cfg *sources.SourceConfig, pageURL string) (*goquery.Document, error) {
	if cfg.Render {
		return f.rendered(ctx, pageURL, "", f.renderWait)
	}
	body, err := f.http.Get(ctx, pageURL, nil)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

// pagedURL appends the page number to the listing URL, preserving any
// query it already carries.
func pagedURL(listing string, page int) (string, error) {
	u, err := url.Parse(listing)
	if err != nil {
		return "", fmt.Errorf("listing %q: %w", listing, err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
