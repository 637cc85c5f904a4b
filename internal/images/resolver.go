// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

// Package images guarantees every event surfaces an image URL. The
// cascade keeps source-provided images, then queries the search
// providers with the enricher's keywords, then falls back to a curated
// set indexed by primary category. A persistent usage cache spreads
// assignments across results instead of handing every event the
// provider's top hit.
package images

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/cartelera-project/cartelera/internal/config"
	"github.com/cartelera-project/cartelera/internal/httpx"
	"github.com/cartelera-project/cartelera/internal/logging"
	"github.com/cartelera-project/cartelera/internal/metrics"
	"github.com/cartelera-project/cartelera/internal/models"
)

const (
	defaultPerPage    = 10
	defaultRandomPool = 5
)

// Resolver fills missing event images.
type Resolver struct {
	providers []provider
	cache     *usageCache
	perPage   int
	pool      int

	randMu sync.Mutex
	rng    *rand.Rand
}

// New builds the resolver. Providers without a configured key are
// skipped; with no keys at all only the curated fallback runs.
func New(cfg config.ImagesConfig, hc *httpx.Client) *Resolver {
	if cfg.PerPage <= 0 {
		cfg.PerPage = defaultPerPage
	}
	if cfg.RandomPool <= 0 {
		cfg.RandomPool = defaultRandomPool
	}

	r := &Resolver{
		cache:   openUsageCache(cfg.CachePath),
		perPage: cfg.PerPage,
		pool:    cfg.RandomPool,
		//nolint:gosec // G404: weak random is fine for picking stock photos
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if cfg.UnsplashKey != "" {
		r.providers = append(r.providers, &unsplashProvider{http: hc, key: cfg.UnsplashKey, baseURL: unsplashSearchURL})
	}
	if cfg.PexelsKey != "" {
		r.providers = append(r.providers, &pexelsProvider{http: hc, key: cfg.PexelsKey, baseURL: pexelsSearchURL})
	}
	return r
}

// Fill assigns ev.ImageURL. Source-provided images are kept untouched;
// provider failures degrade down the cascade. A non-nil error means
// the context was canceled.
func (r *Resolver) Fill(ctx context.Context, ev *models.Event, keywords []string) error {
	if ev.SourceImageURL != nil && *ev.SourceImageURL != "" {
		if ev.ImageURL == nil || *ev.ImageURL == "" {
			ev.ImageURL = ev.SourceImageURL
		}
		metrics.ImagesResolved.WithLabelValues("source").Inc()
		return nil
	}
	if ev.ImageURL != nil && *ev.ImageURL != "" {
		metrics.ImagesResolved.WithLabelValues("source").Inc()
		return nil
	}

	if query := strings.TrimSpace(strings.Join(keywords, " ")); query != "" {
		key := queryKey(keywords)
		for _, p := range r.providers {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			photos, err := p.search(ctx, query, r.perPage)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logging.Warn().Err(err).
					Str("provider", p.name()).
					Str("query", query).
					Msg("image search failed")
				continue
			}
			if len(photos) == 0 {
				continue
			}
			photo := r.choose(photos, key)
			assign(ev, photo)
			r.cache.markUsed(photo.URL)
			metrics.ImagesResolved.WithLabelValues(p.name()).Inc()
			return nil
		}
	}

	r.fillCurated(ev)
	return nil
}

// Flush persists the usage cache; call once per run.
func (r *Resolver) Flush() error {
	return r.cache.save()
}

// choose picks among the first pool results, preferring URLs the cache
// has not handed out yet; only an exhausted pool reuses one. The whole
// pool is remembered against the query key either way.
func (r *Resolver) choose(photos []Photo, key string) Photo {
	pool := photos
	if len(pool) > r.pool {
		pool = pool[:r.pool]
	}
	urls := make([]string, len(pool))
	for i, p := range pool {
		urls[i] = p.URL
	}
	r.cache.remember(key, urls)

	fresh := make([]Photo, 0, len(pool))
	for _, p := range pool {
		if !r.cache.isUsed(p.URL) {
			fresh = append(fresh, p)
		}
	}
	candidates := fresh
	if len(candidates) == 0 {
		candidates = pool
	}
	return candidates[r.intn(len(candidates))]
}

func (r *Resolver) fillCurated(ev *models.Event) {
	urls := curated[ev.PrimaryCategory()]
	if len(urls) == 0 {
		urls = curated["other"]
	}

	fresh := make([]string, 0, len(urls))
	for _, u := range urls {
		if !r.cache.isUsed(u) {
			fresh = append(fresh, u)
		}
	}
	candidates := fresh
	if len(candidates) == 0 {
		candidates = urls
	}
	chosen := candidates[r.intn(len(candidates))]
	ev.ImageURL = &chosen
	r.cache.markUsed(chosen)
	metrics.ImagesResolved.WithLabelValues("curated").Inc()
}

func assign(ev *models.Event, photo Photo) {
	u := photo.URL
	ev.ImageURL = &u
	if photo.Author != "" {
		author := photo.Author
		ev.ImageAuthor = &author
	}
	if photo.SourceURL != "" {
		src := photo.SourceURL
		ev.ImageSourceURL = &src
	}
}

func (r *Resolver) intn(n int) int {
	if n <= 1 {
		return 0
	}
	r.randMu.Lock()
	defer r.randMu.Unlock()
	return r.rng.Intn(n)
}
