// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

// Package geo resolves event locations. Forward geocoding goes through
// a Nominatim-compatible endpoint restricted to Spain with a dedicated
// politeness limiter; a bundled province/municipality registry keeps
// source-declared regions honest without a network call.
package geo

import (
	"context"
	"strings"
	"sync"

	"github.com/cartelera-project/cartelera/internal/config"
	"github.com/cartelera-project/cartelera/internal/httpx"
	"github.com/cartelera-project/cartelera/internal/logging"
	"github.com/cartelera-project/cartelera/internal/metrics"
	"github.com/cartelera-project/cartelera/internal/models"
	"github.com/cartelera-project/cartelera/internal/parse"
)

// typeBoost nudges confidence for place types that pin down a cultural
// venue better than a street or municipality centroid.
var typeBoost = map[string]float64{
	"theatre":          0.25,
	"museum":           0.25,
	"arts_centre":      0.25,
	"library":          0.20,
	"gallery":          0.20,
	"community_centre": 0.15,
	"attraction":       0.10,
	"castle":           0.10,
	"monument":         0.10,
}

// Geocoder fills event coordinates and administrative fields.
type Geocoder struct {
	client *Client

	mu    sync.Mutex
	cache map[string][]Place
}

// New builds the geocoder around a fresh Nominatim client.
func New(cfg config.GeocoderConfig, hc *httpx.Client) *Geocoder {
	return &Geocoder{
		client: NewClient(cfg, hc),
		cache:  make(map[string][]Place),
	}
}

// Fill reconciles region/province against the registry and, for events
// without coordinates, walks the query ladder from most to least
// specific until something matches. Geocoding failures leave the event
// untouched; a non-nil error means the context was canceled.
func (g *Geocoder) Fill(ctx context.Context, ev *models.Event) error {
	conflict := g.reconcile(ev)
	if ev.HasCoordinates() {
		return nil
	}

	for _, query := range ladder(ev, conflict) {
		places, err := g.search(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.Warn().Err(err).Str("query", query).Msg("geocode lookup failed")
			// The endpoint is down, not the query; stop the ladder.
			return nil
		}
		if len(places) == 0 {
			continue
		}
		apply(ev, bestPlace(places))
		return nil
	}
	return nil
}

// reconcile overrides source-declared province and region with the
// registry's answer for the event's city. Reports whether the source
// disagreed, in which case the ladder drops the declared hints.
func (g *Geocoder) reconcile(ev *models.Event) bool {
	if ev.City == nil || *ev.City == "" {
		return false
	}
	conflict := false

	if province, ok := ProvinceForCity(*ev.City); ok {
		if ev.Province != nil && *ev.Province != "" && parse.Fold(*ev.Province) != parse.Fold(province) {
			conflict = true
			logging.Debug().
				Str("city", *ev.City).
				Str("declared", *ev.Province).
				Str("resolved", province).
				Msg("province corrected from registry")
		}
		ev.Province = &province
	}
	if region, ok := RegionForCity(*ev.City); ok {
		if ev.Region != nil && *ev.Region != "" && parse.Fold(*ev.Region) != parse.Fold(region) {
			conflict = true
			logging.Debug().
				Str("city", *ev.City).
				Str("declared", *ev.Region).
				Str("resolved", region).
				Msg("region corrected from registry")
		}
		ev.Region = &region
	}
	return conflict
}

// ladder builds the specific-to-general query sequence. After a
// registry conflict the declared province is suspect, so the hinted
// steps are skipped.
func ladder(ev *models.Event, conflict bool) []string {
	venue := deref(ev.VenueName)
	address := deref(ev.Address)
	city := deref(ev.City)
	province := deref(ev.Province)

	var steps [][]string
	if conflict {
		steps = [][]string{
			{venue, city},
			{address, city},
			{city},
		}
	} else {
		steps = [][]string{
			{venue, city, province},
			{address, city, province},
			{address, city},
			{venue, city},
			{city, province},
			{city},
		}
	}

	// A step only applies when every part is present; a partial step
	// would collapse into a more general query and jump the ladder.
	queries := make([]string, 0, len(steps))
	seen := make(map[string]bool)
	for _, parts := range steps {
		complete := true
		for _, p := range parts {
			if p == "" {
				complete = false
				break
			}
		}
		if !complete {
			continue
		}
		q := strings.Join(parts, ", ")
		if !seen[q] {
			seen[q] = true
			queries = append(queries, q)
		}
	}
	return queries
}

// search memoizes lookups by folded query, negative answers included,
// so a run never repeats a Nominatim request.
func (g *Geocoder) search(ctx context.Context, query string) ([]Place, error) {
	key := parse.Fold(query)
	g.mu.Lock()
	places, ok := g.cache[key]
	g.mu.Unlock()
	if ok {
		metrics.GeocodeRequests.WithLabelValues("cached").Inc()
		return places, nil
	}

	places, err := g.client.Search(ctx, query)
	if err != nil {
		metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return nil, err
	}
	if len(places) == 0 {
		metrics.GeocodeRequests.WithLabelValues("miss").Inc()
	} else {
		metrics.GeocodeRequests.WithLabelValues("hit").Inc()
	}

	g.mu.Lock()
	g.cache[key] = places
	g.mu.Unlock()
	return places, nil
}

func bestPlace(places []Place) Place {
	best := places[0]
	bestScore := confidence(best)
	for _, p := range places[1:] {
		if score := confidence(p); score > bestScore {
			best, bestScore = p, score
		}
	}
	return best
}

func confidence(p Place) float64 {
	return p.Importance + typeBoost[p.Type]
}

// apply writes the chosen place onto the event, filling only what the
// source left blank; coordinates and confidence always come from the
// geocode.
func apply(ev *models.Event, p Place) {
	lat, lon, conf := p.Latitude, p.Longitude, confidence(p)
	ev.Latitude = &lat
	ev.Longitude = &lon
	ev.GeocodeConfidence = &conf

	setIfEmpty(&ev.City, p.City)
	setIfEmpty(&ev.Province, p.Province)
	setIfEmpty(&ev.PostalCode, p.PostalCode)
	setIfEmpty(&ev.Region, p.Region)
	if (ev.Region == nil || *ev.Region == "") && ev.Province != nil {
		if region, ok := RegionForProvince(*ev.Province); ok {
			ev.Region = &region
		}
	}
}

func setIfEmpty(dst **string, val string) {
	if val == "" {
		return
	}
	if *dst == nil || **dst == "" {
		v := val
		*dst = &v
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
