// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

// Package parse turns raw source payloads into normalized events: it
// flattens mapped fields, parses dates, times, prices and coordinates,
// cleans text and derives synthetic external IDs for sources that
// publish none.
package parse

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cartelera-project/cartelera/internal/models"
	"github.com/cartelera-project/cartelera/internal/sources"
)

// Parser builds events for one source, applying its field mapping and
// format hints. Safe for concurrent use.
type Parser struct {
	cfg *sources.SourceConfig
}

// New creates a parser bound to a source config.
func New(cfg *sources.SourceConfig) *Parser {
	return &Parser{cfg: cfg}
}

// Flatten applies the source's dotted-path field mapping to one raw
// API item, producing canonical field strings.
func (p *Parser) Flatten(raw map[string]any) map[string]string {
	fields := make(map[string]string, len(p.cfg.Fields))
	for canonical, path := range p.cfg.Fields {
		if value := Stringify(Lookup(raw, path)); value != "" {
			fields[canonical] = value
		}
	}
	return fields
}

// Event builds a normalized event from canonical field strings.
// Title and a parsable start date are required; anything else missing
// leaves the corresponding field unset.
func (p *Parser) Event(fields map[string]string, scrapedAt time.Time) (*models.Event, error) {
	title := CleanText(fields[sources.FieldTitle])
	if title == "" {
		return nil, fmt.Errorf("source %s: item without title", p.cfg.Slug)
	}

	startDate, startClock, err := ParseDate(fields[sources.FieldStartDate], p.cfg.DateFormat)
	if err != nil {
		return nil, fmt.Errorf("source %s: item %q: %w", p.cfg.Slug, title, err)
	}

	e := &models.Event{
		ID:           uuid.New(),
		SourceSlug:   p.cfg.Slug,
		SourceTier:   p.cfg.Tier,
		ScrapedAt:    scrapedAt,
		Title:        title,
		StartDate:    startDate,
		LocationType: models.LocationPhysical,
	}

	if raw := fields[sources.FieldEndDate]; raw != "" {
		if endDate, endClock, err := ParseDate(raw, p.cfg.DateFormat); err == nil {
			// An end before the start is source noise; drop it.
			if !endDate.Before(startDate) {
				e.EndDate = &endDate
				if endClock != nil && e.EndTime == nil {
					e.EndTime = endClock
				}
			}
		}
	}

	if clock, ok := ParseClock(fields[sources.FieldStartTime]); ok {
		e.StartTime = &clock
	} else if startClock != nil {
		e.StartTime = startClock
	}
	if clock, ok := ParseClock(fields[sources.FieldEndTime]); ok {
		e.EndTime = &clock
	}
	e.AllDay = e.StartTime == nil

	e.Description = CleanText(fields[sources.FieldDescription])

	p.mapLocation(e, fields)
	p.mapPricing(e, fields)
	p.mapURLs(e, fields)

	if hint := CleanText(fields[sources.FieldTypeHint]); hint != "" {
		e.TypeHint = &hint
	}
	if audience := CleanText(fields[sources.FieldAudience]); audience != "" {
		e.Audience = &audience
	}

	if externalID := fields[sources.FieldExternalID]; externalID != "" {
		e.ExternalID = externalID
	} else {
		e.ExternalID = SyntheticID(title, startDate, fields[sources.FieldVenueName])
		e.Synthetic = true
	}

	return e, nil
}

func (p *Parser) mapLocation(e *models.Event, fields map[string]string) {
	if venue := CleanText(fields[sources.FieldVenueName]); venue != "" {
		e.VenueName = &venue
	}
	if address := CleanText(fields[sources.FieldAddress]); address != "" {
		e.Address = &address
	}
	if city := CleanText(fields[sources.FieldCity]); city != "" {
		e.City = &city
	}
	if province := CleanText(fields[sources.FieldProvince]); province != "" {
		e.Province = &province
	}
	if postal := CleanText(fields[sources.FieldPostalCode]); postal != "" {
		e.PostalCode = &postal
	}
	if p.cfg.Region != "" {
		region := p.cfg.Region
		e.Region = &region
	}

	lat, latOK := ParseCoord(fields[sources.FieldLatitude])
	lon, lonOK := ParseCoord(fields[sources.FieldLongitude])
	if latOK && lonOK && validCoords(lat, lon) {
		e.Latitude = &lat
		e.Longitude = &lon
	}
}

func (p *Parser) mapPricing(e *models.Event, fields map[string]string) {
	priceInfo := CleanText(fields[sources.FieldPriceInfo])
	if priceInfo != "" {
		e.PriceInfo = &priceInfo
	}

	if raw := fields[sources.FieldPrice]; raw != "" {
		if value, ok := ParsePrice(raw); ok {
			e.Price = &value
		}
	} else if priceInfo != "" {
		if value, ok := ParsePrice(priceInfo); ok {
			e.Price = &value
		}
	}

	freeRaw := fields[sources.FieldIsFree]
	switch {
	case freeRaw != "" && p.cfg.FreeMarker != "" && Fold(freeRaw) == Fold(p.cfg.FreeMarker):
		e.IsFree = models.BoolPtr(true)
	case freeRaw != "" && LooksFree(freeRaw, ""):
		e.IsFree = models.BoolPtr(true)
	case LooksFree(priceInfo, p.cfg.FreeMarker):
		e.IsFree = models.BoolPtr(true)
	case e.Price != nil && *e.Price == 0:
		e.IsFree = models.BoolPtr(true)
	case e.Price != nil:
		e.IsFree = models.BoolPtr(false)
	}
}

func (p *Parser) mapURLs(e *models.Event, fields map[string]string) {
	base := p.cfg.Endpoint
	switch p.cfg.Tier {
	case models.TierSilver:
		base = p.cfg.FeedURL
	case models.TierBronze:
		base = p.cfg.ListingURL
	}

	if raw := fields[sources.FieldExternalURL]; raw != "" {
		u := AbsoluteURL(base, raw)
		e.ExternalURL = &u
	}
	if raw := fields[sources.FieldImageURL]; raw != "" {
		u := raw
		if p.cfg.ImageURLPrefix != "" {
			u = AbsoluteURL(p.cfg.ImageURLPrefix, raw)
		} else {
			u = AbsoluteURL(base, raw)
		}
		e.SourceImageURL = &u
	}
}

// validCoords rejects out-of-range values and the (0,0) null island
// that APIs emit for unknown locations.
func validCoords(lat, lon float64) bool {
	if lat == 0 && lon == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
