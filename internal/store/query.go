// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/cartelera-project/cartelera/internal/metrics"
	"github.com/cartelera-project/cartelera/internal/models"
)

const findByStartDateSQL = `
SELECT e.id, e.source_slug, e.external_id, e.source_tier, e.synthetic, e.scraped_at,
	e.start_date, e.end_date, e.start_time, e.end_time, e.all_day,
	e.title, e.description, e.summary,
	e.image_url, e.source_image_url, e.external_url, e.image_author, e.image_source_url,
	e.is_free, e.price, e.price_info, e.location_type,
	l.venue_name, l.address, l.city, l.province, l.region, l.postal_code,
	l.country, l.latitude, l.longitude, l.geocode_confidence,
	o.name, o.url, o.email, o.phone,
	(SELECT COALESCE(array_agg(c.slug ORDER BY c.position), '{}')
	   FROM event_categories c WHERE c.event_id = e.id) AS category_slugs
FROM events e
LEFT JOIN event_locations l ON l.event_id = e.id
LEFT JOIN event_organizers o ON o.event_id = e.id
WHERE e.start_date = $1
ORDER BY e.scraped_at, e.id`

const existsSQL = `
SELECT EXISTS (
	SELECT 1 FROM events WHERE source_slug = $1 AND external_id = $2
)`

// FindByStartDate returns persisted events sharing a start date,
// hydrated with location, organizer and categories so the
// deduplicator can match and merge against them. Oldest first, so the
// earliest persisted duplicate keeps primary attribution.
func (s *Store) FindByStartDate(ctx context.Context, startDate time.Time) ([]*models.Event, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, findByStartDateSQL, startDate)
	metrics.RecordDBQuery("find_candidates", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		var ev models.Event
		var tier, locType string
		var orgName, orgURL, orgEmail, orgPhone *string
		err := rows.Scan(
			&ev.ID, &ev.SourceSlug, &ev.ExternalID, &tier, &ev.Synthetic, &ev.ScrapedAt,
			&ev.StartDate, &ev.EndDate, &ev.StartTime, &ev.EndTime, &ev.AllDay,
			&ev.Title, &ev.Description, &ev.Summary,
			&ev.ImageURL, &ev.SourceImageURL, &ev.ExternalURL,
			&ev.ImageAuthor, &ev.ImageSourceURL,
			&ev.IsFree, &ev.Price, &ev.PriceInfo, &locType,
			&ev.VenueName, &ev.Address, &ev.City, &ev.Province, &ev.Region,
			&ev.PostalCode, &ev.Country, &ev.Latitude, &ev.Longitude,
			&ev.GeocodeConfidence,
			&orgName, &orgURL, &orgEmail, &orgPhone,
			&ev.CategorySlugs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		ev.SourceTier = models.Tier(tier)
		ev.LocationType = models.LocationType(locType)
		if orgName != nil && *orgName != "" {
			ev.Organizer = &models.Organizer{
				Name:  *orgName,
				URL:   orgURL,
				Email: orgEmail,
				Phone: orgPhone,
			}
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return events, nil
}

// Exists probes for a persisted identity without loading the row.
func (s *Store) Exists(ctx context.Context, sourceSlug, externalID string) (bool, error) {
	start := time.Now()
	var exists bool
	err := s.pool.QueryRow(ctx, existsSQL, sourceSlug, externalID).Scan(&exists)
	metrics.RecordDBQuery("exists", time.Since(start), err)
	if err != nil {
		return false, fmt.Errorf("probe identity: %w", err)
	}
	return exists, nil
}

// AddContribution records a source's contribution to an event outside
// a save, used when dedup discards an incoming duplicate but still
// credits its source against the surviving row.
func (s *Store) AddContribution(ctx context.Context, c models.Contribution) error {
	start := time.Now()
	_, err := s.pool.Exec(ctx, upsertContributionSQL, c.EventID, c.SourceSlug,
		c.ExternalID, c.FieldsContributed, c.QualityScore, c.IsPrimary, c.ContributedAt)
	metrics.RecordDBQuery("add_contribution", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("record contribution: %w", err)
	}
	return nil
}
