// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cartelera-project/cartelera/internal/logging"
	"github.com/cartelera-project/cartelera/internal/metrics"
	"github.com/cartelera-project/cartelera/internal/models"
)

const upsertEventSQL = `
INSERT INTO events (
	id, source_slug, external_id, source_tier, synthetic, scraped_at,
	start_date, end_date, start_time, end_time, all_day,
	title, description, summary,
	image_url, source_image_url, external_url, image_author, image_source_url,
	is_free, price, price_info, location_type
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
	$16, $17, $18, $19, $20, $21, $22, $23
)
ON CONFLICT (source_slug, external_id) DO UPDATE SET
	source_tier = EXCLUDED.source_tier,
	synthetic = EXCLUDED.synthetic,
	scraped_at = EXCLUDED.scraped_at,
	start_date = EXCLUDED.start_date,
	end_date = EXCLUDED.end_date,
	start_time = EXCLUDED.start_time,
	end_time = EXCLUDED.end_time,
	all_day = EXCLUDED.all_day,
	title = EXCLUDED.title,
	description = EXCLUDED.description,
	summary = EXCLUDED.summary,
	image_url = EXCLUDED.image_url,
	source_image_url = EXCLUDED.source_image_url,
	external_url = EXCLUDED.external_url,
	image_author = EXCLUDED.image_author,
	image_source_url = EXCLUDED.image_source_url,
	is_free = EXCLUDED.is_free,
	price = EXCLUDED.price,
	price_info = EXCLUDED.price_info,
	location_type = EXCLUDED.location_type,
	updated_at = now()
RETURNING id, (xmax = 0) AS inserted`

const insertEventSkipSQL = `
INSERT INTO events (
	id, source_slug, external_id, source_tier, synthetic, scraped_at,
	start_date, end_date, start_time, end_time, all_day,
	title, description, summary,
	image_url, source_image_url, external_url, image_author, image_source_url,
	is_free, price, price_info, location_type
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
	$16, $17, $18, $19, $20, $21, $22, $23
)
ON CONFLICT (source_slug, external_id) DO NOTHING
RETURNING id`

const (
	upsertLocationSQL = `
INSERT INTO event_locations (
	event_id, venue_name, address, city, province, region, postal_code,
	country, latitude, longitude, geocode_confidence
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (event_id) DO UPDATE SET
	venue_name = EXCLUDED.venue_name,
	address = EXCLUDED.address,
	city = EXCLUDED.city,
	province = EXCLUDED.province,
	region = EXCLUDED.region,
	postal_code = EXCLUDED.postal_code,
	country = EXCLUDED.country,
	latitude = EXCLUDED.latitude,
	longitude = EXCLUDED.longitude,
	geocode_confidence = EXCLUDED.geocode_confidence`

	upsertOrganizerSQL = `
INSERT INTO event_organizers (event_id, name, url, email, phone)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (event_id) DO UPDATE SET
	name = EXCLUDED.name,
	url = EXCLUDED.url,
	email = EXCLUDED.email,
	phone = EXCLUDED.phone`

	upsertContactSQL = `
INSERT INTO event_contacts (event_id, email, phone, website)
VALUES ($1, $2, $3, $4)
ON CONFLICT (event_id) DO UPDATE SET
	email = EXCLUDED.email,
	phone = EXCLUDED.phone,
	website = EXCLUDED.website`

	upsertRegistrationSQL = `
INSERT INTO event_registrations (event_id, required, url, deadline, info)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (event_id) DO UPDATE SET
	required = EXCLUDED.required,
	url = EXCLUDED.url,
	deadline = EXCLUDED.deadline,
	info = EXCLUDED.info`

	upsertAccessibilitySQL = `
INSERT INTO event_accessibility (event_id, wheelchair_accessible, info)
VALUES ($1, $2, $3)
ON CONFLICT (event_id) DO UPDATE SET
	wheelchair_accessible = EXCLUDED.wheelchair_accessible,
	info = EXCLUDED.info`

	upsertOnlineSQL = `
INSERT INTO event_online_details (event_id, platform, url)
VALUES ($1, $2, $3)
ON CONFLICT (event_id) DO UPDATE SET
	platform = EXCLUDED.platform,
	url = EXCLUDED.url`

	deleteCategoriesSQL = `DELETE FROM event_categories WHERE event_id = $1`
	insertCategorySQL   = `
INSERT INTO event_categories (event_id, slug, position)
VALUES ($1, $2, $3)`

	upsertContributionSQL = `
INSERT INTO event_contributions (
	event_id, source_slug, external_id, fields_contributed,
	quality_score, is_primary, contributed_at
) VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (event_id, source_slug) DO UPDATE SET
	external_id = EXCLUDED.external_id,
	fields_contributed = EXCLUDED.fields_contributed,
	quality_score = EXCLUDED.quality_score,
	contributed_at = EXCLUDED.contributed_at`
)

type saveOutcome int

const (
	outcomeInserted saveOutcome = iota
	outcomeUpdated
	outcomeSkipped
)

// SaveBatch upserts a batch of events. Each event and its satellites
// share one transaction; a failed event rolls back alone, is logged
// and counted, and its siblings proceed. With skipExisting an identity
// collision leaves the persisted row untouched and counts as skipped.
// The returned error is non-nil only when the batch stopped early on
// context cancellation.
func (s *Store) SaveBatch(ctx context.Context, events []*models.Event, skipExisting bool) (models.SaveReport, error) {
	var report models.SaveReport
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		outcome, err := s.saveEvent(ctx, ev, skipExisting)
		if err != nil {
			if ctx.Err() != nil {
				report.Failed++
				return report, ctx.Err()
			}
			logging.Warn().
				Err(err).
				Str("source", ev.SourceSlug).
				Str("external_id", ev.ExternalID).
				Msg("event not persisted")
			report.Failed++
			continue
		}
		switch outcome {
		case outcomeInserted:
			report.Inserted++
		case outcomeUpdated:
			report.Updated++
		case outcomeSkipped:
			report.Skipped++
		}
	}
	return report, nil
}

func (s *Store) saveEvent(ctx context.Context, ev *models.Event, skipExisting bool) (saveOutcome, error) {
	start := time.Now()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // no-op after commit

	// The returned id is the persisted one; on a conflicting re-run it
	// differs from the process-assigned UUID and the satellites must
	// follow it.
	var (
		id       uuid.UUID
		inserted bool
	)
	if skipExisting {
		err = tx.QueryRow(ctx, insertEventSkipSQL, eventArgs(ev)...).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return outcomeSkipped, nil
		}
		inserted = true
	} else {
		err = tx.QueryRow(ctx, upsertEventSQL, eventArgs(ev)...).Scan(&id, &inserted)
	}
	if err != nil {
		metrics.RecordDBQuery("save_event", time.Since(start), err)
		return outcomeSkipped, fmt.Errorf("upsert event: %w", err)
	}

	if err := saveSatellites(ctx, tx, id, ev); err != nil {
		metrics.RecordDBQuery("save_event", time.Since(start), err)
		return outcomeSkipped, err
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.RecordDBQuery("save_event", time.Since(start), err)
		return outcomeSkipped, fmt.Errorf("commit: %w", err)
	}
	metrics.RecordDBQuery("save_event", time.Since(start), nil)

	if inserted {
		return outcomeInserted, nil
	}
	return outcomeUpdated, nil
}

func eventArgs(ev *models.Event) []any {
	return []any{
		ev.ID, ev.SourceSlug, ev.ExternalID, string(ev.SourceTier),
		ev.Synthetic, ev.ScrapedAt,
		ev.StartDate, ev.EndDate, ev.StartTime, ev.EndTime, ev.AllDay,
		ev.Title, ev.Description, ev.Summary,
		ev.ImageURL, ev.SourceImageURL, ev.ExternalURL,
		ev.ImageAuthor, ev.ImageSourceURL,
		ev.IsFree, ev.Price, ev.PriceInfo, string(ev.LocationType),
	}
}

func saveSatellites(ctx context.Context, tx pgx.Tx, id uuid.UUID, ev *models.Event) error {
	if hasLocation(ev) {
		_, err := tx.Exec(ctx, upsertLocationSQL, id,
			ev.VenueName, ev.Address, ev.City, ev.Province, ev.Region,
			ev.PostalCode, ev.Country, ev.Latitude, ev.Longitude,
			ev.GeocodeConfidence)
		if err != nil {
			return fmt.Errorf("upsert location: %w", err)
		}
	} else if _, err := tx.Exec(ctx, `DELETE FROM event_locations WHERE event_id = $1`, id); err != nil {
		return fmt.Errorf("delete location: %w", err)
	}

	if ev.Organizer != nil && ev.Organizer.Name != "" {
		o := ev.Organizer
		if _, err := tx.Exec(ctx, upsertOrganizerSQL, id, o.Name, o.URL, o.Email, o.Phone); err != nil {
			return fmt.Errorf("upsert organizer: %w", err)
		}
	} else if _, err := tx.Exec(ctx, `DELETE FROM event_organizers WHERE event_id = $1`, id); err != nil {
		return fmt.Errorf("delete organizer: %w", err)
	}

	if c := ev.Contact; c != nil {
		if _, err := tx.Exec(ctx, upsertContactSQL, id, c.Email, c.Phone, c.Website); err != nil {
			return fmt.Errorf("upsert contact: %w", err)
		}
	} else if _, err := tx.Exec(ctx, `DELETE FROM event_contacts WHERE event_id = $1`, id); err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}

	if r := ev.Registration; r != nil {
		if _, err := tx.Exec(ctx, upsertRegistrationSQL, id, r.Required, r.URL, r.Deadline, r.Info); err != nil {
			return fmt.Errorf("upsert registration: %w", err)
		}
	} else if _, err := tx.Exec(ctx, `DELETE FROM event_registrations WHERE event_id = $1`, id); err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}

	if a := ev.Accessibility; a != nil {
		if _, err := tx.Exec(ctx, upsertAccessibilitySQL, id, a.WheelchairAccessible, a.Info); err != nil {
			return fmt.Errorf("upsert accessibility: %w", err)
		}
	} else if _, err := tx.Exec(ctx, `DELETE FROM event_accessibility WHERE event_id = $1`, id); err != nil {
		return fmt.Errorf("delete accessibility: %w", err)
	}

	if o := ev.OnlineDetails; o != nil {
		if _, err := tx.Exec(ctx, upsertOnlineSQL, id, o.Platform, o.URL); err != nil {
			return fmt.Errorf("upsert online details: %w", err)
		}
	} else if _, err := tx.Exec(ctx, `DELETE FROM event_online_details WHERE event_id = $1`, id); err != nil {
		return fmt.Errorf("delete online details: %w", err)
	}

	if _, err := tx.Exec(ctx, deleteCategoriesSQL, id); err != nil {
		return fmt.Errorf("delete categories: %w", err)
	}
	for pos, slug := range ev.CategorySlugs {
		if _, err := tx.Exec(ctx, insertCategorySQL, id, slug, pos); err != nil {
			return fmt.Errorf("insert category %q: %w", slug, err)
		}
	}

	for i := range ev.Contributions {
		c := &ev.Contributions[i]
		_, err := tx.Exec(ctx, upsertContributionSQL, id, c.SourceSlug, c.ExternalID,
			c.FieldsContributed, c.QualityScore, c.IsPrimary, c.ContributedAt)
		if err != nil {
			return fmt.Errorf("upsert contribution from %s: %w", c.SourceSlug, err)
		}
	}
	return nil
}

func hasLocation(ev *models.Event) bool {
	return ev.VenueName != nil || ev.Address != nil || ev.City != nil ||
		ev.Province != nil || ev.Region != nil || ev.PostalCode != nil ||
		ev.Country != nil || ev.Latitude != nil || ev.Longitude != nil
}
