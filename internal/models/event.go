// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

// Package models defines the data structures flowing through the
// ingestion pipeline: normalized events and their satellites,
// enrichment records, and per-run pipeline results.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Tier classifies a source's data quality and selects the fetcher
// style and enrichment model slot.
type Tier string

const (
	// TierGold sources expose clean JSON APIs. Enriched with the ORO model.
	TierGold Tier = "GOLD"
	// TierSilver sources expose RSS/Atom/iCal feeds. Enriched with the PLATA model.
	TierSilver Tier = "SILVER"
	// TierBronze sources require headless rendering. Enriched with the BRONCE model.
	TierBronze Tier = "BRONZE"
)

// ParseTier normalizes a user-supplied tier string.
// Returns empty Tier for unknown values.
func ParseTier(s string) Tier {
	switch Tier(normalizeTier(s)) {
	case TierGold:
		return TierGold
	case TierSilver:
		return TierSilver
	case TierBronze:
		return TierBronze
	}
	return ""
}

func normalizeTier(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

// LocationType describes where an event takes place.
type LocationType string

const (
	LocationPhysical LocationType = "physical"
	LocationOnline   LocationType = "online"
	LocationHybrid   LocationType = "hybrid"
)

// Event is the canonical entity the pipeline produces.
//
// Identity is (SourceSlug, ExternalID), unique within the persisted
// store; ID is a process-assigned UUID that becomes the primary key at
// first persistence. Optional scalar fields are pointers so that
// "absent" and "zero" stay distinguishable through enrichment, dedup
// merging, and persistence.
type Event struct {
	ID uuid.UUID `json:"id"`

	// Provenance
	SourceSlug string    `json:"source_slug"`
	SourceTier Tier      `json:"source_tier"`
	ExternalID string    `json:"external_id"`
	Synthetic  bool      `json:"synthetic,omitempty"` // ExternalID derived from content hash
	ScrapedAt  time.Time `json:"scraped_at"`

	// Temporal. StartDate is a civil date carried at midnight UTC.
	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	StartTime *string    `json:"start_time,omitempty"` // "HH:MM"
	EndTime   *string    `json:"end_time,omitempty"`   // "HH:MM"
	AllDay    bool       `json:"all_day"`

	// Content
	Title          string  `json:"title"`
	Description    string  `json:"description,omitempty"`
	Summary        string  `json:"summary,omitempty"`
	ImageURL       *string `json:"image_url,omitempty"`
	SourceImageURL *string `json:"source_image_url,omitempty"`
	ExternalURL    *string `json:"external_url,omitempty"`

	// Image attribution, kept when a search provider supplies it.
	ImageAuthor    *string `json:"image_author,omitempty"`
	ImageSourceURL *string `json:"image_source_url,omitempty"`

	// Classification. Ordered, primary slug first, at most four, all
	// from the controlled vocabulary.
	CategorySlugs []string `json:"category_slugs,omitempty"`

	// Raw source hints carried into enrichment, not persisted.
	TypeHint *string `json:"type_hint,omitempty"`
	Audience *string `json:"audience,omitempty"`

	// Pricing. IsFree is tri-state: nil means unknown.
	IsFree    *bool    `json:"is_free,omitempty"`
	Price     *float64 `json:"price,omitempty"`
	PriceInfo *string  `json:"price_info,omitempty"`

	// Location
	VenueName         *string      `json:"venue_name,omitempty"`
	Address           *string      `json:"address,omitempty"`
	City              *string      `json:"city,omitempty"`
	Province          *string      `json:"province,omitempty"`
	Region            *string      `json:"region,omitempty"`
	PostalCode        *string      `json:"postal_code,omitempty"`
	Country           *string      `json:"country,omitempty"`
	Latitude          *float64     `json:"latitude,omitempty"`
	Longitude         *float64     `json:"longitude,omitempty"`
	LocationType      LocationType `json:"location_type"`
	GeocodeConfidence *float64     `json:"geocode_confidence,omitempty"`

	// Relations
	Organizer     *Organizer     `json:"organizer,omitempty"`
	Contact       *Contact       `json:"contact,omitempty"`
	Registration  *Registration  `json:"registration,omitempty"`
	Accessibility *Accessibility `json:"accessibility,omitempty"`
	OnlineDetails *OnlineDetails `json:"online_details,omitempty"`
	Contributions []Contribution `json:"contributions,omitempty"`
}

// Organizer is the entity running the event.
type Organizer struct {
	Name  string  `json:"name"`
	URL   *string `json:"url,omitempty"`
	Email *string `json:"email,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

// Contact holds public contact details for the event.
type Contact struct {
	Email   *string `json:"email,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Website *string `json:"website,omitempty"`
}

// Registration describes how to sign up for the event.
type Registration struct {
	Required bool       `json:"required"`
	URL      *string    `json:"url,omitempty"`
	Deadline *time.Time `json:"deadline,omitempty"`
	Info     *string    `json:"info,omitempty"`
}

// Accessibility describes venue accessibility.
type Accessibility struct {
	WheelchairAccessible *bool   `json:"wheelchair_accessible,omitempty"`
	Info                 *string `json:"info,omitempty"`
}

// OnlineDetails describes the online component of an event.
type OnlineDetails struct {
	Platform *string `json:"platform,omitempty"`
	URL      *string `json:"url,omitempty"`
}

// Contribution records that a source supplied specific fields of a
// persisted event. Contributions are append-only per (event, source);
// re-ingesting a source re-records with the fresh field list and score.
type Contribution struct {
	EventID           uuid.UUID `json:"event_id"`
	SourceSlug        string    `json:"source_slug"`
	ExternalID        string    `json:"external_id"`
	FieldsContributed []string  `json:"fields_contributed"`
	QualityScore      int       `json:"quality_score"`
	// IsPrimary is true only for the first contribution to an event.
	IsPrimary     bool      `json:"is_primary"`
	ContributedAt time.Time `json:"contributed_at"`
}

// LatestDate returns the event's latest meaningful date: EndDate when
// present, otherwise StartDate. The freshness filter compares this
// against today.
func (e *Event) LatestDate() time.Time {
	if e.EndDate != nil {
		return *e.EndDate
	}
	return e.StartDate
}

// HasCoordinates reports whether both latitude and longitude are set.
func (e *Event) HasCoordinates() bool {
	return e.Latitude != nil && e.Longitude != nil
}

// HasImage reports whether any image URL is assigned.
func (e *Event) HasImage() bool {
	return (e.ImageURL != nil && *e.ImageURL != "") ||
		(e.SourceImageURL != nil && *e.SourceImageURL != "")
}

// PrimaryCategory returns the first category slug, or "other" when the
// event carries no categories.
func (e *Event) PrimaryCategory() string {
	if len(e.CategorySlugs) > 0 && e.CategorySlugs[0] != "" {
		return e.CategorySlugs[0]
	}
	return "other"
}

// IdentityKey returns the natural identity "source_slug:external_id".
func (e *Event) IdentityKey() string {
	return e.SourceSlug + ":" + e.ExternalID
}
