// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

// Package sources holds the per-source configuration catalog and the
// process-wide registry the pipeline resolves slugs against.
//
// A SourceConfig is immutable for the life of a process. The tier
// discriminates which fetcher reads which fields: GOLD sources use the
// API fields, SILVER the feed fields, BRONZE the listing fields.
package sources

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/cartelera-project/cartelera/internal/models"
)

// PaginationScheme selects how a GOLD API pages its results.
type PaginationScheme string

const (
	// PaginationNone issues a single request.
	PaginationNone PaginationScheme = "none"
	// PaginationOffset loops offset/limit until a short page or the
	// reported total is reached.
	PaginationOffset PaginationScheme = "offset"
	// PaginationPage loops a page index until an empty page or the
	// reported page count is reached.
	PaginationPage PaginationScheme = "page"
	// PaginationSocrata is offset/limit with Socrata parameter names
	// ($offset, $limit).
	PaginationSocrata PaginationScheme = "socrata"
)

// FeedType selects the SILVER feed parser.
type FeedType string

const (
	FeedRSS  FeedType = "rss"
	FeedAtom FeedType = "atom"
	FeedICal FeedType = "ical"
)

// Canonical field-mapping keys. Values in SourceConfig.Fields and the
// selector maps are dotted raw paths (GOLD) or CSS selectors
// (SILVER detail / BRONZE).
const (
	FieldExternalID  = "external_id"
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldStartDate   = "start_date"
	FieldEndDate     = "end_date"
	FieldStartTime   = "start_time"
	FieldEndTime     = "end_time"
	FieldVenueName   = "venue_name"
	FieldAddress     = "address"
	FieldCity        = "city"
	FieldProvince    = "province"
	FieldPostalCode  = "postal_code"
	FieldPrice       = "price"
	FieldIsFree      = "is_free"
	FieldPriceInfo   = "price_info"
	FieldExternalURL = "external_url"
	FieldImageURL    = "image_url"
	FieldLatitude    = "latitude"
	FieldLongitude   = "longitude"
	FieldTypeHint    = "type_hint"
	FieldAudience    = "audience"
)

// SourceConfig describes one external provider. Exactly one family of
// transport fields is read, chosen by Tier.
type SourceConfig struct {
	// Common
	Slug       string      `validate:"required,lowercase"`
	Name       string      `validate:"required"`
	Region     string      `validate:"required"`
	RegionCode string      `validate:"omitempty,uppercase"`
	Tier       models.Tier `validate:"required,oneof=GOLD SILVER BRONZE"`
	Active     bool

	// GOLD: JSON API
	Endpoint   string           `validate:"required_if=Tier GOLD,omitempty,url"`
	Pagination PaginationScheme `validate:"omitempty,oneof=none offset page socrata"`
	PageSize   int              `validate:"min=0,max=1000"`
	// ItemsPath is the dotted path to the item array; empty means the
	// response root is the array.
	ItemsPath string
	// TotalPath is the dotted path to the reported total count or
	// total pages, depending on the pagination scheme.
	TotalPath string
	// Fields maps canonical event fields to dotted paths in a raw item.
	Fields map[string]string
	// DateFormat and TimeFormat are Go reference layouts tried before
	// the parser's built-in fallbacks.
	DateFormat string
	TimeFormat string
	// FreeMarker is the raw value that means "free admission", e.g.
	// "1", "gratuito". Matched case-insensitively.
	FreeMarker string
	// ImageURLPrefix absolutizes relative image URLs.
	ImageURLPrefix string `validate:"omitempty,url"`

	// SILVER: feed
	FeedURL  string   `validate:"required_if=Tier SILVER,omitempty,url"`
	FeedType FeedType `validate:"omitempty,oneof=rss atom ical"`
	// FetchDetail retrieves each entry's page and applies
	// DetailSelectors on top of the feed fields.
	FetchDetail     bool
	DetailSelectors map[string]string

	// BRONZE: listing page
	ListingURL string `validate:"required_if=Tier BRONZE,omitempty,url"`
	// Render sends the listing through the headless rendering service;
	// false fetches the static HTML directly.
	Render bool
	// WaitFor is the CSS selector the renderer waits for.
	WaitFor string
	// CardSelector matches one listing card per event.
	CardSelector string `validate:"required_if=Tier BRONZE"`
	// Selectors maps canonical event fields to CSS selectors scoped to
	// a card. The special suffixes "@href" and "@src" read attributes.
	Selectors map[string]string
	MaxPages  int `validate:"min=0,max=50"`
}

// Domain returns the host this source's traffic is rate-limited under.
func (c *SourceConfig) Domain() string {
	u := c.Endpoint
	switch c.Tier {
	case models.TierSilver:
		u = c.FeedURL
	case models.TierBronze:
		u = c.ListingURL
	}
	return hostOf(u)
}

var validate = validator.New()

// Validate checks the config's structural validity, including
// tier-conditional required fields.
func (c *SourceConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("source %q: %w", c.Slug, err)
	}
	return nil
}
