// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

package models

// EnrichmentInput is one event's slice of the batched prompt sent to
// the generative model. ID ties the response record back to the event.
type EnrichmentInput struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Venue       string `json:"venue,omitempty"`
	Location    string `json:"location,omitempty"`
	TypeHint    string `json:"type_hint,omitempty"`
	Audience    string `json:"audience,omitempty"`
	PriceInfo   string `json:"price_info,omitempty"`
}

// Enrichment is the machine-generated metadata for one event.
//
// The enricher never assigns image URLs and never writes to the store;
// ImageKeywords feed the image resolver and NormalizedText feeds the
// classifier's embedding request.
type Enrichment struct {
	Summary       string   `json:"summary"`
	CategorySlugs []string `json:"category_slugs"`
	IsFree        *bool    `json:"is_free"`
	Price         *float64 `json:"price"`
	PriceDetails  *string  `json:"price_details"`
	// ImageKeywords are English noun phrases, capped at three.
	ImageKeywords  []string `json:"image_keywords"`
	NormalizedText string   `json:"normalized_text"`
}
