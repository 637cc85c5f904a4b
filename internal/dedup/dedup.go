// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

// Package dedup links events across sources. A new event is matched
// against persisted events on the same start date by title similarity
// plus a city or venue agreement rule; a match either merges into the
// existing row (when the merge would add enough weighted fields) or is
// skipped. Every outcome appends a contribution record crediting the
// source.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/cartelera-project/cartelera/internal/logging"
	"github.com/cartelera-project/cartelera/internal/metrics"
	"github.com/cartelera-project/cartelera/internal/models"
)

const (
	titleThreshold       = 0.85
	venueThreshold       = 0.70
	strictTitleThreshold = 0.95
	minImprovement       = 5
)

// Action is the deduplicator's verdict for one event.
type Action string

const (
	ActionInsert Action = "insert"
	ActionMerge  Action = "merge"
	ActionSkip   Action = "skip"
)

// Resolution tells the persister what to do with one event.
type Resolution struct {
	Action Action
	// Event is the record to persist: the incoming event for inserts,
	// the merged record (under the existing identity) for merges, nil
	// for skips.
	Event *models.Event
	// Existing is the matched persisted event, nil for inserts.
	Existing     *models.Event
	Contribution models.Contribution
	Improvement  int
}

// CandidateSource looks up persisted events sharing a start date.
type CandidateSource interface {
	FindByStartDate(ctx context.Context, startDate time.Time) ([]*models.Event, error)
}

// Deduplicator resolves new events against the store.
type Deduplicator struct {
	store CandidateSource
}

func New(store CandidateSource) *Deduplicator {
	return &Deduplicator{store: store}
}

// Resolve decides insert, merge or skip for one annotated event. The
// first matching candidate in store order wins, which keeps primary
// attribution deterministic when several new events hit the same row.
func (d *Deduplicator) Resolve(ctx context.Context, incoming *models.Event) (*Resolution, error) {
	candidates, err := d.store.FindByStartDate(ctx, incoming.StartDate)
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}

	var existing *models.Event
	for _, cand := range candidates {
		if match(incoming, cand) {
			existing = cand
			break
		}
	}

	now := time.Now().UTC()
	if existing == nil {
		return &Resolution{
			Action: ActionInsert,
			Event:  incoming,
			Contribution: models.Contribution{
				EventID:           incoming.ID,
				SourceSlug:        incoming.SourceSlug,
				ExternalID:        incoming.ExternalID,
				FieldsContributed: presentFields(incoming),
				QualityScore:      Quality(incoming),
				IsPrimary:         true,
				ContributedAt:     now,
			},
		}, nil
	}

	merged, improvement, added := merge(existing, incoming)
	contrib := models.Contribution{
		EventID:       existing.ID,
		SourceSlug:    incoming.SourceSlug,
		ExternalID:    incoming.ExternalID,
		QualityScore:  Quality(incoming),
		ContributedAt: now,
	}

	if improvement >= minImprovement {
		contrib.FieldsContributed = added
		metrics.DedupMerges.Inc()
		logging.Debug().
			Str("incoming", incoming.IdentityKey()).
			Str("existing", existing.IdentityKey()).
			Int("improvement", improvement).
			Strs("fields", added).
			Msg("merging duplicate")
		return &Resolution{
			Action:       ActionMerge,
			Event:        merged,
			Existing:     existing,
			Contribution: contrib,
			Improvement:  improvement,
		}, nil
	}

	metrics.DedupDiscards.Inc()
	contrib.FieldsContributed = []string{}
	return &Resolution{
		Action:       ActionSkip,
		Existing:     existing,
		Contribution: contrib,
		Improvement:  improvement,
	}, nil
}

// match applies the duplicate test: same start date, similar title,
// and either the same normalized city or a similar venue name. With
// neither city nor venue to compare, only near-identical titles match.
func match(incoming, candidate *models.Event) bool {
	if candidate.SourceSlug == incoming.SourceSlug {
		return false
	}
	if !candidate.StartDate.Equal(incoming.StartDate) {
		return false
	}

	titleSim := similarity(titleKey(incoming.Title), titleKey(candidate.Title))
	if titleSim < titleThreshold {
		return false
	}

	inCity := cityKey(deref(incoming.City))
	candCity := cityKey(deref(candidate.City))
	inVenue := deref(incoming.VenueName)
	candVenue := deref(candidate.VenueName)

	cityComparable := inCity != "" && candCity != ""
	venueComparable := inVenue != "" && candVenue != ""

	switch {
	case cityComparable && inCity == candCity:
		return true
	case venueComparable && similarity(titleKey(inVenue), titleKey(candVenue)) >= venueThreshold:
		return true
	case !cityComparable && !venueComparable:
		return titleSim >= strictTitleThreshold
	default:
		return false
	}
}

// merge builds the existing record enriched with whatever the incoming
// event newly supplies. Improvement sums the weights of fields that
// went from empty to populated; a longer description upgrade replaces
// in place without counting.
func merge(existing, incoming *models.Event) (*models.Event, int, []string) {
	merged := *existing
	improvement := 0
	added := make([]string, 0, 8)

	if incoming.Description != "" && merged.Description == "" {
		merged.Description = incoming.Description
		added = append(added, "description")
		if len(incoming.Description) > minDescriptionLen {
			improvement += weightDescription
		}
	} else if incoming.Description != "" &&
		len(incoming.Description) >= len(merged.Description)+minDescriptionLen {
		merged.Description = incoming.Description
	}

	if !merged.HasImage() && incoming.HasImage() {
		merged.ImageURL = incoming.ImageURL
		merged.SourceImageURL = incoming.SourceImageURL
		merged.ImageAuthor = incoming.ImageAuthor
		merged.ImageSourceURL = incoming.ImageSourceURL
		improvement += weightImage
		added = append(added, "image_url")
	}

	if !merged.HasCoordinates() && incoming.HasCoordinates() {
		merged.Latitude = incoming.Latitude
		merged.Longitude = incoming.Longitude
		merged.GeocodeConfidence = incoming.GeocodeConfidence
		improvement += weightCoordinates
		added = append(added, "coordinates")
	}

	if !hasPrice(&merged) && hasPrice(incoming) {
		merged.IsFree = incoming.IsFree
		merged.Price = incoming.Price
		merged.PriceInfo = incoming.PriceInfo
		improvement += weightPrice
		added = append(added, "price")
	}

	if merged.EndDate == nil && incoming.EndDate != nil {
		merged.EndDate = incoming.EndDate
		improvement += weightEndDate
		added = append(added, "end_date")
	}

	if (merged.Organizer == nil || merged.Organizer.Name == "") &&
		incoming.Organizer != nil && incoming.Organizer.Name != "" {
		merged.Organizer = incoming.Organizer
		improvement += weightOrganizer
		added = append(added, "organizer")
	}

	if emptyStr(merged.StartTime) && !emptyStr(incoming.StartTime) {
		merged.StartTime = incoming.StartTime
		improvement += weightStartTime
		added = append(added, "start_time")
	}
	if emptyStr(merged.EndTime) && !emptyStr(incoming.EndTime) {
		merged.EndTime = incoming.EndTime
		improvement += weightEndTime
		added = append(added, "end_time")
	}

	before := len(merged.CategorySlugs)
	merged.CategorySlugs = unionSlugs(merged.CategorySlugs, incoming.CategorySlugs)
	if before == 0 && len(merged.CategorySlugs) > 0 {
		improvement += weightCategory
		added = append(added, "category_slugs")
	}

	if emptyStr(merged.ExternalURL) && !emptyStr(incoming.ExternalURL) {
		merged.ExternalURL = incoming.ExternalURL
		improvement += weightExternalURL
		added = append(added, "external_url")
	}

	// Zero-weight gap fills: useful on the merged record, no say in
	// the update decision.
	fillStr(&merged.VenueName, incoming.VenueName)
	fillStr(&merged.Address, incoming.Address)
	fillStr(&merged.City, incoming.City)
	fillStr(&merged.Province, incoming.Province)
	fillStr(&merged.Region, incoming.Region)
	fillStr(&merged.PostalCode, incoming.PostalCode)
	if merged.Summary == "" {
		merged.Summary = incoming.Summary
	}

	return &merged, improvement, added
}

func unionSlugs(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	for _, s := range a {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func fillStr(dst **string, val *string) {
	if (*dst == nil || **dst == "") && val != nil && *val != "" {
		*dst = val
	}
}

func emptyStr(s *string) bool {
	return s == nil || *s == ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
