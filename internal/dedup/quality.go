// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

package dedup

import "github.com/cartelera-project/cartelera/internal/models"

// Field weights for quality scoring and merge-improvement estimates.
const (
	weightDescription = 10
	weightImage       = 8
	weightCoordinates = 7
	weightPrice       = 5
	weightEndDate     = 5
	weightOrganizer   = 4
	weightStartTime   = 3
	weightEndTime     = 3
	weightCategory    = 3
	weightExternalURL = 2

	// minDescriptionLen is the length below which a description
	// carries no weight.
	minDescriptionLen = 50
)

// Quality scores how much usable content an event carries; richer
// records win merges.
func Quality(ev *models.Event) int {
	score := 0
	for _, f := range presentFields(ev) {
		score += fieldWeight(f)
	}
	return score
}

// presentFields lists the quality-bearing fields the event populates,
// in weight order. Title and start date are required everywhere and
// carry no signal, so they are not listed.
func presentFields(ev *models.Event) []string {
	fields := make([]string, 0, 10)
	if len(ev.Description) > minDescriptionLen {
		fields = append(fields, "description")
	}
	if ev.HasImage() {
		fields = append(fields, "image_url")
	}
	if ev.HasCoordinates() {
		fields = append(fields, "coordinates")
	}
	if hasPrice(ev) {
		fields = append(fields, "price")
	}
	if ev.EndDate != nil {
		fields = append(fields, "end_date")
	}
	if ev.Organizer != nil && ev.Organizer.Name != "" {
		fields = append(fields, "organizer")
	}
	if ev.StartTime != nil && *ev.StartTime != "" {
		fields = append(fields, "start_time")
	}
	if ev.EndTime != nil && *ev.EndTime != "" {
		fields = append(fields, "end_time")
	}
	if len(ev.CategorySlugs) > 0 {
		fields = append(fields, "category_slugs")
	}
	if ev.ExternalURL != nil && *ev.ExternalURL != "" {
		fields = append(fields, "external_url")
	}
	return fields
}

func fieldWeight(field string) int {
	switch field {
	case "description":
		return weightDescription
	case "image_url":
		return weightImage
	case "coordinates":
		return weightCoordinates
	case "price":
		return weightPrice
	case "end_date":
		return weightEndDate
	case "organizer":
		return weightOrganizer
	case "start_time":
		return weightStartTime
	case "end_time":
		return weightEndTime
	case "category_slugs":
		return weightCategory
	case "external_url":
		return weightExternalURL
	}
	return 0
}

func hasPrice(ev *models.Event) bool {
	return ev.IsFree != nil || ev.Price != nil ||
		(ev.PriceInfo != nil && *ev.PriceInfo != "")
}
