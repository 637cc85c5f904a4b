// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

package models

import "time"

// SaveReport is the persister's per-batch outcome. The caller
// aggregates these into the run's PipelineResult.
type SaveReport struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Add accumulates another report into this one.
func (r *SaveReport) Add(other SaveReport) {
	r.Inserted += other.Inserted
	r.Updated += other.Updated
	r.Skipped += other.Skipped
	r.Failed += other.Failed
}

// PipelineResult summarizes one source's pipeline run. It is the
// orchestrator's only output and what the CLI renders.
type PipelineResult struct {
	SourceSlug string `json:"source_slug"`
	SourceName string `json:"source_name"`

	Raw          int  `json:"raw"`
	Parsed       int  `json:"parsed"`
	PastFiltered int  `json:"past_filtered"`
	LimitApplied bool `json:"limit_applied"`

	Enriched       int `json:"enriched"`
	ImagesResolved int `json:"images_resolved"`

	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`

	CategoryHistogram map[string]int `json:"category_histogram,omitempty"`
	RegionHistogram   map[string]int `json:"region_histogram,omitempty"`

	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`

	StartedAt time.Time `json:"started_at"`
}

// CountCategory increments the category histogram.
func (r *PipelineResult) CountCategory(slug string) {
	if r.CategoryHistogram == nil {
		r.CategoryHistogram = make(map[string]int)
	}
	r.CategoryHistogram[slug]++
}

// CountRegion increments the region histogram.
func (r *PipelineResult) CountRegion(region string) {
	if r.RegionHistogram == nil {
		r.RegionHistogram = make(map[string]int)
	}
	r.RegionHistogram[region]++
}
