// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

package sources

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/cartelera-project/cartelera/internal/models"
)

// Registry is the process-wide source catalog. It is populated once at
// startup and read-only during pipeline runs, so lookups take no lock.
type Registry struct {
	bySlug map[string]*SourceConfig
	order  []string
}

// NewRegistry builds a registry from the given configs, validating
// each. Registering the same slug twice overwrites the earlier entry.
func NewRegistry(configs []SourceConfig) (*Registry, error) {
	r := &Registry{bySlug: make(map[string]*SourceConfig, len(configs))}
	for i := range configs {
		if err := r.register(&configs[i]); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustNewRegistry is NewRegistry for the bundled catalog, where an
// invalid entry is a programmer error.
func MustNewRegistry(configs []SourceConfig) *Registry {
	r, err := NewRegistry(configs)
	if err != nil {
		panic(fmt.Sprintf("sources: invalid bundled catalog: %v", err))
	}
	return r
}

func (r *Registry) register(cfg *SourceConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, exists := r.bySlug[cfg.Slug]; !exists {
		r.order = append(r.order, cfg.Slug)
	}
	r.bySlug[cfg.Slug] = cfg
	return nil
}

// Get returns the config for slug, or nil when unknown.
func (r *Registry) Get(slug string) *SourceConfig {
	return r.bySlug[slug]
}

// All returns every config in registration order.
func (r *Registry) All() []*SourceConfig {
	out := make([]*SourceConfig, 0, len(r.order))
	for _, slug := range r.order {
		out = append(out, r.bySlug[slug])
	}
	return out
}

// Active returns every active config in registration order.
func (r *Registry) Active() []*SourceConfig {
	out := make([]*SourceConfig, 0, len(r.order))
	for _, slug := range r.order {
		if cfg := r.bySlug[slug]; cfg.Active {
			out = append(out, cfg)
		}
	}
	return out
}

// ByTier returns active configs of the given tier in registration order.
func (r *Registry) ByTier(tier models.Tier) []*SourceConfig {
	out := make([]*SourceConfig, 0)
	for _, slug := range r.order {
		if cfg := r.bySlug[slug]; cfg.Active && cfg.Tier == tier {
			out = append(out, cfg)
		}
	}
	return out
}

// ByRegion returns active configs whose region matches name,
// case-insensitively.
func (r *Registry) ByRegion(name string) []*SourceConfig {
	want := strings.ToLower(strings.TrimSpace(name))
	out := make([]*SourceConfig, 0)
	for _, slug := range r.order {
		if cfg := r.bySlug[slug]; cfg.Active && strings.ToLower(cfg.Region) == want {
			out = append(out, cfg)
		}
	}
	return out
}

// CountByTier returns active source counts keyed by tier.
func (r *Registry) CountByTier() map[models.Tier]int {
	counts := make(map[models.Tier]int, 3)
	for _, cfg := range r.bySlug {
		if cfg.Active {
			counts[cfg.Tier]++
		}
	}
	return counts
}

// Regions returns the distinct regions of active sources, sorted.
func (r *Registry) Regions() []string {
	seen := make(map[string]struct{})
	for _, cfg := range r.bySlug {
		if cfg.Active {
			seen[cfg.Region] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for region := range seen {
		out = append(out, region)
	}
	sort.Strings(out)
	return out
}

// hostOf extracts the hostname from a URL for rate-limit keying.
func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Hostname()
}
