// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

// Package pipeline drives one source through every ingestion stage:
// fetch, parse, freshness filter, enrichment, classification, image
// resolution, geocoding, dedup and persistence. It is the only
// package that composes stages; each dependency keeps a narrow
// contract so runs stay testable with fakes.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/cartelera-project/cartelera/internal/config"
	"github.com/cartelera-project/cartelera/internal/dedup"
	"github.com/cartelera-project/cartelera/internal/fetch"
	"github.com/cartelera-project/cartelera/internal/logging"
	"github.com/cartelera-project/cartelera/internal/metrics"
	"github.com/cartelera-project/cartelera/internal/models"
	"github.com/cartelera-project/cartelera/internal/parse"
	"github.com/cartelera-project/cartelera/internal/sources"
)

const defaultConcurrency = 3

// AdapterProvider picks the fetch adapter for a source tier.
type AdapterProvider interface {
	ForTier(tier models.Tier) fetch.Adapter
}

// Enricher is the generative-model stage.
type Enricher interface {
	EnrichAll(ctx context.Context, tier models.Tier, inputs []models.EnrichmentInput) (map[string]*models.Enrichment, error)
	FilterRelevant(ctx context.Context, inputs []models.EnrichmentInput) map[string]bool
}

// Classifier assigns category slugs to an annotated event.
type Classifier interface {
	Apply(ctx context.Context, ev *models.Event, rec *models.Enrichment) error
}

// ImageResolver fills an event's representative image.
type ImageResolver interface {
	Fill(ctx context.Context, ev *models.Event, keywords []string) error
	Flush() error
}

// Geocoder fills coordinates and administrative geography.
type Geocoder interface {
	Fill(ctx context.Context, ev *models.Event) error
}

// Deduplicator resolves an incoming event against persisted ones.
type Deduplicator interface {
	Resolve(ctx context.Context, incoming *models.Event) (*dedup.Resolution, error)
}

// Persister is the store surface the pipeline needs.
type Persister interface {
	SaveBatch(ctx context.Context, events []*models.Event, skipExisting bool) (models.SaveReport, error)
	AddContribution(ctx context.Context, c models.Contribution) error
	Exists(ctx context.Context, sourceSlug, externalID string) (bool, error)
}

// Publisher emits ingested events to downstream consumers.
type Publisher interface {
	PublishIngested(ctx context.Context, events []*models.Event) error
}

// Options tune a single run. The zero value is a full live run that
// skips events already persisted under the same identity.
type Options struct {
	// Limit caps events per source after the freshness filter.
	Limit int
	// DryRun executes every stage but writes nothing.
	DryRun bool
	// Upsert updates rows on identity collision instead of skipping.
	Upsert bool
	// SkipEnrichment bypasses the generative model.
	SkipEnrichment bool
	// SkipImages bypasses image resolution.
	SkipImages bool
	// Filter drops headline-irrelevant events with the small filter
	// model before enrichment.
	Filter bool
	// DebugPrefix dumps each source's raw records to
	// <prefix>-<slug>.json.
	DebugPrefix string
}

// Deps are the pipeline's stage dependencies. Registry, Fetchers,
// Classifier, Dedup and Store are required for live runs; Enricher,
// Images and Publisher may be nil when unconfigured and their stages
// are skipped.
type Deps struct {
	Registry   *sources.Registry
	Fetchers   AdapterProvider
	Enricher   Enricher
	Classifier Classifier
	Images     ImageResolver
	Geocoder   Geocoder
	Dedup      Deduplicator
	Store      Persister
	Publisher  Publisher
}

// Pipeline runs sources through the ingestion stages.
type Pipeline struct {
	registry    *sources.Registry
	fetchers    AdapterProvider
	enricher    Enricher
	classifier  Classifier
	images      ImageResolver
	geocoder    Geocoder
	dedup       Deduplicator
	store       Persister
	publisher   Publisher
	loc         *time.Location
	concurrency int
}

func New(deps Deps, cfg config.PipelineConfig) *Pipeline {
	loc := time.UTC
	if cfg.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Timezone); err == nil {
			loc = l
		} else {
			logging.Warn().Str("timezone", cfg.Timezone).Msg("unknown timezone, freshness uses UTC")
		}
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Pipeline{
		registry:    deps.Registry,
		fetchers:    deps.Fetchers,
		enricher:    deps.Enricher,
		classifier:  deps.Classifier,
		images:      deps.Images,
		geocoder:    deps.Geocoder,
		dedup:       deps.Dedup,
		store:       deps.Store,
		publisher:   deps.Publisher,
		loc:         loc,
		concurrency: concurrency,
	}
}

// RunMany fans slugs out over a bounded worker pool and returns one
// result per slug, in input order. A source's failure never aborts its
// siblings.
func (p *Pipeline) RunMany(ctx context.Context, slugs []string, opts Options) []*models.PipelineResult {
	ctx = logging.ContextWithNewRunID(ctx)
	results := make([]*models.PipelineResult, len(slugs))
	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup
	for i, slug := range slugs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = p.Run(ctx, slug, opts)
		}()
	}
	wg.Wait()
	return results
}

// Run ingests one source end to end and reports what happened. All
// failures land in the result; Run never panics and never returns nil.
func (p *Pipeline) Run(ctx context.Context, slug string, opts Options) *models.PipelineResult {
	started := time.Now()
	res := &models.PipelineResult{SourceSlug: slug, StartedAt: started}

	cfg := p.registry.Get(slug)
	if cfg == nil {
		return p.fail(res, started, fmt.Errorf("unknown source %q", slug))
	}
	res.SourceName = cfg.Name

	if logging.RunIDFromContext(ctx) == "" {
		ctx = logging.ContextWithNewRunID(ctx)
	}
	ctx = logging.ContextWithSource(ctx, slug)
	log := logging.Ctx(ctx)

	raw, err := p.fetchers.ForTier(cfg.Tier).Fetch(ctx, cfg, 0)
	if err != nil {
		return p.fail(res, started, fmt.Errorf("fetch: %w", err))
	}
	res.Raw = len(raw)
	metrics.RecordStage(slug, "raw", res.Raw)
	if opts.DebugPrefix != "" {
		dumpRaw(opts.DebugPrefix, slug, raw, log)
	}

	events := p.parseAll(cfg, raw, log)
	res.Parsed = len(events)
	metrics.RecordStage(slug, "parsed", res.Parsed)

	events, res.PastFiltered = p.filterFresh(events)
	metrics.RecordStage(slug, "fresh", len(events))

	if opts.Filter && p.enricher != nil && len(events) > 0 {
		events = p.filterRelevant(ctx, events, log)
	}

	if opts.Limit > 0 && len(events) > opts.Limit {
		events = events[:opts.Limit]
		res.LimitApplied = true
	}

	var recs map[string]*models.Enrichment
	if p.enricher != nil && !opts.SkipEnrichment && len(events) > 0 {
		recs, err = p.enricher.EnrichAll(ctx, cfg.Tier, enrichInputs(events))
		if err != nil {
			return p.fail(res, started, fmt.Errorf("enrich: %w", err))
		}
		for _, ev := range events {
			if rec := recs[ev.ExternalID]; rec != nil {
				applyEnrichment(ev, rec)
				res.Enriched++
			}
		}
		metrics.RecordStage(slug, "enriched", res.Enriched)
	}

	for _, ev := range events {
		inferFreeAdmission(ev)
	}

	for _, ev := range events {
		if p.classifier != nil {
			if err := p.classifier.Apply(ctx, ev, recs[ev.ExternalID]); err != nil {
				return p.fail(res, started, fmt.Errorf("classify: %w", err))
			}
		}
		res.CountCategory(ev.PrimaryCategory())
	}

	if p.images != nil && !opts.SkipImages {
		for _, ev := range events {
			var keywords []string
			if rec := recs[ev.ExternalID]; rec != nil {
				keywords = rec.ImageKeywords
			}
			if err := p.images.Fill(ctx, ev, keywords); err != nil {
				if ctx.Err() != nil {
					return p.fail(res, started, err)
				}
				log.Warn().Err(err).Str("event", ev.IdentityKey()).Msg("image resolution failed")
				continue
			}
			if ev.HasImage() {
				res.ImagesResolved++
			}
		}
		if err := p.images.Flush(); err != nil {
			log.Warn().Err(err).Msg("image usage cache not persisted")
		}
	}

	for _, ev := range events {
		if p.geocoder != nil {
			if err := p.geocoder.Fill(ctx, ev); err != nil {
				return p.fail(res, started, fmt.Errorf("geocode: %w", err))
			}
		}
		if ev.Region != nil && *ev.Region != "" {
			res.CountRegion(*ev.Region)
		}
	}

	inserts, merges, err := p.resolveAll(ctx, events, opts, res, log)
	if err != nil {
		return p.fail(res, started, err)
	}

	if err := p.persist(ctx, inserts, merges, opts, res, log); err != nil {
		return p.fail(res, started, err)
	}

	if p.publisher != nil && !opts.DryRun {
		if published := append(inserts, merges...); len(published) > 0 {
			if err := p.publisher.PublishIngested(ctx, published); err != nil {
				log.Warn().Err(err).Msg("event publishing failed")
			}
		}
	}

	res.Success = true
	res.Duration = time.Since(started)
	metrics.RecordSourceRun(slug, res.Duration, nil)
	log.Info().
		Int("raw", res.Raw).
		Int("parsed", res.Parsed).
		Int("past_filtered", res.PastFiltered).
		Int("inserted", res.Inserted).
		Int("updated", res.Updated).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Dur("duration", res.Duration).
		Msg("source ingested")
	return res
}

func (p *Pipeline) fail(res *models.PipelineResult, started time.Time, err error) *models.PipelineResult {
	res.Success = false
	res.Error = err.Error()
	res.Duration = time.Since(started)
	metrics.RecordSourceRun(res.SourceSlug, res.Duration, err)
	logging.Warn().Err(err).Str("source", res.SourceSlug).Msg("source run failed")
	return res
}

// parseAll maps raw records to events, dropping unparsable records and
// repeats of an external id already seen this run. Overlapping pages
// and feeds that list an event twice would otherwise produce colliding
// rows.
func (p *Pipeline) parseAll(cfg *sources.SourceConfig, raw []fetch.RawRecord, log *zerolog.Logger) []*models.Event {
	parser := parse.New(cfg)
	scrapedAt := time.Now().UTC()
	events := make([]*models.Event, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, r := range raw {
		fields := r.Fields
		if r.Item != nil {
			fields = parser.Flatten(r.Item)
		}
		ev, err := parser.Event(fields, scrapedAt)
		if err != nil {
			log.Debug().Err(err).Msg("record dropped")
			continue
		}
		if seen[ev.IdentityKey()] {
			log.Debug().Str("external_id", ev.ExternalID).Msg("duplicate record dropped")
			continue
		}
		seen[ev.IdentityKey()] = true
		events = append(events, ev)
	}
	return events
}

// filterFresh drops events whose latest date is before today's civil
// date in the configured timezone.
func (p *Pipeline) filterFresh(events []*models.Event) ([]*models.Event, int) {
	now := time.Now().In(p.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	kept := events[:0]
	for _, ev := range events {
		if ev.LatestDate().Before(today) {
			continue
		}
		kept = append(kept, ev)
	}
	return kept, len(events) - len(kept)
}

func (p *Pipeline) filterRelevant(ctx context.Context, events []*models.Event, log *zerolog.Logger) []*models.Event {
	verdicts := p.enricher.FilterRelevant(ctx, enrichInputs(events))
	if len(verdicts) == 0 {
		return events
	}
	total := len(events)
	kept := events[:0]
	for _, ev := range events {
		if keep, ok := verdicts[ev.ExternalID]; ok && !keep {
			continue
		}
		kept = append(kept, ev)
	}
	if dropped := total - len(kept); dropped > 0 {
		log.Debug().Int("dropped", dropped).Msg("relevance filter applied")
	}
	return kept
}

// resolveAll runs dedup over the annotated events in pipeline order.
// Inserts and merges come back separately because merges always update
// their existing row regardless of the skip-existing setting.
func (p *Pipeline) resolveAll(ctx context.Context, events []*models.Event, opts Options, res *models.PipelineResult, log *zerolog.Logger) (inserts, merges []*models.Event, err error) {
	if p.dedup == nil {
		return events, nil, nil
	}
	for _, ev := range events {
		resolution, err := p.dedup.Resolve(ctx, ev)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, fmt.Errorf("dedup: %w", err)
			}
			log.Warn().Err(err).Str("event", ev.IdentityKey()).Msg("dedup lookup failed")
			res.Failed++
			continue
		}
		switch resolution.Action {
		case dedup.ActionMerge:
			merged := resolution.Event
			merged.Contributions = append(merged.Contributions, resolution.Contribution)
			merges = append(merges, merged)
		case dedup.ActionSkip:
			res.Skipped++
			if !opts.DryRun && p.store != nil {
				if err := p.store.AddContribution(ctx, resolution.Contribution); err != nil {
					log.Warn().Err(err).Str("event", ev.IdentityKey()).Msg("contribution not recorded")
				}
			}
		default:
			ev.Contributions = append(ev.Contributions, resolution.Contribution)
			inserts = append(inserts, ev)
		}
	}
	return inserts, merges, nil
}

func (p *Pipeline) persist(ctx context.Context, inserts, merges []*models.Event, opts Options, res *models.PipelineResult, log *zerolog.Logger) error {
	if p.store == nil {
		return nil
	}
	if opts.DryRun {
		for _, ev := range inserts {
			exists, err := p.store.Exists(ctx, ev.SourceSlug, ev.ExternalID)
			if err != nil {
				if ctx.Err() != nil {
					return fmt.Errorf("dry-run probe: %w", err)
				}
				log.Warn().Err(err).Str("event", ev.IdentityKey()).Msg("dry-run probe failed")
				res.Failed++
				continue
			}
			switch {
			case !exists:
				res.Inserted++
			case opts.Upsert:
				res.Updated++
			default:
				res.Skipped++
			}
		}
		res.Updated += len(merges)
		return nil
	}

	report, err := p.store.SaveBatch(ctx, inserts, !opts.Upsert)
	res.Inserted += report.Inserted
	res.Updated += report.Updated
	res.Skipped += report.Skipped
	res.Failed += report.Failed
	if err != nil {
		return fmt.Errorf("persist: %w", err)
	}

	// Merges update rows owned by another source's identity, so the
	// skip-existing setting never applies to them.
	mergeReport, err := p.store.SaveBatch(ctx, merges, false)
	res.Updated += mergeReport.Updated
	res.Inserted += mergeReport.Inserted
	res.Failed += mergeReport.Failed
	if err != nil {
		return fmt.Errorf("persist merges: %w", err)
	}
	metrics.RecordStage(res.SourceSlug, "persisted", report.Inserted+report.Updated+mergeReport.Updated)
	return nil
}

func enrichInputs(events []*models.Event) []models.EnrichmentInput {
	inputs := make([]models.EnrichmentInput, 0, len(events))
	for _, ev := range events {
		inputs = append(inputs, models.EnrichmentInput{
			ID:          ev.ExternalID,
			Title:       ev.Title,
			Description: ev.Description,
			Venue:       models.StrOrEmpty(ev.VenueName),
			Location:    locationOf(ev),
			TypeHint:    models.StrOrEmpty(ev.TypeHint),
			Audience:    models.StrOrEmpty(ev.Audience),
			PriceInfo:   models.StrOrEmpty(ev.PriceInfo),
		})
	}
	return inputs
}

func locationOf(ev *models.Event) string {
	parts := make([]string, 0, 2)
	if city := models.StrOrEmpty(ev.City); city != "" {
		parts = append(parts, city)
	}
	if prov := models.StrOrEmpty(ev.Province); prov != "" && !strings.EqualFold(prov, models.StrOrEmpty(ev.City)) {
		parts = append(parts, prov)
	}
	return strings.Join(parts, ", ")
}

// applyEnrichment copies generated metadata onto the event. Source
// data wins: pricing fields fill only when the parser left them empty.
func applyEnrichment(ev *models.Event, rec *models.Enrichment) {
	if rec.Summary != "" {
		ev.Summary = rec.Summary
	}
	if ev.IsFree == nil && rec.IsFree != nil {
		ev.IsFree = rec.IsFree
	}
	if ev.Price == nil && rec.Price != nil {
		ev.Price = rec.Price
	}
	if ev.PriceInfo == nil && rec.PriceDetails != nil && *rec.PriceDetails != "" {
		ev.PriceInfo = rec.PriceDetails
	}
}

// inferFreeAdmission marks events at always-free venue kinds when
// neither the source nor the enricher stated any pricing.
func inferFreeAdmission(ev *models.Event) {
	if ev.IsFree != nil || ev.Price != nil || ev.PriceInfo != nil {
		return
	}
	if parse.FreeVenue(models.StrOrEmpty(ev.VenueName)) {
		ev.IsFree = models.BoolPtr(true)
	}
}

func dumpRaw(prefix, slug string, raw []fetch.RawRecord, log *zerolog.Logger) {
	path := fmt.Sprintf("%s-%s.json", prefix, slug)
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("raw dump not serializable")
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("raw dump not written")
		return
	}
	log.Debug().Str("path", path).Int("records", len(raw)).Msg("raw payload dumped")
}
