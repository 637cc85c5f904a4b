// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/cartelera-project/cartelera/internal/classify"
	"github.com/cartelera-project/cartelera/internal/config"
	"github.com/cartelera-project/cartelera/internal/dedup"
	"github.com/cartelera-project/cartelera/internal/enrich"
	"github.com/cartelera-project/cartelera/internal/fetch"
	"github.com/cartelera-project/cartelera/internal/geo"
	"github.com/cartelera-project/cartelera/internal/httpx"
	"github.com/cartelera-project/cartelera/internal/images"
	"github.com/cartelera-project/cartelera/internal/logging"
	"github.com/cartelera-project/cartelera/internal/metrics"
	"github.com/cartelera-project/cartelera/internal/models"
	"github.com/cartelera-project/cartelera/internal/pipeline"
	"github.com/cartelera-project/cartelera/internal/publish"
	"github.com/cartelera-project/cartelera/internal/ratelimit"
	"github.com/cartelera-project/cartelera/internal/render"
	"github.com/cartelera-project/cartelera/internal/sources"
	"github.com/cartelera-project/cartelera/internal/store"
)

var (
	insertSources     []string
	insertTier        string
	insertRegion      string
	insertLimit       int
	insertDryRun      bool
	insertUpsert      bool
	insertSkipEnrich  bool
	insertSkipImages  bool
	insertFilter      bool
	insertDebugPrefix string
)

var insertCmd = &cobra.Command{
	Use:   "insert",
	Short: "Ingest events from the configured sources",
	Long: `Fetch, normalize, enrich and persist events. With no selection flags
every active source runs; --source, --tier and --region narrow the set.
--source cannot be combined with --tier or --region.`,
	RunE: runInsert,
}

func init() {
	rootCmd.AddCommand(insertCmd)
	f := insertCmd.Flags()
	f.StringSliceVarP(&insertSources, "source", "s", nil, "source slug to ingest (repeatable)")
	f.StringVarP(&insertTier, "tier", "t", "", "ingest every active source of a tier (gold|silver|bronze)")
	f.StringVarP(&insertRegion, "region", "r", "", "restrict to sources of one region")
	f.IntVarP(&insertLimit, "limit", "l", 0, "cap events per source after the freshness filter")
	f.BoolVar(&insertDryRun, "dry-run", false, "run every stage but write nothing")
	f.BoolVar(&insertUpsert, "upsert", false, "update already persisted events instead of skipping them")
	f.BoolVar(&insertSkipEnrich, "skip-enrichment", false, "bypass the generative model")
	f.BoolVar(&insertSkipImages, "skip-images", false, "bypass image resolution")
	f.BoolVar(&insertFilter, "filter", false, "drop likely-irrelevant events with the filter model before enrichment")
	f.StringVar(&insertDebugPrefix, "debug-prefix", "", "dump each source's raw records to <prefix>-<slug>.json")
}

func runInsert(cmd *cobra.Command, _ []string) error {
	slugs, err := selectSlugs(registry, insertSources, insertTier, insertRegion)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, cleanup, err := buildPipeline(ctx, cfg, registry, insertDryRun)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr); err != nil {
				logging.Warn().Err(err).Str("addr", cfg.Metrics.Addr).Msg("metrics listener stopped")
			}
		}()
	}

	results := p.RunMany(ctx, slugs, pipeline.Options{
		Limit:          insertLimit,
		DryRun:         insertDryRun,
		Upsert:         insertUpsert,
		SkipEnrichment: insertSkipEnrich,
		SkipImages:     insertSkipImages,
		Filter:         insertFilter,
		DebugPrefix:    insertDebugPrefix,
	})

	renderResults(cmd.OutOrStdout(), results, insertDryRun)

	succeeded := 0
	for _, res := range results {
		if res.Success {
			succeeded++
		}
	}
	if succeeded == 0 {
		return internalf("all %d selected sources failed", len(results))
	}
	return nil
}

// selectSlugs resolves the selection flags to source slugs. Explicit
// slugs bypass the tier and region filters, so combining them is a
// usage error.
func selectSlugs(reg *sources.Registry, slugs []string, tier, region string) ([]string, error) {
	if len(slugs) > 0 {
		if tier != "" {
			return nil, usagef("--source and --tier are mutually exclusive")
		}
		if region != "" {
			return nil, usagef("--source and --region are mutually exclusive")
		}
		for _, slug := range slugs {
			if reg.Get(slug) == nil {
				return nil, usagef("unknown source %q (run 'cartelera sources' to list them)", slug)
			}
		}
		return slugs, nil
	}

	var cfgs []*sources.SourceConfig
	switch {
	case tier != "":
		parsed := models.ParseTier(tier)
		if parsed == "" {
			return nil, usagef("unknown tier %q: use gold, silver or bronze", tier)
		}
		cfgs = reg.ByTier(parsed)
		if region != "" {
			kept := cfgs[:0]
			for _, c := range cfgs {
				if strings.EqualFold(c.Region, strings.TrimSpace(region)) {
					kept = append(kept, c)
				}
			}
			cfgs = kept
		}
	case region != "":
		cfgs = reg.ByRegion(region)
	default:
		cfgs = reg.Active()
	}
	if len(cfgs) == 0 {
		return nil, usagef("no active sources match the selection")
	}

	out := make([]string, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, c.Slug)
	}
	return out, nil
}

// buildPipeline wires the stage dependencies from configuration. The
// returned cleanup closes them in reverse construction order. Optional
// stages (enrichment, publishing) degrade to nil with a warning; a
// missing DSN is fatal except on dry runs, which then skip dedup and
// persistence entirely.
func buildPipeline(ctx context.Context, cfg *config.Config, reg *sources.Registry, dryRun bool) (*pipeline.Pipeline, func(), error) {
	limiter := ratelimit.New(cfg.RateLimit)
	hc := httpx.New(cfg.HTTP.Timeout, cfg.HTTP.UserAgent, cfg.Retry, limiter)
	renderer := render.New(cfg.Render, hc)

	deps := pipeline.Deps{
		Registry:   reg,
		Fetchers:   fetch.NewFetchers(hc, renderer),
		Classifier: classify.New(cfg.Embed, hc),
		Images:     images.New(cfg.Images, hc),
		Geocoder:   geo.New(cfg.Geocoder, hc),
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Enrich.APIKey != "" {
		enricher, err := enrich.New(cfg.Enrich, hc)
		if err != nil {
			cleanup()
			return nil, nil, internalf("configure enrichment: %v", err)
		}
		deps.Enricher = enricher
		closers = append(closers, func() {
			if err := enricher.Close(); err != nil {
				logging.Warn().Err(err).Msg("enrichment cache not flushed")
			}
		})
	} else {
		logging.Warn().Msg("no model key configured, enrichment disabled")
	}

	switch {
	case cfg.Database.DSN != "":
		st, err := store.New(ctx, cfg.Database)
		if err != nil {
			cleanup()
			return nil, nil, internalf("connect database: %v", err)
		}
		deps.Store = st
		deps.Dedup = dedup.New(st)
		closers = append(closers, st.Close)
	case dryRun:
		logging.Warn().Msg("no database configured, dry run skips dedup and persistence")
	default:
		cleanup()
		return nil, nil, internalf("database dsn not configured (set DATABASE_URL or use --dry-run)")
	}

	if !dryRun {
		pub, err := publish.New(cfg.NATS)
		if err != nil {
			logging.Warn().Err(err).Msg("event publishing disabled")
		} else if pub != nil {
			deps.Publisher = pub
			closers = append(closers, func() {
				if err := pub.Close(); err != nil {
					logging.Warn().Err(err).Msg("publisher close failed")
				}
			})
		}
	}

	return pipeline.New(deps, cfg.Pipeline), cleanup, nil
}

// renderResults prints the per-source summary table, failure details
// and aggregate histograms.
func renderResults(w io.Writer, results []*models.PipelineResult, dryRun bool) {
	t := newTable(w, []string{
		"SOURCE", "RAW", "PARSED", "PAST", "ENRICHED", "IMAGES",
		"INSERTED", "UPDATED", "SKIPPED", "FAILED", "DURATION", "STATUS",
	})

	var total models.SaveReport
	rows := make([][]string, 0, len(results)+1)
	for _, res := range results {
		status := color.GreenString("ok")
		if !res.Success {
			status = color.RedString("failed")
		} else if res.LimitApplied {
			status = color.GreenString("ok") + " (limited)"
		}
		rows = append(rows, []string{
			res.SourceSlug,
			fmt.Sprintf("%d", res.Raw),
			fmt.Sprintf("%d", res.Parsed),
			fmt.Sprintf("%d", res.PastFiltered),
			fmt.Sprintf("%d", res.Enriched),
			fmt.Sprintf("%d", res.ImagesResolved),
			fmt.Sprintf("%d", res.Inserted),
			fmt.Sprintf("%d", res.Updated),
			fmt.Sprintf("%d", res.Skipped),
			fmt.Sprintf("%d", res.Failed),
			res.Duration.Round(time.Millisecond).String(),
			status,
		})
		total.Add(models.SaveReport{
			Inserted: res.Inserted,
			Updated:  res.Updated,
			Skipped:  res.Skipped,
			Failed:   res.Failed,
		})
	}
	if len(results) > 1 {
		rows = append(rows, []string{
			"TOTAL", "", "", "", "", "",
			fmt.Sprintf("%d", total.Inserted),
			fmt.Sprintf("%d", total.Updated),
			fmt.Sprintf("%d", total.Skipped),
			fmt.Sprintf("%d", total.Failed),
			"", "",
		})
	}
	t.Bulk(rows)
	t.Render()

	for _, res := range results {
		if !res.Success {
			fmt.Fprintf(w, "%s %s: %s\n", color.RedString("✗"), res.SourceSlug, res.Error)
		}
	}

	if line := histogramLine(results, func(r *models.PipelineResult) map[string]int { return r.CategoryHistogram }); line != "" {
		fmt.Fprintf(w, "categories: %s\n", line)
	}
	if line := histogramLine(results, func(r *models.PipelineResult) map[string]int { return r.RegionHistogram }); line != "" {
		fmt.Fprintf(w, "regions: %s\n", line)
	}

	if dryRun {
		fmt.Fprintln(w, color.YellowString("dry run: nothing was written"))
	}
}

// histogramLine merges per-source histograms and formats them largest
// first, ties alphabetically.
func histogramLine(results []*models.PipelineResult, pick func(*models.PipelineResult) map[string]int) string {
	merged := make(map[string]int)
	for _, res := range results {
		for k, v := range pick(res) {
			merged[k] += v
		}
	}
	if len(merged) == 0 {
		return ""
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if merged[keys[i]] != merged[keys[j]] {
			return merged[keys[i]] > merged[keys[j]]
		}
		return keys[i] < keys[j]
	})
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, merged[k]))
	}
	return strings.Join(parts, " ")
}
