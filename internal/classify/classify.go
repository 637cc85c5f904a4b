// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

// Package classify assigns controlled-vocabulary categories to events.
// The primary path embeds the event's normalized text and scores it
// against pre-computed vocabulary embeddings by cosine similarity; when
// the endpoint is unavailable or nothing clears the threshold it falls
// back to the categories the enricher suggested. Vocabulary embeddings
// are cached to a JSON artifact so a run embeds the vocabulary at most
// once.
package classify

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/cartelera-project/cartelera/internal/config"
	"github.com/cartelera-project/cartelera/internal/httpx"
	"github.com/cartelera-project/cartelera/internal/logging"
	"github.com/cartelera-project/cartelera/internal/metrics"
	"github.com/cartelera-project/cartelera/internal/models"
)

const (
	defaultThreshold = 0.30
	defaultTopK      = 3
	// fallbackDescChars bounds the description slice used when no
	// normalized text is available.
	fallbackDescChars = 500
)

// Classifier scores events against the category vocabulary.
type Classifier struct {
	embed        *EmbedClient
	threshold    float64
	topK         int
	artifactPath string

	mu       sync.Mutex
	vectors  map[string][]float64
	buildErr error
}

// New builds the classifier. With cfg.CacheDir set, vocabulary
// embeddings persist across runs in a version-keyed JSON artifact.
func New(cfg config.EmbedConfig, hc *httpx.Client) *Classifier {
	c := &Classifier{
		embed:     NewEmbedClient(cfg, hc),
		threshold: cfg.Threshold,
		topK:      cfg.TopK,
	}
	if c.threshold <= 0 {
		c.threshold = defaultThreshold
	}
	if c.topK <= 0 {
		c.topK = defaultTopK
	}
	if cfg.CacheDir != "" {
		c.artifactPath = filepath.Join(cfg.CacheDir, "embeddings-"+VocabularyVersion+".json")
	}
	return c
}

// Apply fills ev.CategorySlugs. The embedding path scores the event
// against every vocabulary category; the fallback path reuses the
// enricher's suggestions filtered to valid slugs. A non-nil error
// means the context was canceled, every other failure degrades to the
// fallback.
func (c *Classifier) Apply(ctx context.Context, ev *models.Event, rec *models.Enrichment) error {
	vectors, err := c.ensureVectors(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.fallback(ev, rec, "vocabulary")
		return nil
	}

	vec, err := c.embed.Embed(ctx, embedText(ev, rec))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.Debug().Err(err).Str("event", ev.Title).Msg("event embedding failed")
		c.fallback(ev, rec, "endpoint")
		return nil
	}

	slugs := c.score(vec, vectors)
	if len(slugs) == 0 {
		c.fallback(ev, rec, "threshold")
		return nil
	}
	ev.CategorySlugs = slugs
	return nil
}

// embedText picks the embedding input: the enricher's neutral
// restatement when present, else title plus a bounded description
// slice.
func embedText(ev *models.Event, rec *models.Enrichment) string {
	if rec != nil && rec.NormalizedText != "" {
		return rec.NormalizedText
	}
	text := ev.Title
	if desc := strings.TrimSpace(ev.Description); desc != "" {
		if runes := []rune(desc); len(runes) > fallbackDescChars {
			desc = string(runes[:fallbackDescChars])
		}
		text += " " + desc
	}
	return text
}

// score returns the slugs clearing the threshold, best first, capped
// at top K. Ties break on slug name so output is deterministic.
func (c *Classifier) score(vec []float64, vectors map[string][]float64) []string {
	type scored struct {
		slug string
		sim  float64
	}
	matches := make([]scored, 0, len(vectors))
	for slug, ref := range vectors {
		if sim := cosine(vec, ref); sim >= c.threshold {
			matches = append(matches, scored{slug: slug, sim: sim})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].sim != matches[j].sim {
			return matches[i].sim > matches[j].sim
		}
		return matches[i].slug < matches[j].slug
	})
	if len(matches) > c.topK {
		matches = matches[:c.topK]
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.slug
	}
	return out
}

// fallback assigns the enricher's categories, dropping slugs outside
// the vocabulary. With nothing usable the slugs stay empty and
// PrimaryCategory reports "other".
func (c *Classifier) fallback(ev *models.Event, rec *models.Enrichment, reason string) {
	metrics.ClassifyFallbacks.WithLabelValues(reason).Inc()
	if rec == nil {
		return
	}
	slugs := make([]string, 0, len(rec.CategorySlugs))
	for _, s := range rec.CategorySlugs {
		if ValidSlug(s) {
			slugs = append(slugs, s)
		}
	}
	if len(slugs) > c.topK {
		slugs = slugs[:c.topK]
	}
	if len(slugs) > 0 {
		ev.CategorySlugs = slugs
	}
}

// ensureVectors returns the vocabulary embeddings, loading the artifact
// or embedding every category prompt on first use. A build failure is
// remembered so one outage does not re-embed the vocabulary per event.
func (c *Classifier) ensureVectors(ctx context.Context) (map[string][]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vectors != nil {
		return c.vectors, nil
	}
	if c.buildErr != nil {
		return nil, c.buildErr
	}

	if vectors := c.loadArtifact(); vectors != nil {
		c.vectors = vectors
		return c.vectors, nil
	}

	vectors := make(map[string][]float64, len(Vocabulary()))
	for _, cat := range Vocabulary() {
		vec, err := c.embed.Embed(ctx, cat.Prompt)
		if err != nil {
			if ctx.Err() == nil {
				c.buildErr = fmt.Errorf("embed vocabulary %q: %w", cat.Slug, err)
				logging.Warn().Err(c.buildErr).Msg("vocabulary embedding failed")
			}
			return nil, err
		}
		vectors[cat.Slug] = vec
	}
	c.saveArtifact(vectors)
	c.vectors = vectors
	logging.Debug().
		Int("categories", len(vectors)).
		Str("version", VocabularyVersion).
		Msg("vocabulary embeddings ready")
	return c.vectors, nil
}

// artifact is the on-disk shape of the vocabulary embeddings.
type artifact struct {
	Version string               `json:"version"`
	Model   string               `json:"model"`
	Vectors map[string][]float64 `json:"vectors"`
}

// loadArtifact returns the cached vocabulary embeddings, or nil when
// absent, unreadable, or keyed to another vocabulary version or model.
func (c *Classifier) loadArtifact() map[string][]float64 {
	if c.artifactPath == "" {
		return nil
	}
	data, err := os.ReadFile(c.artifactPath)
	if err != nil {
		return nil
	}
	var art artifact
	if err := json.Unmarshal(data, &art); err != nil {
		logging.Debug().Err(err).Str("path", c.artifactPath).Msg("discarding unreadable embeddings artifact")
		return nil
	}
	if art.Version != VocabularyVersion || art.Model != c.embed.model || len(art.Vectors) == 0 {
		return nil
	}
	return art.Vectors
}

// saveArtifact persists the embeddings with a temp-then-rename write.
// Failures are logged and ignored; the artifact is an optimization.
func (c *Classifier) saveArtifact(vectors map[string][]float64) {
	if c.artifactPath == "" {
		return
	}
	data, err := json.Marshal(artifact{
		Version: VocabularyVersion,
		Model:   c.embed.model,
		Vectors: vectors,
	})
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(c.artifactPath), 0o755); err != nil {
		logging.Debug().Err(err).Msg("embeddings artifact dir")
		return
	}
	tmp := c.artifactPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		logging.Debug().Err(err).Msg("write embeddings artifact")
		return
	}
	if err := os.Rename(tmp, c.artifactPath); err != nil {
		_ = os.Remove(tmp)
		logging.Debug().Err(err).Msg("rename embeddings artifact")
	}
}

func cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
