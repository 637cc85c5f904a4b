// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

// Package enrich annotates normalized events with machine-generated
// metadata: a short Spanish summary, category suggestions, price
// inference, image-search keywords and a neutral restatement for the
// embedding classifier. Calls are batched per source tier to one of
// three model slots; an optional on-disk cache memoizes results across
// runs. The enricher never assigns image URLs and never touches the
// store.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/cartelera-project/cartelera/internal/classify"
	"github.com/cartelera-project/cartelera/internal/config"
	"github.com/cartelera-project/cartelera/internal/httpx"
	"github.com/cartelera-project/cartelera/internal/logging"
	"github.com/cartelera-project/cartelera/internal/metrics"
	"github.com/cartelera-project/cartelera/internal/models"
)

const (
	defaultBatchSize  = 10
	defaultCharBudget = 1200
	// promptVersion participates in cache keys; bump on prompt edits.
	promptVersion = "v3"
)

var systemPrompt = fmt.Sprintf(`Eres un catalogador de eventos culturales en España.
Recibes una lista JSON de eventos y devuelves SOLO un objeto JSON, sin texto adicional,
con una clave por cada "id" recibido. El valor de cada clave tiene esta forma:
{
  "summary": "resumen en español, neutro, máximo 280 caracteres",
  "category_slugs": ["hasta 4 etiquetas de: %s"],
  "is_free": true | false | null,
  "price": 12.5 | null,
  "price_details": "detalle de precios tal como lo anuncia la fuente" | null,
  "image_keywords": ["exactly three English noun phrases for stock photo search"],
  "normalized_text": "one concise neutral English sentence restating the event"
}
Usa null cuando un dato no pueda deducirse. No inventes precios ni fechas.`,
	strings.Join(classify.Slugs(), ", "))

const filterSystemPrompt = `Clasificas titulares de páginas de agenda cultural.
Recibes una lista JSON de {"id", "title"} y devuelves SOLO un objeto JSON
{"<id>": true|false} donde true significa que el titular anuncia un evento
cultural concreto con fecha (concierto, obra, exposición...) y false que es
otra cosa (noticia, aviso, navegación).`

// Enricher batches events against the generative model.
type Enricher struct {
	chat  *ChatClient
	cfg   config.EnrichConfig
	cache *Cache
}

// New builds the enricher. When cfg.CacheDir is set the Badger memo
// cache is opened there; call Close to release it.
func New(cfg config.EnrichConfig, hc *httpx.Client) (*Enricher, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.InputCharBudget <= 0 {
		cfg.InputCharBudget = defaultCharBudget
	}
	e := &Enricher{chat: NewChatClient(cfg, hc), cfg: cfg}
	if cfg.CacheDir != "" {
		cache, err := OpenCache(cfg.CacheDir, cfg.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("open enrichment cache: %w", err)
		}
		e.cache = cache
	}
	return e, nil
}

// Close releases the memo cache, if any.
func (e *Enricher) Close() error {
	if e.cache != nil {
		return e.cache.Close()
	}
	return nil
}

// Model returns the model slot serving a source tier. Unset slots fall
// back to the ORO model.
func (e *Enricher) Model(tier models.Tier) string {
	switch tier {
	case models.TierSilver:
		if e.cfg.ModelPlata != "" {
			return e.cfg.ModelPlata
		}
	case models.TierBronze:
		if e.cfg.ModelBronce != "" {
			return e.cfg.ModelBronce
		}
	}
	return e.cfg.ModelOro
}

// EnrichAll annotates the inputs in batches, returning records keyed
// by event ID. IDs the model failed on are absent from the map; the
// only error returned is context cancellation.
func (e *Enricher) EnrichAll(ctx context.Context, tier models.Tier, inputs []models.EnrichmentInput) (map[string]*models.Enrichment, error) {
	out := make(map[string]*models.Enrichment, len(inputs))
	model := e.Model(tier)

	pending := make([]models.EnrichmentInput, 0, len(inputs))
	for _, in := range inputs {
		in.Description = clip(in.Description, e.cfg.InputCharBudget)
		if e.cache != nil {
			if rec, ok := e.cache.Get(cacheKey(model, in)); ok {
				out[in.ID] = rec
				metrics.EnrichCacheHits.Inc()
				continue
			}
		}
		pending = append(pending, in)
	}

	for start := 0; start < len(pending); start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, len(pending))
		if err := e.enrichBatch(ctx, model, pending[start:end], out); err != nil {
			return out, err
		}
	}
	return out, nil
}

// enrichBatch runs one batch. A truncated or unparsable response
// splits the batch in half and retries the halves, down to single
// inputs; single inputs that still fail are dropped.
func (e *Enricher) enrichBatch(ctx context.Context, model string, batch []models.EnrichmentInput, out map[string]*models.Enrichment) error {
	if len(batch) == 0 {
		return nil
	}
	start := time.Now()
	content, truncated, err := e.chat.Complete(ctx, model, systemPrompt, userPrompt(batch))
	metrics.RecordEnrichBatch(model, time.Since(start), err)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.Warn().Err(err).
			Str("model", model).
			Int("batch", len(batch)).
			Msg("enrichment batch failed")
		return nil
	}

	recs, perr := parseEnrichments(content)
	if perr != nil || truncated {
		if len(batch) > 1 {
			metrics.EnrichBatchSplits.Inc()
			logging.Debug().
				Str("model", model).
				Int("batch", len(batch)).
				Bool("truncated", truncated).
				Msg("splitting enrichment batch")
			half := len(batch) / 2
			if err := e.enrichBatch(ctx, model, batch[:half], out); err != nil {
				return err
			}
			return e.enrichBatch(ctx, model, batch[half:], out)
		}
		if perr != nil {
			logging.Warn().Err(perr).
				Str("model", model).
				Str("id", batch[0].ID).
				Msg("unparsable enrichment, dropping")
			return nil
		}
		// Single truncated input that still parsed: keep what we got.
	}

	for _, in := range batch {
		rec := recs[in.ID]
		if rec == nil {
			continue
		}
		sanitize(rec)
		out[in.ID] = rec
		if e.cache != nil {
			e.cache.Put(cacheKey(model, in), rec)
		}
	}
	return nil
}

// FilterRelevant asks the filter model which inputs announce a real
// cultural event, for listing sources that mix events with news.
// Returns the IDs to keep; on any failure, or with no filter model
// configured, everything is kept.
func (e *Enricher) FilterRelevant(ctx context.Context, inputs []models.EnrichmentInput) map[string]bool {
	keep := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		keep[in.ID] = true
	}
	if e.cfg.ModelFilter == "" || len(inputs) == 0 {
		return keep
	}

	type headline struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	headlines := make([]headline, len(inputs))
	for i, in := range inputs {
		headlines[i] = headline{ID: in.ID, Title: in.Title}
	}
	payload, _ := json.Marshal(headlines)

	content, _, err := e.chat.Complete(ctx, e.cfg.ModelFilter, filterSystemPrompt, string(payload))
	if err != nil {
		logging.Warn().Err(err).Msg("relevance filter failed, keeping all")
		return keep
	}
	verdicts, err := parseVerdicts(content)
	if err != nil {
		logging.Warn().Err(err).Msg("relevance filter unparsable, keeping all")
		return keep
	}
	for id, ok := range verdicts {
		if _, known := keep[id]; known {
			keep[id] = ok
		}
	}
	return keep
}

// parseEnrichments decodes the model's id-keyed JSON object, stripping
// Markdown fences and falling back to the outermost {...} slice when
// the model wrapped the payload in prose.
func parseEnrichments(raw string) (map[string]*models.Enrichment, error) {
	cleaned := stripFences(raw)

	out := make(map[string]*models.Enrichment)
	if err := json.Unmarshal([]byte(cleaned), &out); err == nil {
		return out, nil
	}
	if slice, ok := outerObject(cleaned); ok {
		out = make(map[string]*models.Enrichment)
		if err := json.Unmarshal([]byte(slice), &out); err == nil {
			return out, nil
		}
	}
	return nil, errors.New("no JSON object in model response")
}

func parseVerdicts(raw string) (map[string]bool, error) {
	cleaned := stripFences(raw)

	out := make(map[string]bool)
	if err := json.Unmarshal([]byte(cleaned), &out); err == nil {
		return out, nil
	}
	if slice, ok := outerObject(cleaned); ok {
		out = make(map[string]bool)
		if err := json.Unmarshal([]byte(slice), &out); err == nil {
			return out, nil
		}
	}
	return nil, errors.New("no JSON object in model response")
}

func stripFences(raw string) string {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```JSON")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}

func outerObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1], true
	}
	return "", false
}

func userPrompt(batch []models.EnrichmentInput) string {
	payload, _ := json.Marshal(batch)
	return string(payload)
}

// sanitize enforces the output contract on one record: trimmed text,
// lowercase slugs capped at four, at most three image keywords.
func sanitize(rec *models.Enrichment) {
	rec.Summary = strings.TrimSpace(rec.Summary)
	rec.NormalizedText = strings.TrimSpace(rec.NormalizedText)
	rec.CategorySlugs = cleanList(rec.CategorySlugs, 4, true)
	rec.ImageKeywords = cleanList(rec.ImageKeywords, 3, false)
	if rec.PriceDetails != nil && strings.TrimSpace(*rec.PriceDetails) == "" {
		rec.PriceDetails = nil
	}
}

func cleanList(vals []string, limit int, lower bool) []string {
	out := vals[:0]
	for _, v := range vals {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if lower {
			v = strings.ToLower(v)
		}
		out = append(out, v)
		if len(out) == limit {
			break
		}
	}
	return out
}

// clip truncates text to a rune budget, marking the cut.
func clip(text string, budget int) string {
	runes := []rune(text)
	if len(runes) <= budget {
		return text
	}
	return string(runes[:budget]) + "..."
}
