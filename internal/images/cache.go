// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

package images

import (
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/cartelera-project/cartelera/internal/logging"
)

// usageCache tracks which image URLs have been assigned and which
// URLs each keyword query has already produced, so repeated runs do
// not hand every concert the same stock photo. Persisted as a JSON
// artifact with a temp-then-rename write.
type usageCache struct {
	mu    sync.Mutex
	path  string
	dirty bool
	data  cacheData
}

type cacheData struct {
	Used    map[string]bool     `json:"used"`
	ByQuery map[string][]string `json:"by_query"`
}

// openUsageCache loads the artifact at path. A missing or unreadable
// file starts an empty cache; with an empty path the cache is
// memory-only.
func openUsageCache(path string) *usageCache {
	c := &usageCache{path: path}
	c.data.Used = make(map[string]bool)
	c.data.ByQuery = make(map[string][]string)
	if path == "" {
		return c
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return c
	}
	var data cacheData
	if err := json.Unmarshal(raw, &data); err != nil {
		logging.Debug().Err(err).Str("path", path).Msg("discarding unreadable image cache")
		return c
	}
	if data.Used != nil {
		c.data.Used = data.Used
	}
	if data.ByQuery != nil {
		c.data.ByQuery = data.ByQuery
	}
	return c
}

func (c *usageCache) isUsed(rawURL string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data.Used[rawURL]
}

func (c *usageCache) markUsed(rawURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.data.Used[rawURL] {
		c.data.Used[rawURL] = true
		c.dirty = true
	}
}

// remember appends URLs a query produced, keeping the list unique.
func (c *usageCache) remember(key string, urls []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	known := c.data.ByQuery[key]
	for _, u := range urls {
		if !slices.Contains(known, u) {
			known = append(known, u)
			c.dirty = true
		}
	}
	c.data.ByQuery[key] = known
}

func (c *usageCache) recall(key string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.data.ByQuery[key])
}

// save persists the cache when it changed since the last save.
func (c *usageCache) save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.path == "" || !c.dirty {
		return nil
	}
	data, err := json.Marshal(c.data)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, c.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	c.dirty = false
	return nil
}

// queryKey folds a keyword set to a stable cache key.
func queryKey(keywords []string) string {
	normalized := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			normalized = append(normalized, k)
		}
	}
	slices.Sort(normalized)
	sum := sha1.Sum([]byte(strings.Join(normalized, "|"))) //nolint:gosec // G401: cache key, not security
	return hex.EncodeToString(sum[:])
}
