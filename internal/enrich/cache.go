// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

package enrich

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/cartelera-project/cartelera/internal/logging"
	"github.com/cartelera-project/cartelera/internal/models"
)

const cacheKeyPrefix = "enrich:"

// Cache memoizes enrichment records on disk so identical source items
// across runs skip the model entirely. Keys hash the full prompt
// content, so any change to the input or prompt version misses.
type Cache struct {
	db  *badger.DB
	ttl time.Duration
}

// OpenCache opens (or creates) the Badger-backed memo cache at dir.
func OpenCache(dir string, ttl time.Duration) (*Cache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Cache{db: db, ttl: ttl}, nil
}

// Get returns the cached record for key, if present and unexpired.
// Cache errors count as misses; the model call is the fallback.
func (c *Cache) Get(key string) (*models.Enrichment, bool) {
	var rec models.Enrichment
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(cacheKeyPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			logging.Debug().Err(err).Msg("enrichment cache read failed")
		}
		return nil, false
	}
	return &rec, true
}

// Put stores a record under key. Write failures are logged and
// swallowed; a cold cache only costs another model call.
func (c *Cache) Put(key string, rec *models.Enrichment) {
	data, err := json.Marshal(rec)
	if err != nil {
		logging.Debug().Err(err).Msg("enrichment cache marshal failed")
		return
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(cacheKeyPrefix+key), data)
		if c.ttl > 0 {
			entry = entry.WithTTL(c.ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		logging.Debug().Err(err).Msg("enrichment cache write failed")
	}
}

// Close flushes and closes the underlying store.
func (c *Cache) Close() error {
	return c.db.Close()
}

// cacheKey fingerprints one input for one model and prompt version.
func cacheKey(model string, in models.EnrichmentInput) string {
	payload, _ := json.Marshal(in)
	sum := sha256.Sum256([]byte(model + "|" + promptVersion + "|" + string(payload)))
	return hex.EncodeToString(sum[:16])
}
