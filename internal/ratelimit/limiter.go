// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

// Package ratelimit throttles outbound requests per target domain.
//
// Every domain carries a backoff level from 0 to MaxLevel. The delay
// between requests grows exponentially with the level and shrinks again
// as requests succeed, so a host that starts returning 429s is backed
// off without slowing every other source in the run.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/cartelera-project/cartelera/internal/config"
	"github.com/cartelera-project/cartelera/internal/logging"
)

// MaxLevel is the highest backoff level a domain can reach.
const MaxLevel = 5

// domainState tracks one domain's schedule and backoff level.
type domainState struct {
	mu          sync.Mutex
	lastRequest time.Time
	notBefore   time.Time // floor imposed by Penalize
	level       int
}

// Limiter spaces requests per domain with jittered exponential backoff.
// The zero value is not usable; construct with New.
type Limiter struct {
	base       time.Duration
	multiplier float64
	max        time.Duration
	jitter     time.Duration

	mu      sync.RWMutex
	domains map[string]*domainState

	randMu sync.Mutex
	rng    *rand.Rand
}

// New builds a limiter from cfg, falling back to sane values for
// unset fields.
func New(cfg config.RateLimitConfig) *Limiter {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 2 * time.Second
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 2
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = 60 * time.Second
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}

	return &Limiter{
		base:       cfg.BaseDelay,
		multiplier: cfg.Multiplier,
		max:        cfg.MaxDelay,
		jitter:     cfg.Jitter,
		domains:    make(map[string]*domainState),
		//nolint:gosec // G404: weak random is fine for backoff jitter
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Wait blocks until the delay for domain's current backoff level has
// passed since its last request, then stamps the request. The level is
// read fresh on every attempt, so a raise taken while waiting lengthens
// this wait, not just the next one. Returns early when ctx is
// cancelled.
func (l *Limiter) Wait(ctx context.Context, domain string) error {
	st := l.state(domain)

	for {
		st.mu.Lock()
		now := time.Now()
		due := st.notBefore
		if !st.lastRequest.IsZero() {
			if d := st.lastRequest.Add(l.delay(st.level)); d.After(due) {
				due = d
			}
		}
		if !due.After(now) {
			st.lastRequest = now
			st.mu.Unlock()
			return nil
		}
		wait := due.Sub(now)
		st.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate limit wait for %s cancelled: %w", domain, ctx.Err())
		}
	}
}

// RecordSuccess lowers domain's backoff level by one, floored at 0.
func (l *Limiter) RecordSuccess(domain string) {
	st := l.state(domain)

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.level > 0 {
		st.level--
		logging.Debug().Str("domain", domain).Int("level", st.level).Msg("backoff level lowered")
	}
}

// RecordFailure raises domain's backoff level by one, capped at
// MaxLevel. Call it on 429, 403 and transport errors.
func (l *Limiter) RecordFailure(domain string) {
	st := l.state(domain)

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.level < MaxLevel {
		st.level++
		logging.Debug().Str("domain", domain).Int("level", st.level).Msg("backoff level raised")
	}
}

// Penalize pushes domain's next slot at least d into the future, e.g.
// to honor a Retry-After header across concurrent callers.
func (l *Limiter) Penalize(domain string, d time.Duration) {
	if d <= 0 {
		return
	}
	st := l.state(domain)

	st.mu.Lock()
	defer st.mu.Unlock()
	until := time.Now().Add(d)
	if until.After(st.notBefore) {
		st.notBefore = until
	}
}

// Level returns domain's current backoff level.
func (l *Limiter) Level(domain string) int {
	st := l.state(domain)

	st.mu.Lock()
	defer st.mu.Unlock()
	return st.level
}

// Levels returns a snapshot of every known domain's backoff level.
func (l *Limiter) Levels() map[string]int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]int, len(l.domains))
	for domain, st := range l.domains {
		st.mu.Lock()
		out[domain] = st.level
		st.mu.Unlock()
	}
	return out
}

// delay computes the jittered delay for a backoff level.
func (l *Limiter) delay(level int) time.Duration {
	d := float64(l.base) * math.Pow(l.multiplier, float64(level))
	if d > float64(l.max) {
		d = float64(l.max)
	}

	var jitter float64
	if l.jitter > 0 {
		l.randMu.Lock()
		jitter = l.rng.Float64() * float64(l.jitter)
		l.randMu.Unlock()
	}

	return time.Duration(d + jitter)
}

// state gets or creates the limiter state for a domain.
func (l *Limiter) state(domain string) *domainState {
	l.mu.RLock()
	st, ok := l.domains[domain]
	l.mu.RUnlock()
	if ok {
		return st
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok := l.domains[domain]; ok {
		return st
	}
	st = &domainState{}
	l.domains[domain] = st
	return st
}
