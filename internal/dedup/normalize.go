// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

package dedup

import (
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/cartelera-project/cartelera/internal/parse"
)

var punctPattern = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

// citySuffixes are comarca and metro-area tails sources append to
// municipality names; folded forms.
var citySuffixes = []string{
	" y su comarca",
	" y comarca",
	" y area metropolitana",
	" area metropolitana",
	" campina",
	" alfoz",
}

// cityKey normalizes a municipality name for equality: diacritics
// folded, administrative suffixes stripped.
func cityKey(city string) string {
	key := parse.Fold(strings.TrimSpace(city))
	for _, suffix := range citySuffixes {
		key = strings.TrimSuffix(key, suffix)
	}
	return strings.TrimSpace(key)
}

// titleKey normalizes a title or venue name for similarity scoring:
// folded, punctuation dropped, whitespace collapsed.
func titleKey(s string) string {
	key := parse.Fold(s)
	key = punctPattern.ReplaceAllString(key, " ")
	return strings.Join(strings.Fields(key), " ")
}

// similarity is the sequence-matcher ratio over characters, 0..1.
func similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	m := difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, ""))
	return m.Ratio()
}
