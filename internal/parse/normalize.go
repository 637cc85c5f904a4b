// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

package parse

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	spacePattern = regexp.MustCompile(`\s+`)
	pricePattern = regexp.MustCompile(`\d+(?:[.,]\d+)*`)
)

// freeWords mark free admission across the catalog's languages.
// Matched against folded text.
var freeWords = []string{
	"gratis", "gratuito", "gratuita", "gratuit",
	"de balde", "entrada libre", "entrada gratuita", "acceso libre",
	"free", "doan",
}

// CleanText unescapes HTML entities, strips tags and collapses
// whitespace.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	s = html.UnescapeString(s)
	s = tagPattern.ReplaceAllString(s, " ")
	s = spacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Fold lowercases and strips combining marks: "Müsica Clásica" →
// "musica clasica". Used for tolerant matching, never for stored text.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// AbsoluteURL resolves ref against base. Already-absolute refs pass
// through; unresolvable input returns the ref unchanged.
func AbsoluteURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if refURL.IsAbs() {
		return ref
	}
	baseURL, err := url.Parse(base)
	if err != nil || baseURL.Host == "" {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

// ParsePrice extracts the first monetary amount from text like
// "12,50 €", "Desde 8 euros" or "1.200,00". Returns false when no
// number is present.
func ParsePrice(s string) (float64, bool) {
	m := pricePattern.FindString(s)
	if m == "" {
		return 0, false
	}
	// Spanish formatting: dot thousands, comma decimals.
	if strings.Contains(m, ",") {
		m = strings.ReplaceAll(m, ".", "")
		m = strings.Replace(m, ",", ".", 1)
	} else if count := strings.Count(m, "."); count > 1 {
		m = strings.ReplaceAll(m, ".", "")
	} else if count == 1 {
		// A lone dot followed by exactly three digits is a thousands
		// separator ("1.200"), otherwise a decimal point ("12.50").
		if idx := strings.Index(m, "."); len(m)-idx-1 == 3 {
			m = strings.ReplaceAll(m, ".", "")
		}
	}
	value, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// LooksFree reports whether text marks free admission, using the
// source's own marker first and common phrasings second.
func LooksFree(s, marker string) bool {
	if s == "" {
		return false
	}
	folded := Fold(s)
	if marker != "" && strings.Contains(folded, Fold(marker)) {
		return true
	}
	for _, word := range freeWords {
		if strings.Contains(folded, word) {
			return true
		}
	}
	return false
}

// freeVenueWords name venue kinds that do not charge admission.
// Matched against folded venue names.
var freeVenueWords = []string{
	"biblioteca", "liburutegi",
	"centro civico", "centre civic",
	"casa de cultura", "casa da cultura", "kultur etxea",
	"centro sociocultural",
}

// FreeVenue reports whether the venue name alone implies free
// admission, as with public libraries and civic centres.
func FreeVenue(name string) bool {
	if name == "" {
		return false
	}
	folded := Fold(name)
	for _, word := range freeVenueWords {
		if strings.Contains(folded, word) {
			return true
		}
	}
	return false
}

// ParseCoord parses a latitude or longitude that may use a decimal
// comma.
func ParseCoord(s string) (float64, bool) {
	s = strings.Replace(strings.TrimSpace(s), ",", ".", 1)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// SyntheticID derives a stable external ID for sources that publish
// none, so re-scrapes upsert instead of duplicating. Format:
// "syn-" + 16 hex chars of SHA-1 over title, date and venue.
func SyntheticID(title string, start time.Time, venue string) string {
	input := fmt.Sprintf("%s|%s|%s", Fold(title), start.Format("2006-01-02"), Fold(venue))
	sum := sha1.Sum([]byte(input)) //nolint:gosec // G401: content fingerprint, not security
	return "syn-" + hex.EncodeToString(sum[:])[:16]
}
