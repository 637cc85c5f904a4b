// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are tried in order after any source-specific layout.
// Day-first forms come before ambiguous ones; Spanish portals never
// publish month-first numerics.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.0",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006 15:04",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"20060102",
}

// months maps folded Spanish, Catalan and Galician month names and
// abbreviations. Basque sources publish ISO dates, so Basque names are
// not needed.
var months = map[string]time.Month{
	"enero": time.January, "ene": time.January,
	"febrero": time.February, "feb": time.February,
	"marzo": time.March, "mar": time.March,
	"abril": time.April, "abr": time.April,
	"mayo": time.May, "may": time.May,
	"junio": time.June, "jun": time.June,
	"julio": time.July, "jul": time.July,
	"agosto": time.August, "ago": time.August,
	"septiembre": time.September, "setiembre": time.September, "sep": time.September, "sept": time.September, "set": time.September,
	"octubre": time.October, "oct": time.October,
	"noviembre": time.November, "nov": time.November,
	"diciembre": time.December, "dic": time.December,

	// Catalan
	"gener": time.January, "febrer": time.February, "marc": time.March,
	"maig": time.May, "juny": time.June, "juliol": time.July,
	"agost": time.August, "setembre": time.September,
	"novembre": time.November, "desembre": time.December,

	// Galician
	"xaneiro": time.January, "febreiro": time.February,
	"maio": time.May, "xuno": time.June, "xullo": time.July,
	"setembro": time.September, "outubro": time.October,
	"novembro": time.November, "decembro": time.December,
}

// weekdays are stripped from textual dates ("sábado 12 de octubre").
// Folded forms, Spanish plus Catalan/Galician where they differ.
var weekdays = []string{
	"lunes", "martes", "miercoles", "jueves", "viernes", "sabado", "domingo",
	"dilluns", "dimarts", "dimecres", "dijous", "divendres", "dissabte", "diumenge",
	"luns", "mercores", "xoves", "venres",
}

var textualDatePattern = regexp.MustCompile(`(\d{1,2})\s+(?:de\s+)?([a-z]+)\s+(?:del?\s+)?(\d{4})`)

// ParseDate parses a source date value into a civil date (midnight
// UTC) plus an optional wall clock. layout, when non-empty, is tried
// first. A midnight clock counts as "time unknown" and yields a nil
// clock.
func ParseDate(value, layout string) (time.Time, *string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return time.Time{}, nil, fmt.Errorf("empty date")
	}

	layouts := dateLayouts
	if layout != "" {
		layouts = append([]string{layout}, dateLayouts...)
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, v); err == nil {
			return civil(t), clockOf(t), nil
		}
	}

	if t, ok := parseTextualDate(v); ok {
		return t, nil, nil
	}
	return time.Time{}, nil, fmt.Errorf("unparsable date %q", value)
}

// parseTextualDate handles "12 de octubre de 2026", "3 marzo 2026",
// "sábado, 12 de octubre de 2026" and regional-language variants.
func parseTextualDate(v string) (time.Time, bool) {
	folded := Fold(v)
	for _, wd := range weekdays {
		folded = strings.TrimSpace(strings.TrimPrefix(folded, wd+","))
		folded = strings.TrimSpace(strings.TrimPrefix(folded, wd))
	}

	m := textualDatePattern.FindStringSubmatch(folded)
	if m == nil {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	month, ok := months[m[2]]
	if !ok {
		return time.Time{}, false
	}
	year, _ := strconv.Atoi(m[3])
	if day < 1 || day > 31 {
		return time.Time{}, false
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), true
}

// civil truncates a parsed timestamp to its wall-clock date at
// midnight UTC. The source's own zone defines the date; converting to
// UTC first would shift late-evening events to the wrong day.
func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// clockOf extracts "HH:MM" from a timestamp, nil at midnight.
func clockOf(t time.Time) *string {
	if t.Hour() == 0 && t.Minute() == 0 {
		return nil
	}
	s := fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
	return &s
}

var clockPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::\d{2})?$`),
	regexp.MustCompile(`^(\d{1,2})[.h](\d{2})$`),
	regexp.MustCompile(`^(\d{1,2})h$`),
	regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(am|pm)$`),
}

// ParseClock normalizes a time-of-day string to "HH:MM". Returns false
// for unparsable values and for explicit midnight, which sources use
// as a "time unknown" placeholder.
func ParseClock(value string) (string, bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	v = strings.NewReplacer("a.m.", "am", "p.m.", "pm", " h", "h").Replace(v)
	v = strings.TrimSuffix(v, " horas")
	v = strings.TrimSuffix(v, "hs")

	for i, pat := range clockPatterns {
		m := pat.FindStringSubmatch(v)
		if m == nil {
			continue
		}
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if len(m) > 2 && m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if i == len(clockPatterns)-1 { // am/pm form
			meridiem := m[3]
			if hour < 1 || hour > 12 {
				return "", false
			}
			if meridiem == "pm" && hour != 12 {
				hour += 12
			}
			if meridiem == "am" && hour == 12 {
				hour = 0
			}
		}
		if hour > 23 || minute > 59 {
			return "", false
		}
		if hour == 0 && minute == 0 {
			return "", false
		}
		return fmt.Sprintf("%02d:%02d", hour, minute), true
	}
	return "", false
}
