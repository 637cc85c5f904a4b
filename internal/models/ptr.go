// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

package models

import "time"

// Pointer constructors for optional fields. Parsers and tests build
// events with literal values; these keep that terse.

func StrPtr(s string) *string        { return &s }
func BoolPtr(b bool) *bool           { return &b }
func FloatPtr(f float64) *float64    { return &f }
func TimePtr(t time.Time) *time.Time { return &t }

// StrOrEmpty dereferences s, returning "" for nil.
func StrOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
