// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

package parse

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Lookup resolves a dotted path like "result.records" or
// "images.0.imageUrl" in decoded JSON. Numeric segments index arrays.
// Returns nil when any step is missing.
func Lookup(root any, path string) any {
	if path == "" {
		return root
	}
	cur := root
	for _, part := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return nil
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil
			}
			cur = node[idx]
		default:
			return nil
		}
	}
	return cur
}

// Items resolves the item array at path. An empty path means root is
// the array itself. Non-object entries are skipped.
func Items(root any, path string) []map[string]any {
	node := Lookup(root, path)
	arr, ok := node.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(arr))
	for _, entry := range arr {
		if item, ok := entry.(map[string]any); ok {
			out = append(out, item)
		}
	}
	return out
}

// Stringify renders a decoded JSON leaf as a trimmed string. Integral
// floats print without a decimal point so numeric IDs survive intact.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// Count reads an integer total (count or pages) at path, for
// pagination loops. Returns -1 when absent or non-numeric.
func Count(root any, path string) int {
	if path == "" {
		return -1
	}
	switch t := Lookup(root, path).(type) {
	case float64:
		return int(t)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n)
		}
	}
	return -1
}
