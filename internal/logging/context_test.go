// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestGenerateRunID(t *testing.T) {
	t.Parallel()

	id := GenerateRunID()
	if len(id) != 8 {
		t.Errorf("expected 8-character run ID, got %d characters", len(id))
	}

	other := GenerateRunID()
	if id == other {
		t.Error("expected distinct run IDs from consecutive calls")
	}
}

func TestRunIDRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if got := RunIDFromContext(ctx); got != "" {
		t.Errorf("expected empty run ID from bare context, got %q", got)
	}

	ctx = ContextWithRunID(ctx, "abc12345")
	if got := RunIDFromContext(ctx); got != "abc12345" {
		t.Errorf("expected run ID 'abc12345', got %q", got)
	}
}

func TestSourceRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := ContextWithSource(context.Background(), "madrid-datos")
	if got := SourceFromContext(ctx); got != "madrid-datos" {
		t.Errorf("expected source 'madrid-datos', got %q", got)
	}
}

func TestCtxAddsFields(t *testing.T) {
	var buf bytes.Buffer

	SetLogger(zerolog.New(&buf).With().Timestamp().Logger())
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	ctx := ContextWithRunID(context.Background(), "run00001")
	ctx = ContextWithSource(ctx, "bcn-opendata")

	Ctx(ctx).Info().Msg("stage complete")

	output := buf.String()
	if !strings.Contains(output, `"run_id":"run00001"`) {
		t.Errorf("expected run_id field in output: %s", output)
	}
	if !strings.Contains(output, `"source":"bcn-opendata"`) {
		t.Errorf("expected source field in output: %s", output)
	}
}

func TestCtxWithExtraFields(t *testing.T) {
	var buf bytes.Buffer

	SetLogger(zerolog.New(&buf).With().Timestamp().Logger())
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	ctx := ContextWithRunID(context.Background(), "run00002")
	logger := CtxWith(ctx).Int("page", 3).Logger()
	logger.Info().Msg("page fetched")

	output := buf.String()
	if !strings.Contains(output, `"run_id":"run00002"`) {
		t.Errorf("expected run_id field in output: %s", output)
	}
	if !strings.Contains(output, `"page":3`) {
		t.Errorf("expected page field in output: %s", output)
	}
}
