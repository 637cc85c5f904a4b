// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Context keys for logging.
type contextKey string

const (
	// runIDKey is the context key for pipeline run IDs.
	runIDKey contextKey = "run_id"

	// sourceKey is the context key for the source slug being processed.
	sourceKey contextKey = "source"
)

// GenerateRunID creates a new unique run ID.
// Returns the first 8 characters of a UUID for readability.
func GenerateRunID() string {
	return uuid.New().String()[:8]
}

// ContextWithRunID returns a new context with the given run ID.
//
//	ctx = logging.ContextWithRunID(ctx, logging.GenerateRunID())
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// ContextWithNewRunID returns a context with a newly generated run ID.
func ContextWithNewRunID(ctx context.Context) context.Context {
	return ContextWithRunID(ctx, GenerateRunID())
}

// RunIDFromContext retrieves the run ID from context.
// Returns empty string if not present.
func RunIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithSource returns a new context tagged with the source slug
// currently flowing through the pipeline.
func ContextWithSource(ctx context.Context, slug string) context.Context {
	return context.WithValue(ctx, sourceKey, slug)
}

// SourceFromContext retrieves the source slug from context.
// Returns empty string if not present.
func SourceFromContext(ctx context.Context) string {
	if slug, ok := ctx.Value(sourceKey).(string); ok {
		return slug
	}
	return ""
}

// Ctx returns a logger with context values (run_id, source) automatically added.
// This is the recommended way to log inside pipeline stages.
//
//	logging.Ctx(ctx).Info().Msg("Stage complete")
//	// Output: {"level":"info","run_id":"abc12345","source":"madrid-datos","message":"Stage complete"}
func Ctx(ctx context.Context) *zerolog.Logger {
	contextLogger := Logger().With().Logger()

	if runID := RunIDFromContext(ctx); runID != "" {
		contextLogger = contextLogger.With().Str("run_id", runID).Logger()
	}

	if slug := SourceFromContext(ctx); slug != "" {
		contextLogger = contextLogger.With().Str("source", slug).Logger()
	}

	return &contextLogger
}

// CtxWith returns a logger context builder with context values pre-populated.
// Use this when you need to add additional fields beyond the standard ones.
//
//	logger := logging.CtxWith(ctx).Str("page", page).Logger()
//	logger.Info().Msg("Page fetched")
func CtxWith(ctx context.Context) zerolog.Context {
	logCtx := Logger().With()

	if runID := RunIDFromContext(ctx); runID != "" {
		logCtx = logCtx.Str("run_id", runID)
	}

	if slug := SourceFromContext(ctx); slug != "" {
		logCtx = logCtx.Str("source", slug)
	}

	return logCtx
}

// WithComponent creates a child logger with a component field.
// Use this to create component-specific loggers.
//
//	geoLogger := logging.WithComponent("geo")
//	geoLogger.Info().Msg("Cache warmed")
func WithComponent(component string) zerolog.Logger {
	return With().Str("component", component).Logger()
}
