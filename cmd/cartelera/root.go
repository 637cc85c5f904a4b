// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/cartelera-project/cartelera/internal/config"
	"github.com/cartelera-project/cartelera/internal/logging"
	"github.com/cartelera-project/cartelera/internal/sources"
)

var (
	cfgFile  string
	verbose  bool
	cfg      *config.Config
	registry *sources.Registry
)

// usageError marks operator mistakes: unknown sources, invalid tier
// names, mutually exclusive flags. Exit code 1.
type usageError struct{ error }

func (e usageError) Unwrap() error { return e.error }

func usagef(format string, args ...any) error {
	return usageError{fmt.Errorf(format, args...)}
}

// internalError marks infrastructure failures: bad configuration,
// unreachable database, every selected source failing. Exit code 2.
type internalError struct{ error }

func (e internalError) Unwrap() error { return e.error }

func internalf(format string, args ...any) error {
	return internalError{fmt.Errorf(format, args...)}
}

var rootCmd = &cobra.Command{
	Use:   "cartelera",
	Short: "Spanish cultural events ingestion pipeline",
	Long: `cartelera pulls event listings from Spanish cultural data sources
(open-data APIs, feeds and rendered web pages), normalizes and enriches
them, and persists the result into PostgreSQL.

Example usage:
  cartelera insert --source madrid-datos        # Ingest one source
  cartelera insert --tier gold --dry-run        # Rehearse every GOLD source
  cartelera sources --region "Comunidad de Madrid"
  cartelera version`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		return initRuntime()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.yaml, /etc/cartelera/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})
}

// initRuntime loads configuration, configures logging and builds the
// source registry. Runs before every command except version.
func initRuntime() error {
	if cfgFile != "" {
		if err := os.Setenv(config.ConfigPathEnvVar, cfgFile); err != nil {
			return internalError{fmt.Errorf("set config path: %w", err)}
		}
	}

	var err error
	cfg, err = config.Load()
	if err != nil {
		return internalError{fmt.Errorf("load configuration: %w", err)}
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logging.Init(logging.Config{
		Level:     level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	registry = sources.MustNewRegistry(sources.Catalog())
	return nil
}

// newTable builds the plain left-aligned table style used by all
// subcommand summaries.
func newTable(w io.Writer, headers []string) *tablewriter.Table {
	t := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Header: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoFormat: tw.On},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Separators: tw.Separators{ShowHeader: tw.Off},
			},
		}),
	)
	t.Header(headers)
	return t
}
