// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/cartelera-project/cartelera/internal/models"
	"github.com/cartelera-project/cartelera/internal/sources"
)

var (
	sourcesTier   string
	sourcesRegion string
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the bundled source catalog",
	RunE:  runSources,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
	f := sourcesCmd.Flags()
	f.StringVarP(&sourcesTier, "tier", "t", "", "only sources of a tier (gold|silver|bronze)")
	f.StringVarP(&sourcesRegion, "region", "r", "", "only sources of one region")
}

func runSources(cmd *cobra.Command, _ []string) error {
	var tier models.Tier
	if sourcesTier != "" {
		if tier = models.ParseTier(sourcesTier); tier == "" {
			return usagef("unknown tier %q: use gold, silver or bronze", sourcesTier)
		}
	}

	cfgs := filterCatalog(registry.All(), tier, sourcesRegion)
	renderCatalog(cmd.OutOrStdout(), cfgs)
	return nil
}

// filterCatalog narrows configs by tier and region. Unlike the insert
// selection it keeps inactive sources so operators can see the full
// catalog.
func filterCatalog(cfgs []*sources.SourceConfig, tier models.Tier, region string) []*sources.SourceConfig {
	want := strings.ToLower(strings.TrimSpace(region))
	out := make([]*sources.SourceConfig, 0, len(cfgs))
	for _, c := range cfgs {
		if tier != "" && c.Tier != tier {
			continue
		}
		if want != "" && strings.ToLower(c.Region) != want {
			continue
		}
		out = append(out, c)
	}
	return out
}

func renderCatalog(w io.Writer, cfgs []*sources.SourceConfig) {
	if len(cfgs) == 0 {
		fmt.Fprintln(w, "no sources match the selection")
		return
	}

	t := newTable(w, []string{"SLUG", "NAME", "TIER", "REGION", "STATUS"})
	rows := make([][]string, 0, len(cfgs))
	active := 0
	for _, c := range cfgs {
		status := color.GreenString("active")
		if !c.Active {
			status = color.New(color.Faint).Sprint("inactive")
		} else {
			active++
		}
		rows = append(rows, []string{c.Slug, c.Name, string(c.Tier), c.Region, status})
	}
	t.Bulk(rows)
	t.Render()
	fmt.Fprintf(w, "%d sources, %d active\n", len(cfgs), active)
}
