// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

// Command cartelera ingests Spanish cultural event listings into
// PostgreSQL. See `cartelera --help`.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	os.Exit(run())
}

// run maps errors to exit codes: 0 success, 1 operator misuse,
// 2 internal failure.
func run() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	var internal internalError
	if errors.As(err, &internal) {
		return 2
	}
	return 1
}
