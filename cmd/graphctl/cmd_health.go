// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var healthWait time.Duration

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check Dgraph availability",
	Long: `Dials Dgraph and reports whether it answers queries.

Examples:
  graphctl health                  # One-shot check
  graphctl health --wait 30s       # Block until reachable or deadline`,
	Run: runHealthCommand,
}

func init() {
	healthCmd.Flags().DurationVar(&healthWait, "wait", 0,
		"Block until Dgraph is reachable, up to this long")
}

func runHealthCommand(cmd *cobra.Command, args []string) {
	client, err := connect()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	if healthWait > 0 {
		if err := client.WaitForReady(cmd.Context(), healthWait); err != nil {
			fmt.Printf("❌ Dgraph at %s not ready: %v\n", targetFlag, err)
			os.Exit(1)
		}
	}

	if !client.IsAvailable() {
		fmt.Printf("❌ Dgraph at %s is unavailable (state: %s)\n", targetFlag, client.GetState())
		os.Exit(1)
	}
	fmt.Printf("✅ Dgraph at %s is available.\n", targetFlag)
}
