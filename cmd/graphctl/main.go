// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command graphctl administers the projector's Dgraph instance.
//
// # Usage
//
//	graphctl schema apply              # Install or update the graph schema
//	graphctl schema drop --force      # Drop all data and the schema
//	graphctl health                    # Check Dgraph availability
//	graphctl health --wait 30s         # Block until Dgraph is reachable
package main

import (
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/CausalityGraph/pkg/logging"
	"github.com/AleutianAI/CausalityGraph/services/projector/dgraph"
)

var (
	targetFlag  string
	timeoutFlag time.Duration

	rootCmd = &cobra.Command{
		Use:   "graphctl",
		Short: "A CLI to manage the causality graph's Dgraph store",
		Long: `Graphctl administers the Dgraph instance behind the projector:
installing the graph schema, wiping data, and checking availability.`,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&targetFlag, "target",
		envOr("DGRAPH_TARGET", "localhost:9080"),
		"Dgraph Alpha gRPC address")
	rootCmd.PersistentFlags().DurationVar(&timeoutFlag, "timeout",
		30*time.Second, "Timeout for the operation")

	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(healthCmd)

	logging.Setup(logging.Config{Level: "warn", Format: "text", Service: "graphctl"})
}

// connect dials Dgraph, allowing a degraded start so commands can
// report unavailability instead of failing to construct the client.
func connect() (*dgraph.ResilientClient, error) {
	cfg := dgraph.DefaultClientConfig()
	cfg.Target = targetFlag
	cfg.AllowStartDegraded = true
	return dgraph.NewResilientClient(cfg)
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
