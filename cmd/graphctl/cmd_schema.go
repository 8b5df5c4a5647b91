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
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/CausalityGraph/services/projector/dgraph"
)

var dropForce bool

var (
	schemaCmd = &cobra.Command{
		Use:   "schema",
		Short: "Manage the Dgraph schema",
	}
	schemaApplyCmd = &cobra.Command{
		Use:   "apply",
		Short: "Install or update the graph schema",
		Long: `Applies the projector's DQL schema to Dgraph. Safe to run
against a populated instance; existing predicates are updated in place.`,
		Run: runSchemaApply,
	}
	schemaShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the graph schema without applying it",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Print(dgraph.Schema)
		},
	}
	schemaDropCmd = &cobra.Command{
		Use:   "drop",
		Short: "Drop ALL data and the schema",
		Run:   runSchemaDrop,
	}
)

func init() {
	schemaDropCmd.Flags().BoolVar(&dropForce, "force", false,
		"Skip the confirmation prompt")

	schemaCmd.AddCommand(schemaApplyCmd)
	schemaCmd.AddCommand(schemaShowCmd)
	schemaCmd.AddCommand(schemaDropCmd)
}

func runSchemaApply(cmd *cobra.Command, args []string) {
	client, err := connect()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeoutFlag)
	defer cancel()

	if err := client.ApplySchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error applying schema: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✅ Schema applied.")
}

func runSchemaDrop(cmd *cobra.Command, args []string) {
	if !dropForce {
		fmt.Printf("This will DELETE ALL DATA in Dgraph at %s. Type 'yes' to continue: ", targetFlag)
		var answer string
		fmt.Scanln(&answer)
		if answer != "yes" {
			fmt.Println("Aborted.")
			return
		}
	}

	client, err := connect()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeoutFlag)
	defer cancel()

	if err := client.DropAll(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error dropping data: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✅ All data dropped.")
}
