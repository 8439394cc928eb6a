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

	"github.com/AleutianAI/pipelinecheck/services/pipeline"
	"github.com/AleutianAI/pipelinecheck/services/pipeline/config"
	"github.com/spf13/cobra"
)

// newRootCmd builds the command tree. Flags are bound to locals so each
// call gets a fresh, independent tree.
func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "pipelinecheck",
		Short: "Validate that editor pipelines are acyclic",
		Long: `pipelinecheck checks pipelines built in the visual editor: it counts
nodes and edges and reports whether the graph is a DAG.

Run "pipelinecheck serve" for the HTTP API or "pipelinecheck check" to
validate a pipeline file directly.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath,
		"Path to the config file (missing file means defaults)")

	rootCmd.AddCommand(
		newServeCmd(&configPath),
		newCheckCmd(&configPath),
		newConfigCmd(&configPath),
		newVersionCmd(),
	)
	return rootCmd
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline validation HTTP API",
		Long: `Starts the HTTP API on the configured port. CORS origins and the log
level are reloaded when the config file changes. SIGINT or SIGTERM shuts
the server down gracefully.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func newCheckCmd(configPath *string) *cobra.Command {
	var opts checkOptions

	cmd := &cobra.Command{
		Use:   "check [file|-]",
		Short: "Validate a pipeline JSON file",
		Long: `Reads a pipeline in the same JSON shape the editor posts, validates it
against the request schema and reports node count, edge count and DAG
status. Reads stdin when the file is "-" or omitted.

Exit codes: 0 on success, 1 if --fail-on-cycle is set and the pipeline
has a cycle, 2 on invalid input.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.configPath = *configPath
			if len(args) == 1 {
				opts.file = args[0]
			}
			return runCheck(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVar(&opts.detail, "detail", false, "Include topological order, cyclic nodes and dangling edges")
	cmd.Flags().BoolVar(&opts.failOnCycle, "fail-on-cycle", false, "Exit with status 1 when the pipeline is not a DAG")
	return cmd
}

func newConfigCmd(configPath *string) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the pipelinecheck config file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a config file with default settings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := *configPath
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteDefault(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default config to %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	configCmd.AddCommand(initCmd)
	return configCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pipelinecheck %s\n", pipeline.ServiceVersion)
		},
	}
}
