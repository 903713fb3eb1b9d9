// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

// Command experimaestro is a thin CLI front-end over the engine: it
// calls straight into internal/loader and internal/workspace and adds
// no engine semantics of its own, per SPEC_FULL.md section 6's
// boundary-only framing for this package.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	jobsDirFlag string
	debugFlag   bool

	rootCmd = &cobra.Command{
		Use:     "experimaestro",
		Short:   "Reproducible-experiment workflow engine",
		Long:    `A command-line front-end for submitting and inspecting experimaestro jobs.`,
		Version: "dev",
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&jobsDirFlag, "jobs-dir", "", "job directory root (run defaults to a jobs directory beside the loaded file; required by kill; status takes its directory as an argument)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(killCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
