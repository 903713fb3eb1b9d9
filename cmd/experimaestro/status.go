// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/experimaestro/experimaestro-go/internal/xtype"
)

var statusCmd = &cobra.Command{
	Use:   "status <jobs-dir>",
	Short: "Rescan a workspace's job index and print job states",
	Long: `Reattaches to every job indexed under <jobs-dir> (internal/workspace's
Restart, spec.md section 4.8/8's S6) and prints one line per job: its
locator, state, and unsatisfied-dependency count.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	jobsDir := args[0]
	logger := newLogger()

	reg := xtype.NewRegistry()
	w, l, err := openWorkspace(reg, jobsDir, logger)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Restart(l); err != nil {
		return err
	}

	jobs := w.Jobs()
	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].Locator().String() < jobs[k].Locator().String()
	})

	if len(jobs) == 0 {
		fmt.Println("no jobs indexed under " + jobsDir)
		return nil
	}

	fmt.Printf("%-60s %-10s %s\n", "LOCATOR", "STATE", "UNSATISFIED")
	for _, j := range jobs {
		fmt.Printf("%-60s %-10s %d\n", j.Locator().String(), j.State().String(), j.UnsatisfiedCount())
	}
	return nil
}
