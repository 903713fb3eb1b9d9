// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/experimaestro/experimaestro-go/internal/xerrors"
	"github.com/experimaestro/experimaestro-go/internal/xpath"
	"github.com/experimaestro/experimaestro-go/internal/xtype"
)

var forceKillFlag bool

func init() {
	killCmd.Flags().BoolVar(&forceKillFlag, "force", false, "send a forceful (non-graceful) kill signal")
}

var killCmd = &cobra.Command{
	Use:   "kill <locator>",
	Short: "Kill a running job",
	Long: `Reattaches to the workspace named by --jobs-dir, locates the job by its
full locator path, and kills its running process (Job.Kill, spec.md
section 4.8's cancellation). --jobs-dir is required: a locator alone
does not say which workspace's SQLite index to rescan.`,
	Args: cobra.ExactArgs(1),
	RunE: runKill,
}

func runKill(cmd *cobra.Command, args []string) error {
	if jobsDirFlag == "" {
		return xerrors.Argument("kill requires --jobs-dir")
	}

	logger := newLogger()
	reg := xtype.NewRegistry()
	w, l, err := openWorkspace(reg, jobsDirFlag, logger)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Restart(l); err != nil {
		return err
	}

	locator := xpath.Parse(args[0])
	j, ok := w.Job(locator)
	if !ok {
		return xerrors.Argument("no job found at locator %q", locator.String())
	}

	if err := j.Kill(forceKillFlag); err != nil {
		return err
	}
	fmt.Printf("kill signal sent to %s\n", locator.String())
	return nil
}
