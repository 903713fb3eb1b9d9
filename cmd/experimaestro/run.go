// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/experimaestro/experimaestro-go/internal/loader"
	"github.com/experimaestro/experimaestro-go/internal/value"
	"github.com/experimaestro/experimaestro-go/internal/workspace"
	"github.com/experimaestro/experimaestro-go/internal/xerrors"
	"github.com/experimaestro/experimaestro-go/internal/xtype"
)

var runCmd = &cobra.Command{
	Use:   "run <file.yaml>",
	Short: "Load a type/task document and submit every task it declares",
	Long: `Loads a YAML or JSON type/task document (internal/loader) into a fresh
registry, opens a local workspace, and submits one job per declared
task using only its arguments' declared defaults -- there is no
per-invocation argument file in this thin front-end, so a task whose
arguments lack defaults and are required fails validation at submit
time.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeArgument, "reading "+path, err)
	}

	reg := xtype.NewRegistry()
	if err := loader.Load(data, reg); err != nil {
		return err
	}

	jobsDir := jobsDirFlag
	if jobsDir == "" {
		jobsDir = filepath.Join(filepath.Dir(path), "jobs")
	}
	if err := os.MkdirAll(jobsDir, 0o755); err != nil {
		return xerrors.Wrap(xerrors.CodeArgument, "creating jobs dir", err)
	}

	logger := newLogger()
	w, l, err := openWorkspace(reg, jobsDir, logger)
	if err != nil {
		return err
	}
	defer w.Close()

	tasks := reg.Tasks()
	if len(tasks) == 0 {
		fmt.Println("document declares no tasks")
		return nil
	}

	for _, task := range tasks {
		typ, ok := reg.Get(task.OutputType)
		if !ok {
			return xerrors.Assertion("task %q output type %q did not resolve", task.Identifier, task.OutputType)
		}
		root := value.NewMap(typ)

		j, err := workspace.SubmitTask(w, task, l, root)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeArgument, "submitting task "+task.Identifier.String(), err)
		}
		fmt.Printf("%-40s %s\n", task.Identifier.String(), j.Locator().String())
	}
	return nil
}
