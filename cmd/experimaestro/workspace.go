// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"log/slog"
	"path/filepath"

	"github.com/experimaestro/experimaestro-go/internal/connector/local"
	"github.com/experimaestro/experimaestro-go/internal/launcher"
	"github.com/experimaestro/experimaestro-go/internal/workspace"
	"github.com/experimaestro/experimaestro-go/internal/xlog"
	"github.com/experimaestro/experimaestro-go/internal/xpath"
	"github.com/experimaestro/experimaestro-go/internal/xtype"
)

// newLogger builds the logger every subcommand shares, following the
// teacher's own pattern of deriving client behavior from a handful of
// global persistent flags (cmd/slurm-cli/main.go's --debug).
func newLogger() xlog.Logger {
	cfg := xlog.DefaultConfig()
	if debugFlag {
		cfg.Level = slog.LevelDebug
	}
	return xlog.New(cfg)
}

// openWorkspace opens (or creates) the local workspace rooted at
// jobsDir, with its SQLite index mirror alongside it -- the on-disk
// layout SPEC_FULL.md's persistence supplement assumes for a workspace
// that must survive a process restart (spec.md section 4.8/8's S6).
func openWorkspace(reg *xtype.Registry, jobsDir string, logger xlog.Logger) (*workspace.Workspace, launcher.Launcher, error) {
	cfg := workspace.Config{
		Registry:   reg,
		JobsDir:    xpath.Local(jobsDir),
		SQLitePath: filepath.Join(jobsDir, "index.sqlite"),
		Logger:     logger,
	}
	w, err := workspace.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	l := launcher.NewDirectLauncher(local.New(), nil, "")
	return w, l, nil
}
