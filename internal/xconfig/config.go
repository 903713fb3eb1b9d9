// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

// Package xconfig holds workspace-wide configuration, loaded from
// environment variables following the teacher's pkg/config conventions.
package xconfig

import (
	"os"
	"strconv"
	"time"

	"github.com/experimaestro/experimaestro-go/internal/xerrors"
)

// Config holds process-wide defaults for a Workspace.
type Config struct {
	// JobsDir is the root under which <task-id>/<unique-id> job
	// directories are created.
	JobsDir string

	// LockTimeout bounds how long Connector.Lock waits before failing
	// with a lock_error. Zero means block indefinitely.
	LockTimeout time.Duration

	// NotificationURL is the base URL exported to job scripts as
	// XPM_NOTIFICATION_URL when set.
	NotificationURL string

	// SQLitePath is the workspace job-index database path.
	SQLitePath string

	// Debug enables verbose logging.
	Debug bool
}

// NewDefault returns a Config populated with defaults, not yet reading
// the environment.
func NewDefault() *Config {
	return &Config{
		JobsDir:     "jobs",
		LockTimeout: 30 * time.Second,
		SQLitePath:  "experimaestro.db",
		Debug:       false,
	}
}

// Load overlays environment variables onto c.
func (c *Config) Load() {
	if v := os.Getenv("XPM_JOBS_DIR"); v != "" {
		c.JobsDir = v
	}
	if v := os.Getenv("XPM_LOCK_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.LockTimeout = d
		}
	}
	if v := os.Getenv("XPM_NOTIFICATION_URL"); v != "" {
		c.NotificationURL = v
	}
	if v := os.Getenv("XPM_SQLITE_PATH"); v != "" {
		c.SQLitePath = v
	}
	if v := os.Getenv("XPM_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Debug = b
		}
	}
}

// Validate rejects obviously-broken configuration.
func (c *Config) Validate() error {
	if c.JobsDir == "" {
		return xerrors.Argument("jobs dir must not be empty")
	}
	if c.LockTimeout < 0 {
		return xerrors.Argument("lock timeout must not be negative")
	}
	return nil
}
