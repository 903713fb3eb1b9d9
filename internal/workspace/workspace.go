// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

// Package workspace implements the Workspace from spec.md section 4.9:
// it owns the job map and the SQLite index mirror, guards submission
// with idempotence-by-locator, and wires the job.Runner seam that lets
// a *job.Job call back into a Launcher and a script.Builder without
// either package depending on workspace.
package workspace

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/experimaestro/experimaestro-go/internal/job"
	"github.com/experimaestro/experimaestro-go/internal/xerrors"
	"github.com/experimaestro/experimaestro-go/internal/xlog"
	"github.com/experimaestro/experimaestro-go/internal/xpath"
	"github.com/experimaestro/experimaestro-go/internal/xtype"
)

// Config configures a new Workspace.
type Config struct {
	// Registry resolves types/tasks for validation and generation.
	Registry *xtype.Registry

	// JobsDir is the root directory under which <task-id>/<unique-id>
	// job directories are created.
	JobsDir xpath.Path

	// SQLitePath is the job-index database path; empty opens a private
	// in-memory database (no restart support across process restarts).
	SQLitePath string

	// Environment is merged underneath a launcher's own environment for
	// every job submitted through this workspace.
	Environment map[string]string

	// ExperimentTag optionally namespaces this workspace's jobs in logs.
	ExperimentTag string

	// LockTimeout bounds Connector.Lock waits at job run time.
	LockTimeout time.Duration

	Logger xlog.Logger
}

// Workspace owns a set of jobs and resources sharing a job-directory
// tree, per spec.md section 3's data model and section 4.9's submit
// algorithm.
type Workspace struct {
	registry      *xtype.Registry
	jobsDir       xpath.Path
	experimentTag string
	environment   map[string]string
	lockTimeout   time.Duration
	logger        xlog.Logger

	mu   sync.Mutex
	jobs map[string]*job.Job // keyed by locator.Path

	kv   sync.Mutex
	store map[string]string // workspace.get(key) backing store

	index *index

	runner *jobRunner
}

// New opens a Workspace: it creates (or opens) the SQLite index and
// returns a Workspace ready to accept Submit/SubmitTask calls.
func New(cfg Config) (*Workspace, error) {
	if cfg.Registry == nil {
		return nil, xerrors.Argument("workspace requires a non-nil registry")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = xlog.NoOpLogger{}
	}

	idx, err := openIndex(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}

	return &Workspace{
		registry:      cfg.Registry,
		jobsDir:       cfg.JobsDir,
		experimentTag: cfg.ExperimentTag,
		environment:   cfg.Environment,
		lockTimeout:   cfg.LockTimeout,
		logger:        logger,
		jobs:          make(map[string]*job.Job),
		store:         make(map[string]string),
		index:         idx,
		runner:        newJobRunner(),
	}, nil
}

// Close releases the workspace's SQLite handle.
func (w *Workspace) Close() error {
	return w.index.close()
}

// JobsDir returns the workspace's job-directory root.
func (w *Workspace) JobsDir() xpath.Path { return w.jobsDir }

// Registry returns the workspace's type registry.
func (w *Workspace) Registry() *xtype.Registry { return w.registry }

// Environment returns the workspace-wide base environment (job- and
// launcher-specific environments are layered on top of this).
func (w *Workspace) Environment() map[string]string { return w.environment }

// Set stores a named path/value for later CommandPathReference lookup
// (spec.md section 4.6's "look up workspace.get(key)").
func (w *Workspace) Set(key, value string) {
	w.kv.Lock()
	defer w.kv.Unlock()
	w.store[key] = value
}

// Get implements the workspace.get(key) lookup CommandPathReference
// uses.
func (w *Workspace) Get(key string) (string, bool) {
	w.kv.Lock()
	defer w.kv.Unlock()
	v, ok := w.store[key]
	return v, ok
}

// Job returns the job registered under locator, if any.
func (w *Workspace) Job(locator xpath.Path) (*job.Job, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	j, ok := w.jobs[locator.Path]
	return j, ok
}

// Jobs returns a snapshot of every job currently registered.
func (w *Workspace) Jobs() []*job.Job {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*job.Job, 0, len(w.jobs))
	for _, j := range w.jobs {
		out = append(out, j)
	}
	return out
}

// Submit registers j under its locator and, if it is already ready to
// run, starts it -- spec.md section 4.9's submit(job) algorithm,
// guarded by the workspace mutex:
//  1. if jobs already contains job.locator, log and return (idempotence).
//  2. allocate a resource_id: a random UUID (google/uuid), so ids
//     carry no ordering between submissions.
//  3. stamp submission_time, insert into the jobs map and the SQLite
//     mirror.
//  4. if job.ready(), call job.run().
func (w *Workspace) Submit(j *job.Job, taskID xtype.Typename) error {
	locator := j.Locator()

	w.mu.Lock()
	if _, exists := w.jobs[locator.Path]; exists {
		w.mu.Unlock()
		w.logger.Info("job already submitted, ignoring", "job", locator.String())
		return nil
	}

	resourceID := uuid.NewString()
	submissionTime := time.Now().Unix()
	w.jobs[locator.Path] = j
	w.mu.Unlock()

	w.logger.Info("job submitted", "job", locator.String(), "resource_id", resourceID, "task", taskID.String())

	if err := w.index.record(locator.String(), taskID.String(), j.State().String(), submissionTime); err != nil {
		w.logger.Warn("failed to index submitted job", "job", locator.String(), "error", err)
	}

	if j.Ready() {
		if err := j.Run(); err != nil {
			return err
		}
	}
	return nil
}

// onJobReady is wired as a job's OnReady callback: once a job
// transitions to READY (whether at wiring time or later, when its
// last unsatisfied dependency settles), run it.
func (w *Workspace) onJobReady(j *job.Job) {
	if err := j.Run(); err != nil {
		w.logger.Error("failed to run ready job", "job", j.Locator().String(), "error", err)
	}
}
