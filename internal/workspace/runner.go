// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package workspace

import (
	"sync"

	"github.com/experimaestro/experimaestro-go/internal/command"
	"github.com/experimaestro/experimaestro-go/internal/job"
	"github.com/experimaestro/experimaestro-go/internal/launcher"
	"github.com/experimaestro/experimaestro-go/internal/process"
	"github.com/experimaestro/experimaestro-go/internal/script"
	"github.com/experimaestro/experimaestro-go/internal/xerrors"
	"github.com/experimaestro/experimaestro-go/internal/xpath"
)

// jobConfig is what a submitted job's Prepare/Launch calls need beyond
// what *job.Job itself carries: its launcher, its rendered command
// line, and its merged environment. Registered once at submission time
// (see task.go's SubmitTask) since job.Runner's methods only take a
// *job.Job argument.
type jobConfig struct {
	launcher     launcher.Launcher
	commandLine  *command.CommandLine
	environment  map[string]string
	jobID        string
	workspaceGet func(key string) (string, bool)
}

// jobRunner is the concrete job.Runner: it looks up the calling job's
// jobConfig and delegates to that job's launcher and script.Builder.
// This is the adapter spec.md section 4.9 implies but never names
// directly -- job.Runner's own doc comment says it is "supplied by the
// workspace, which wires the concrete script builder and launcher".
type jobRunner struct {
	mu      sync.Mutex
	configs map[*job.Job]*jobConfig
}

func newJobRunner() *jobRunner {
	return &jobRunner{configs: make(map[*job.Job]*jobConfig)}
}

func (r *jobRunner) register(j *job.Job, cfg *jobConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[j] = cfg
}

func (r *jobRunner) configFor(j *job.Job) (*jobConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.configs[j]
	if !ok {
		return nil, xerrors.Assertion("no runner configuration registered for job %q", j.Locator().String())
	}
	return cfg, nil
}

// Prepare implements job.Runner: it creates the job directory (nothing
// upstream of this ever calls Connector.Mkdirs) and renders the run
// script via the job's launcher's script.Builder.
func (r *jobRunner) Prepare(j *job.Job) (xpath.Path, error) {
	cfg, err := r.configFor(j)
	if err != nil {
		return xpath.Path{}, err
	}

	conn := cfg.launcher.Connector()
	dir := j.Locator()
	if err := conn.Mkdirs(dir, true, false); err != nil {
		return xpath.Path{}, xerrors.IO(err, "creating job directory %q", dir.String())
	}

	spec := script.Spec{
		Name:                "job",
		Environment:         mergeEnv(cfg.environment, cfg.launcher.Environment()),
		NotificationBaseURL: cfg.launcher.NotificationBaseURL(),
		JobID:               cfg.jobID,
		CommandLine:         cfg.commandLine,
		WorkspaceGet:        cfg.workspaceGet,
	}

	scriptPath := dir.Resolve("job.sh")
	if err := cfg.launcher.ScriptBuilder().Build(j, spec, scriptPath); err != nil {
		return xpath.Path{}, err
	}
	return scriptPath, nil
}

// Launch implements job.Runner: it hands the rendered script to the
// job's launcher.
func (r *jobRunner) Launch(j *job.Job, scriptPath xpath.Path) (process.Process, error) {
	cfg, err := r.configFor(j)
	if err != nil {
		return nil, err
	}
	return cfg.launcher.Submit(j, scriptPath)
}

// mergeEnv layers override on top of base, neither of which is
// mutated; override wins on key collision.
func mergeEnv(base, override map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
