// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package workspace

import (
	"github.com/experimaestro/experimaestro-go/internal/command"
	"github.com/experimaestro/experimaestro-go/internal/job"
	"github.com/experimaestro/experimaestro-go/internal/launcher"
	"github.com/experimaestro/experimaestro-go/internal/value"
	"github.com/experimaestro/experimaestro-go/internal/xerrors"
	"github.com/experimaestro/experimaestro-go/internal/xpath"
	"github.com/experimaestro/experimaestro-go/internal/xtype"
)

// SubmitTask implements Task.submit from spec.md section 4.4: bind
// task onto v, compute the job locator via a PathGenerator named after
// the task's local name, construct the job, validate, configure
// (generate+seal), collect dependencies by walking v, and submit.
//
// task.CommandLine must hold a *command.CommandLine -- the dynamic
// type the loader is responsible for populating it with, per
// xtype.Task's own doc comment on the any-typed field.
func SubmitTask(w *Workspace, task *xtype.Task, l launcher.Launcher, v *value.Value) (*job.Job, error) {
	cl, ok := task.CommandLine.(*command.CommandLine)
	if !ok {
		return nil, xerrors.Assertion("task %q command line is %T, not *command.CommandLine", task.Identifier, task.CommandLine)
	}

	v.Task = task.Identifier

	locatorAny, err := (xtype.PathGenerator{Name: task.Identifier.LocalName()}).Generate(xtype.GenerationContext{
		JobsDir:        w.jobsDir,
		TaskIdentifier: task.Identifier,
		RootUniqueID:   v.UniqueID,
	})
	if err != nil {
		return nil, err
	}
	locator, ok := locatorAny.(xpath.Path)
	if !ok {
		return nil, xerrors.Assertion("path generator for task %q returned %T, not xpath.Path", task.Identifier, locatorAny)
	}

	logger := w.logger.With("job", locator.String(), "task", task.Identifier.String())
	j := job.New(locator, "job", l.Connector(), w.runner, logger, w.lockTimeout)
	v.Job = job.Handle{J: j}

	if err := v.Validate(w.registry, ""); err != nil {
		return nil, err
	}
	if err := v.Generate(w.registry, w.jobsDir, task.Identifier); err != nil {
		return nil, err
	}
	v.Seal()

	command.CollectDependencies(v, j, j.AddDependency)

	w.runner.register(j, &jobConfig{
		launcher:     l,
		commandLine:  command.BindRoot(cl, v),
		environment:  w.environment,
		jobID:        locator.String(),
		workspaceGet: w.Get,
	})

	// Wiring is complete: set OnReady before checking readiness, so a
	// dependency that settles later (another job reaching DONE, a
	// token slot freeing up) dispatches Run() the same way submit()'s
	// own bootstrap does below. If every dependency already settled
	// satisfied during AddDependency above, DependencyChanged already
	// flipped the job straight to READY (with OnReady still nil, so
	// nothing fired prematurely mid-wiring) -- MarkReady is only for
	// the zero-dependency case, where no AddDependency call ever ran
	// and the job is still sitting in WAITING despite needing nothing.
	j.OnReady = w.onJobReady
	if j.State() == job.Waiting && j.Ready() {
		if err := j.MarkReady(); err != nil {
			return nil, err
		}
	}

	if err := w.Submit(j, task.Identifier); err != nil {
		return nil, err
	}
	return j, nil
}
