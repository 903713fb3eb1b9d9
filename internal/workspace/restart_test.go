// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package workspace_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/experimaestro/experimaestro-go/internal/connector"
	"github.com/experimaestro/experimaestro-go/internal/job"
	"github.com/experimaestro/experimaestro-go/internal/resource"
	"github.com/experimaestro/experimaestro-go/internal/workspace"
	"github.com/experimaestro/experimaestro-go/internal/xpath"
	"github.com/experimaestro/experimaestro-go/internal/xtype"
)

// neverSatisfiedDependency keeps a job permanently WAITING, so Submit
// never calls Run() and the job's indexed state stays WAITING --
// exercising Restart's "no pid file" branch without needing a real
// unsatisfiable JobDependency.
type neverSatisfiedDependency struct{ target resource.DependencyTarget }

func (d *neverSatisfiedDependency) Check()          {}
func (d *neverSatisfiedDependency) Satisfied() bool { return false }
func (d *neverSatisfiedDependency) SetTarget(t resource.DependencyTarget) { d.target = t }

func TestRestart_ReattachesJobWithPidFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.sqlite")
	reg := xtype.NewRegistry()
	locator := xpath.Local("/jobs/t/abc")

	w1, err := workspace.New(workspace.Config{Registry: reg, JobsDir: xpath.Local("/jobs"), SQLitePath: dbPath})
	require.NoError(t, err)

	j := job.New(locator, "job", newFakeConnector(), noopRunner{}, nil, 0)
	require.NoError(t, j.MarkReady())
	require.NoError(t, w1.Submit(j, xtype.Typename("t")))
	require.NoError(t, w1.Close())

	w2, err := workspace.New(workspace.Config{Registry: reg, JobsDir: xpath.Local("/jobs"), SQLitePath: dbPath})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w2.Close() })

	conn2 := newFakeConnector()
	pidPath := locator.Resolve("job.pid")
	conn2.fileTypes[pidPath.Path] = connector.File
	conn2.pidLines[pidPath.Path] = "4321"

	l := newFakeLauncher(conn2)
	require.NoError(t, w2.Restart(l))

	got, ok := w2.Job(locator)
	require.True(t, ok)
	assert.Equal(t, job.Running, got.State())
}

func TestRestart_SkipsRowsWithoutPidFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.sqlite")
	reg := xtype.NewRegistry()
	locator := xpath.Local("/jobs/t/abc")

	w1, err := workspace.New(workspace.Config{Registry: reg, JobsDir: xpath.Local("/jobs"), SQLitePath: dbPath})
	require.NoError(t, err)

	j := job.New(locator, "job", newFakeConnector(), noopRunner{}, nil, 0)
	j.AddDependency(&neverSatisfiedDependency{})
	require.NoError(t, w1.Submit(j, xtype.Typename("t")))
	require.NoError(t, w1.Close())

	w2, err := workspace.New(workspace.Config{Registry: reg, JobsDir: xpath.Local("/jobs"), SQLitePath: dbPath})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w2.Close() })

	l := newFakeLauncher(newFakeConnector())
	require.NoError(t, w2.Restart(l))

	got, ok := w2.Job(locator)
	require.True(t, ok, "restart still records the job, just without reattaching")
	assert.Equal(t, job.Waiting, got.State())
}

func TestRestart_IgnoresLocatorsAlreadyInMemory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.sqlite")
	reg := xtype.NewRegistry()
	locator := xpath.Local("/jobs/t/abc")

	w, err := workspace.New(workspace.Config{Registry: reg, JobsDir: xpath.Local("/jobs"), SQLitePath: dbPath})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	j := job.New(locator, "job", newFakeConnector(), noopRunner{}, nil, 0)
	require.NoError(t, j.MarkReady())
	require.NoError(t, w.Submit(j, xtype.Typename("t")))

	l := newFakeLauncher(newFakeConnector())
	require.NoError(t, w.Restart(l))

	got, ok := w.Job(locator)
	require.True(t, ok)
	assert.Same(t, j, got, "Restart must not replace an already-registered job")
}
