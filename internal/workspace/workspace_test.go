// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package workspace_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/experimaestro/experimaestro-go/internal/job"
	"github.com/experimaestro/experimaestro-go/internal/process"
	"github.com/experimaestro/experimaestro-go/internal/workspace"
	"github.com/experimaestro/experimaestro-go/internal/xpath"
	"github.com/experimaestro/experimaestro-go/internal/xtype"
)

func newTestWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	w, err := workspace.New(workspace.Config{
		Registry: xtype.NewRegistry(),
		JobsDir:  xpath.Local("/jobs"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestNew_RequiresRegistry(t *testing.T) {
	_, err := workspace.New(workspace.Config{})
	require.Error(t, err)
}

func TestSetGet_RoundTrips(t *testing.T) {
	w := newTestWorkspace(t)
	_, ok := w.Get("missing")
	assert.False(t, ok)

	w.Set("known", "/resolved/known")
	v, ok := w.Get("known")
	require.True(t, ok)
	assert.Equal(t, "/resolved/known", v)
}

func TestSubmit_IsIdempotentByLocator(t *testing.T) {
	w := newTestWorkspace(t)
	conn := newFakeConnector()
	locator := xpath.Local("/jobs/t/abc")

	j1 := job.New(locator, "job", conn, noopRunner{}, nil, 0)
	require.NoError(t, j1.MarkReady())
	require.NoError(t, w.Submit(j1, xtype.Typename("t")))

	j2 := job.New(locator, "job", conn, noopRunner{}, nil, 0)
	require.NoError(t, j2.MarkReady())
	require.NoError(t, w.Submit(j2, xtype.Typename("t")))

	got, ok := w.Job(locator)
	require.True(t, ok)
	assert.Same(t, j1, got, "second Submit under the same locator must be ignored")
}

func TestSubmit_RunsAnAlreadyReadyJob(t *testing.T) {
	w := newTestWorkspace(t)
	conn := newFakeConnector()
	runner := &recordingRunner{scriptPath: xpath.Local("/jobs/t/abc/job.sh")}
	locator := xpath.Local("/jobs/t/abc")

	j := job.New(locator, "job", conn, runner, nil, 0)
	require.NoError(t, j.MarkReady())
	require.NoError(t, w.Submit(j, xtype.Typename("t")))

	assert.True(t, runner.prepared)
	assert.True(t, runner.launched)
	assert.Equal(t, job.Running, j.State())
}

func TestJobs_ReturnsEverySubmittedJob(t *testing.T) {
	w := newTestWorkspace(t)
	conn := newFakeConnector()
	j1 := job.New(xpath.Local("/jobs/a"), "job", conn, noopRunner{}, nil, 0)
	j2 := job.New(xpath.Local("/jobs/b"), "job", conn, noopRunner{}, nil, 0)
	require.NoError(t, j1.MarkReady())
	require.NoError(t, j2.MarkReady())
	require.NoError(t, w.Submit(j1, xtype.Typename("a")))
	require.NoError(t, w.Submit(j2, xtype.Typename("b")))

	got := w.Jobs()
	assert.Len(t, got, 2)
}

type noopRunner struct{}

func (noopRunner) Prepare(j *job.Job) (xpath.Path, error) { return xpath.Path{}, nil }
func (noopRunner) Launch(j *job.Job, scriptPath xpath.Path) (process.Process, error) {
	return &fakeProcess{running: false}, nil
}

type recordingRunner struct {
	scriptPath xpath.Path
	prepared   bool
	launched   bool
}

func (r *recordingRunner) Prepare(j *job.Job) (xpath.Path, error) {
	r.prepared = true
	return r.scriptPath, nil
}

func (r *recordingRunner) Launch(j *job.Job, scriptPath xpath.Path) (process.Process, error) {
	r.launched = true
	return &fakeProcess{running: true, block: make(chan struct{})}, nil
}
