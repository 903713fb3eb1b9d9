// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package script_test

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/experimaestro/experimaestro-go/internal/command"
	"github.com/experimaestro/experimaestro-go/internal/connector"
	"github.com/experimaestro/experimaestro-go/internal/job"
	"github.com/experimaestro/experimaestro-go/internal/process"
	"github.com/experimaestro/experimaestro-go/internal/script"
	"github.com/experimaestro/experimaestro-go/internal/xpath"
)

type recordingWriteCloser struct{ buf bytes.Buffer }

func (w *recordingWriteCloser) Write(p []byte) (int, error) { return w.buf.Write(p) }
func (w *recordingWriteCloser) Close() error                { return nil }

type fakeLock struct{}

func (fakeLock) Release() error { return nil }
func (fakeLock) Detach()        {}

type fakeConnector struct {
	written       map[string]string
	executable    map[string]bool
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{written: map[string]string{}, executable: map[string]bool{}}
}

func (c *fakeConnector) ProcessBuilder() process.Builder { return nil }
func (c *fakeConnector) Resolve(p xpath.Path) (string, error) {
	return p.Path, nil
}
func (c *fakeConnector) SetExecutable(p xpath.Path, flag bool) error {
	c.executable[p.Path] = flag
	return nil
}
func (c *fakeConnector) Mkdirs(p xpath.Path, _, _ bool) error { return nil }
func (c *fakeConnector) Mkdir(p xpath.Path) error             { return nil }
func (c *fakeConnector) FileType(p xpath.Path) (connector.FileType, error) {
	return connector.Unexisting, nil
}
func (c *fakeConnector) OStream(p xpath.Path) (io.WriteCloser, error) {
	w := &recordingWriteCloser{}
	c.written[p.Path] = "" // placeholder, filled in Close via capture below
	return &capturingWriter{fc: c, path: p.Path, inner: w}, nil
}
func (c *fakeConnector) IStream(p xpath.Path) (io.ReadCloser, error) { return nil, nil }
func (c *fakeConnector) Lock(p xpath.Path, timeout time.Duration) (connector.Lock, error) {
	return fakeLock{}, nil
}
func (c *fakeConnector) GetProcess(j connector.Job, pid int) (process.Process, error) {
	return nil, nil
}

type capturingWriter struct {
	fc    *fakeConnector
	path  string
	inner *recordingWriteCloser
}

func (w *capturingWriter) Write(p []byte) (int, error) { return w.inner.Write(p) }
func (w *capturingWriter) Close() error {
	w.fc.written[w.path] = w.inner.buf.String()
	return nil
}

func newTestJob(conn connector.Connector) *job.Job {
	return job.New(xpath.Local("/jobs/t/u"), "job", conn, nil, nil, time.Second)
}

func TestBuild_IncludesAllThirteenSteps(t *testing.T) {
	conn := newFakeConnector()
	j := newTestJob(conn)
	b := script.NewBuilder(conn)

	spec := script.Spec{
		Name:        "job",
		Environment: map[string]string{"FOO": `va"lue$x`},
		CommandLine: &command.CommandLine{
			Commands: []command.Command{{Parts: []command.Part{command.String{Text: "echo hi"}}}},
		},
	}

	scriptPath := xpath.Local("/jobs/t/u/job.sh")
	require.NoError(t, b.Build(j, spec, scriptPath))

	out := conn.written["/jobs/t/u/job.sh"]
	assert.True(t, conn.executable["/jobs/t/u/job.sh"])
	assert.Contains(t, out, "#!/bin/sh")
	assert.Contains(t, out, "exit 017")
	assert.Contains(t, out, "set -o pipefail")
	assert.Contains(t, out, "echo $$ >")
	assert.Contains(t, out, `export FOO="va\"lue\$x"`)
	assert.Contains(t, out, "cd '/jobs/t/u'")
	assert.Contains(t, out, "cleanup()")
	assert.Contains(t, out, "trap cleanup 0")
	assert.Contains(t, out, "checkerror()")
	assert.Contains(t, out, "echo hi")
	assert.Contains(t, out, "PID=$!")
	assert.Contains(t, out, "touch '/jobs/t/u/job.done'")
}

func TestBuild_NotificationURLExported(t *testing.T) {
	conn := newFakeConnector()
	j := newTestJob(conn)
	b := script.NewBuilder(conn)

	spec := script.Spec{
		Name:                "job",
		NotificationBaseURL: "http://localhost:9000",
		JobID:               "abc123",
		CommandLine: &command.CommandLine{
			Commands: []command.Command{{Parts: []command.Part{command.String{Text: "true"}}}},
		},
	}
	require.NoError(t, b.Build(j, spec, xpath.Local("/jobs/t/u/job.sh")))
	out := conn.written["/jobs/t/u/job.sh"]
	assert.Contains(t, out, `export XPM_NOTIFICATION_URL="http://localhost:9000/abc123"`)
}

func TestBuild_MultipleCommandsJoinedByPipe(t *testing.T) {
	conn := newFakeConnector()
	j := newTestJob(conn)
	b := script.NewBuilder(conn)

	spec := script.Spec{
		Name: "job",
		CommandLine: &command.CommandLine{
			Commands: []command.Command{
				{Parts: []command.Part{command.String{Text: "producer"}}},
				{Parts: []command.Part{command.String{Text: "consumer"}}},
			},
		},
	}
	require.NoError(t, b.Build(j, spec, xpath.Local("/jobs/t/u/job.sh")))
	out := conn.written["/jobs/t/u/job.sh"]
	assert.Contains(t, out, "producer | consumer")
}

func TestBuild_ContentPartsGetDeterministicAuxNames(t *testing.T) {
	conn := newFakeConnector()
	j := newTestJob(conn)
	b := script.NewBuilder(conn)

	spec := script.Spec{
		Name: "job",
		CommandLine: &command.CommandLine{
			Commands: []command.Command{{Parts: []command.Part{
				command.Content{Key: "stdin", Text: "payload"},
				command.Content{Key: "stdin", Text: "payload2"},
			}}},
		},
	}
	require.NoError(t, b.Build(j, spec, xpath.Local("/jobs/t/u/job.sh")))
	out := conn.written["/jobs/t/u/job.sh"]
	assert.Contains(t, out, "job_01.stdin.input")
	assert.Contains(t, out, "job_02.stdin.input")
}
