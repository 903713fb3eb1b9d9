// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package launcher_test

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/experimaestro/experimaestro-go/internal/connector"
	"github.com/experimaestro/experimaestro-go/internal/launcher"
	"github.com/experimaestro/experimaestro-go/internal/process"
	"github.com/experimaestro/experimaestro-go/internal/xpath"
)

type fakeJob struct{ locator xpath.Path }

func (j fakeJob) Locator() xpath.Path { return j.locator }

type readCloser struct{ io.Reader }

func (readCloser) Close() error { return nil }

type fakeProcess struct{ pid int }

func (fakeProcess) IsRunning() bool         { return true }
func (fakeProcess) ExitCode() int           { return 0 }
func (fakeProcess) Kill(bool) error         { return nil }
func (fakeProcess) Write([]byte) (int64, error) { return 0, nil }
func (fakeProcess) EOF() error              { return nil }

type fakeConnector struct {
	pidFileContent string
	pidFileExists  bool
	gotPid         int
	started        []string
	startErr       error
}

func (c *fakeConnector) ProcessBuilder() process.Builder { return &fakeBuilder{c: c} }
func (c *fakeConnector) Resolve(p xpath.Path) (string, error) {
	return p.Path, nil
}
func (c *fakeConnector) SetExecutable(xpath.Path, bool) error { return nil }
func (c *fakeConnector) Mkdirs(xpath.Path, bool, bool) error  { return nil }
func (c *fakeConnector) Mkdir(xpath.Path) error               { return nil }
func (c *fakeConnector) FileType(p xpath.Path) (connector.FileType, error) {
	if strings.HasSuffix(p.Path, "job.pid") && c.pidFileExists {
		return connector.File, nil
	}
	return connector.Unexisting, nil
}
func (c *fakeConnector) OStream(xpath.Path) (io.WriteCloser, error) { return nil, nil }
func (c *fakeConnector) IStream(p xpath.Path) (io.ReadCloser, error) {
	return readCloser{bytes.NewBufferString(c.pidFileContent)}, nil
}
func (c *fakeConnector) Lock(xpath.Path, time.Duration) (connector.Lock, error) { return nil, nil }
func (c *fakeConnector) GetProcess(j connector.Job, pid int) (process.Process, error) {
	c.gotPid = pid
	return fakeProcess{pid: pid}, nil
}

type fakeBuilder struct {
	c    *fakeConnector
	argv []string
}

func (b *fakeBuilder) WorkingDirectory(xpath.Path) process.Builder   { return b }
func (b *fakeBuilder) Command(argv []string) process.Builder         { b.argv = argv; return b }
func (b *fakeBuilder) Environment(map[string]string) process.Builder { return b }
func (b *fakeBuilder) Stdin(process.Redirect) process.Builder        { return b }
func (b *fakeBuilder) Stdout(process.Redirect) process.Builder       { return b }
func (b *fakeBuilder) Stderr(process.Redirect) process.Builder       { return b }
func (b *fakeBuilder) Detach(bool) process.Builder                   { return b }
func (b *fakeBuilder) Start() (process.Process, error) {
	if b.c.startErr != nil {
		return nil, b.c.startErr
	}
	b.c.started = b.argv
	return fakeProcess{}, nil
}

func TestDirectLauncher_CheckNoPidFile(t *testing.T) {
	conn := &fakeConnector{pidFileExists: false}
	l := launcher.NewDirectLauncher(conn, nil, "")
	p, err := l.Check(fakeJob{locator: xpath.Local("/jobs/t/u")})
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestDirectLauncher_CheckReattachesByPid(t *testing.T) {
	conn := &fakeConnector{pidFileExists: true, pidFileContent: "4242\n"}
	l := launcher.NewDirectLauncher(conn, nil, "")
	p, err := l.Check(fakeJob{locator: xpath.Local("/jobs/t/u")})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 4242, conn.gotPid)
}

func TestDirectLauncher_SubmitRunsScriptDirectly(t *testing.T) {
	conn := &fakeConnector{}
	l := launcher.NewDirectLauncher(conn, nil, "")
	_, err := l.Submit(fakeJob{locator: xpath.Local("/jobs/t/u")}, xpath.Local("/jobs/t/u/job.sh"))
	require.NoError(t, err)
	assert.Equal(t, []string{"/jobs/t/u/job.sh"}, conn.started)
}

func TestOARLauncher_SubmitWrapsWithOarsub(t *testing.T) {
	conn := &fakeConnector{}
	l := launcher.NewOARLauncher(conn, nil, "", "-l", "nodes=1")
	_, err := l.Submit(fakeJob{locator: xpath.Local("/jobs/t/u")}, xpath.Local("/jobs/t/u/job.sh"))
	require.NoError(t, err)
	assert.Equal(t, []string{"oarsub", "-l", "nodes=1", "/jobs/t/u/job.sh"}, conn.started)
}

func TestOARLauncher_CheckReusesePidFileProtocol(t *testing.T) {
	conn := &fakeConnector{pidFileExists: true, pidFileContent: "99"}
	l := launcher.NewOARLauncher(conn, nil, "")
	p, err := l.Check(fakeJob{locator: xpath.Local("/jobs/t/u")})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 99, conn.gotPid)
}
