// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package workspace_test

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/experimaestro/experimaestro-go/internal/connector"
	"github.com/experimaestro/experimaestro-go/internal/process"
	"github.com/experimaestro/experimaestro-go/internal/xpath"
)

// fakeConnector is the in-memory connector.Connector shared by every
// test file in this package, modeled on internal/job/job_test.go's
// fakeConnector: no file ever actually hits disk, so jobs run entirely
// in memory.
type fakeConnector struct {
	fileTypes map[string]connector.FileType
	pidLines  map[string]string // path -> single-line file content
	getProc   func(j connector.Job, pid int) (process.Process, error)
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{
		fileTypes: make(map[string]connector.FileType),
		pidLines:  make(map[string]string),
	}
}

func (c *fakeConnector) ProcessBuilder() process.Builder             { return nil }
func (c *fakeConnector) Resolve(p xpath.Path) (string, error)        { return p.Path, nil }
func (c *fakeConnector) SetExecutable(p xpath.Path, flag bool) error { return nil }
func (c *fakeConnector) Mkdirs(p xpath.Path, _, _ bool) error        { return nil }
func (c *fakeConnector) Mkdir(p xpath.Path) error                    { return nil }
func (c *fakeConnector) FileType(p xpath.Path) (connector.FileType, error) {
	if ft, ok := c.fileTypes[p.Path]; ok {
		return ft, nil
	}
	return connector.Unexisting, nil
}
func (c *fakeConnector) OStream(p xpath.Path) (io.WriteCloser, error) {
	return nopWriteCloser{}, nil
}
func (c *fakeConnector) IStream(p xpath.Path) (io.ReadCloser, error) {
	return io.NopCloser(stringsReader(c.pidLines[p.Path])), nil
}
func (c *fakeConnector) Lock(p xpath.Path, timeout time.Duration) (connector.Lock, error) {
	return &fakeLock{}, nil
}
func (c *fakeConnector) GetProcess(j connector.Job, pid int) (process.Process, error) {
	if c.getProc != nil {
		return c.getProc(j, pid)
	}
	return &fakeProcess{running: true, block: make(chan struct{})}, nil
}

type nopWriteCloser struct{}

func (nopWriteCloser) Write(p []byte) (int, error) { return len(p), nil }
func (nopWriteCloser) Close() error                { return nil }

type fakeLock struct{ released atomic.Bool }

func (l *fakeLock) Release() error { l.released.Store(true); return nil }
func (l *fakeLock) Detach()        {}

// fakeProcess never exits on its own when running is true and block
// is nil: the background watch() goroutine a successful Run() spawns
// would otherwise race a test's assertion of the synchronously-set
// RUNNING state against watch() driving it straight to a terminal
// state. block, when non-nil, makes ExitCode wait for it to close
// (see internal/job/job_test.go's fakeProcess for the same pattern).
type fakeProcess struct {
	running  bool
	exitCode int
	block    chan struct{}
}

func (p *fakeProcess) IsRunning() bool { return p.running }
func (p *fakeProcess) ExitCode() int {
	if p.block != nil {
		<-p.block
	}
	return p.exitCode
}
func (p *fakeProcess) Kill(force bool) error         { p.running = false; return nil }
func (p *fakeProcess) Write(b []byte) (int64, error) { return int64(len(b)), nil }
func (p *fakeProcess) EOF() error                    { return nil }

type stringsReader string

func (s stringsReader) Read(p []byte) (int, error) {
	n := copy(p, s)
	if n == 0 {
		return 0, io.EOF
	}
	return n, io.EOF
}
