// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

// Package ssh implements connector.Connector over a remote host reached
// by SSH, following spec.md section 4.1's SSHConnector contract: a
// libssh-equivalent session with agent or key auth, command execution
// per-process over an exec'd shell, and file I/O layered on the same
// channel (no separate SFTP subsystem is grounded in the example pack;
// see DESIGN.md).
package ssh

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/experimaestro/experimaestro-go/internal/connector"
	"github.com/experimaestro/experimaestro-go/internal/pool"
	"github.com/experimaestro/experimaestro-go/internal/process"
	"github.com/experimaestro/experimaestro-go/internal/retry"
	"github.com/experimaestro/experimaestro-go/internal/xerrors"
	"github.com/experimaestro/experimaestro-go/internal/xlog"
	"github.com/experimaestro/experimaestro-go/internal/xpath"
)

// Connector is the SSH implementation of connector.Connector, bound to
// a single remote host.
type Connector struct {
	host   string
	pool   *pool.SSHClientPool
	logger xlog.Logger
}

// New creates an SSH Connector dialing host (e.g. "user@host:22") using
// config for auth, pooling live connections so repeated operations
// don't repay the handshake.
func New(host string, config *ssh.ClientConfig, logger xlog.Logger) *Connector {
	if logger == nil {
		logger = xlog.NoOpLogger{}
	}
	dial := func(h string) (*ssh.Client, error) {
		return ssh.Dial("tcp", h, config)
	}
	return &Connector{host: host, pool: pool.New(dial, logger), logger: logger}
}

func (c *Connector) client() (*ssh.Client, error) {
	client, err := c.pool.Get(c.host)
	if err != nil {
		return nil, xerrors.IO(err, "dial ssh host %s", c.host)
	}
	return client, nil
}

// quote renders s as a single POSIX shell word.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func (c *Connector) runCommand(command string) (stdout, stderr []byte, exitCode int, err error) {
	client, err := c.client()
	if err != nil {
		return nil, nil, -1, err
	}
	session, err := client.NewSession()
	if err != nil {
		return nil, nil, -1, xerrors.IO(err, "open ssh session to %s", c.host)
	}
	defer session.Close()

	var out, errBuf bytes.Buffer
	session.Stdout = &out
	session.Stderr = &errBuf

	runErr := session.Run(command)
	if runErr == nil {
		return out.Bytes(), errBuf.Bytes(), 0, nil
	}
	if exitErr, ok := runErr.(*ssh.ExitError); ok {
		return out.Bytes(), errBuf.Bytes(), exitErr.ExitStatus(), nil
	}
	return out.Bytes(), errBuf.Bytes(), -1, xerrors.IO(runErr, "run %q on %s", command, c.host)
}

func (c *Connector) Resolve(p xpath.Path) (string, error) {
	return p.Path, nil
}

func (c *Connector) SetExecutable(p xpath.Path, flag bool) error {
	mode := "a-x"
	if flag {
		mode = "a+x"
	}
	_, _, code, err := c.runCommand(fmt.Sprintf("chmod %s %s", mode, quote(p.Path)))
	if err != nil {
		return err
	}
	if code != 0 {
		return xerrors.IO(nil, "chmod %s failed on %s (exit %d)", p.Path, c.host, code)
	}
	return nil
}

func (c *Connector) Mkdirs(p xpath.Path, createParents, errorIfExists bool) error {
	ft, err := c.FileType(p)
	if err != nil {
		return err
	}
	if ft != connector.Unexisting {
		if errorIfExists {
			return xerrors.IO(nil, "path already exists: %s", p.Path)
		}
		if ft != connector.Directory {
			return xerrors.IO(nil, "path exists and is not a directory: %s", p.Path)
		}
		return nil
	}
	cmd := "mkdir " + quote(p.Path)
	if createParents {
		cmd = "mkdir -p " + quote(p.Path)
	}
	_, stderr, code, err := c.runCommand(cmd)
	if err != nil {
		return err
	}
	if code != 0 {
		return xerrors.IO(nil, "mkdir %s failed on %s: %s", p.Path, c.host, stderr)
	}
	return nil
}

func (c *Connector) Mkdir(p xpath.Path) error {
	return c.Mkdirs(p, false, true)
}

func (c *Connector) FileType(p xpath.Path) (connector.FileType, error) {
	cmd := fmt.Sprintf(
		`if [ -d %[1]s ]; then echo D; elif [ -p %[1]s ]; then echo P; elif [ -f %[1]s ]; then echo F; elif [ -e %[1]s ]; then echo O; else echo U; fi`,
		quote(p.Path))
	stdout, _, code, err := c.runCommand(cmd)
	if err != nil {
		return connector.Unexisting, err
	}
	if code != 0 {
		return connector.Unexisting, xerrors.IO(nil, "file_type probe failed on %s", c.host)
	}
	switch strings.TrimSpace(string(stdout)) {
	case "D":
		return connector.Directory, nil
	case "P":
		return connector.Pipe, nil
	case "F":
		return connector.File, nil
	case "O":
		return connector.Other, nil
	default:
		return connector.Unexisting, nil
	}
}

// remoteWriter streams bytes to `cat > path` over a live session, and
// closes the session's stdin + waits for completion on Close.
type remoteWriter struct {
	session *ssh.Session
	stdin   io.WriteCloser
	done    chan error
}

func (w *remoteWriter) Write(p []byte) (int, error) { return w.stdin.Write(p) }

func (w *remoteWriter) Close() error {
	if err := w.stdin.Close(); err != nil {
		return err
	}
	err := <-w.done
	_ = w.session.Close()
	return err
}

func (c *Connector) OStream(p xpath.Path) (io.WriteCloser, error) {
	client, err := c.client()
	if err != nil {
		return nil, err
	}
	session, err := client.NewSession()
	if err != nil {
		return nil, xerrors.IO(err, "open ssh session to %s", c.host)
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		_ = session.Close()
		return nil, xerrors.IO(err, "open stdin pipe to %s", c.host)
	}

	done := make(chan error, 1)
	go func() { done <- session.Run("cat > " + quote(p.Path)) }()

	return &remoteWriter{session: session, stdin: stdin, done: done}, nil
}

func (c *Connector) IStream(p xpath.Path) (io.ReadCloser, error) {
	client, err := c.client()
	if err != nil {
		return nil, err
	}
	session, err := client.NewSession()
	if err != nil {
		return nil, xerrors.IO(err, "open ssh session to %s", c.host)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		_ = session.Close()
		return nil, xerrors.IO(err, "open stdout pipe from %s", c.host)
	}
	if err := session.Start("cat " + quote(p.Path)); err != nil {
		_ = session.Close()
		return nil, xerrors.IO(err, "cat %s on %s", p.Path, c.host)
	}
	return &remoteReader{session: session, stdout: stdout}, nil
}

type remoteReader struct {
	session *ssh.Session
	stdout  io.Reader
}

func (r *remoteReader) Read(p []byte) (int, error) { return r.stdout.Read(p) }
func (r *remoteReader) Close() error {
	_ = r.session.Wait()
	return r.session.Close()
}

// sshLock implements connector.Lock by shelling `mkdir` (atomic on any
// POSIX filesystem) as the exclusive-create primitive, since no SFTP
// O_EXCL open is available without a dedicated SFTP client.
type sshLock struct {
	conn *Connector
	path xpath.Path
	mu   sync.Mutex
	done bool
}

func (l *sshLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done {
		return nil
	}
	l.done = true
	_, _, _, err := l.conn.runCommand("rmdir " + quote(l.path.Path))
	return err
}

func (l *sshLock) Detach() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.done = true
}

func (c *Connector) Lock(p xpath.Path, timeout time.Duration) (connector.Lock, error) {
	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	backoff := retry.NewExponentialBackoff()
	backoff.InitialDelay = 200 * time.Millisecond
	backoff.MaxDelay = 2 * time.Second
	backoff.MaxAttempts = 0 // unbounded; deadline governs termination

	attempt := 0
	for {
		_, _, code, err := c.runCommand("mkdir " + quote(p.Path))
		if err != nil {
			return nil, err
		}
		if code == 0 {
			return &sshLock{conn: c, path: p}, nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil, xerrors.Lock("timed out acquiring ssh lock %s on %s", p.Path, c.host)
		}
		delay, _ := backoff.NextDelay(attempt)
		time.Sleep(delay)
		attempt++
	}
}

func (c *Connector) GetProcess(job connector.Job, pid int) (process.Process, error) {
	return &externalProcess{conn: c, pid: pid, job: job}, nil
}

func (c *Connector) ProcessBuilder() process.Builder {
	return &processBuilder{conn: c}
}

type processBuilder struct {
	conn    *Connector
	workDir xpath.Path
	argv    []string
	env     map[string]string
	stdin   process.Redirect
	stdout  process.Redirect
	stderr  process.Redirect
}

func (b *processBuilder) WorkingDirectory(p xpath.Path) process.Builder { b.workDir = p; return b }
func (b *processBuilder) Command(argv []string) process.Builder        { b.argv = argv; return b }
func (b *processBuilder) Environment(env map[string]string) process.Builder {
	b.env = env
	return b
}
func (b *processBuilder) Stdin(r process.Redirect) process.Builder  { b.stdin = r; return b }
func (b *processBuilder) Stdout(r process.Redirect) process.Builder { b.stdout = r; return b }
func (b *processBuilder) Stderr(r process.Redirect) process.Builder { b.stderr = r; return b }
func (b *processBuilder) Detach(bool) process.Builder                { return b }

func (b *processBuilder) Start() (process.Process, error) {
	if len(b.argv) == 0 {
		return nil, xerrors.Argument("process builder: empty command")
	}
	client, err := b.conn.client()
	if err != nil {
		return nil, err
	}
	session, err := client.NewSession()
	if err != nil {
		return nil, xerrors.IO(err, "open ssh session to %s", b.conn.host)
	}

	var sb strings.Builder
	for k, v := range b.env {
		sb.WriteString(fmt.Sprintf("export %s=%s; ", k, quote(v)))
	}
	if b.workDir.Path != "" {
		sb.WriteString("cd " + quote(b.workDir.Path) + " && ")
	}
	for i, arg := range b.argv {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(quote(arg))
	}
	// File redirects are expressed as shell syntax appended to the
	// command itself, since the whole invocation is one exec'd session.
	if rf, ok := b.stdin.(process.RedirectFile); ok {
		sb.WriteString(" < " + quote(rf.Path.Path))
	}
	if rf, ok := b.stdout.(process.RedirectFile); ok {
		sb.WriteString(" > " + quote(rf.Path.Path))
	}
	if _, ok := b.stdout.(process.RedirectNone); ok {
		sb.WriteString(" > /dev/null")
	}
	if rf, ok := b.stderr.(process.RedirectFile); ok {
		sb.WriteString(" 2> " + quote(rf.Path.Path))
	}
	if _, ok := b.stderr.(process.RedirectNone); ok {
		sb.WriteString(" 2> /dev/null")
	}

	var pipeReaders []*sshPipeReader
	var stdinWriter io.WriteCloser
	if _, ok := b.stdin.(process.RedirectFile); !ok {
		if _, ok := b.stdin.(process.RedirectNone); !ok {
			stdinWriter, err = session.StdinPipe()
			if err != nil {
				_ = session.Close()
				return nil, xerrors.IO(err, "stdin pipe")
			}
		}
	}
	if pr, ok := b.stdout.(process.RedirectPipe); ok {
		pipe, err := session.StdoutPipe()
		if err != nil {
			_ = session.Close()
			return nil, xerrors.IO(err, "stdout pipe")
		}
		pipeReaders = append(pipeReaders, &sshPipeReader{r: pipe, cb: pr.Callback})
	}
	if pr, ok := b.stderr.(process.RedirectPipe); ok {
		pipe, err := session.StderrPipe()
		if err != nil {
			_ = session.Close()
			return nil, xerrors.IO(err, "stderr pipe")
		}
		pipeReaders = append(pipeReaders, &sshPipeReader{r: pipe, cb: pr.Callback})
	}

	if err := session.Start(sb.String()); err != nil {
		_ = session.Close()
		return &startFailedProcess{}, nil
	}

	for _, pr := range pipeReaders {
		go pr.drain()
	}

	p := &sshProcess{session: session, stdin: stdinWriter, done: make(chan struct{})}
	go p.wait()
	return p, nil
}

type sshPipeReader struct {
	r  io.Reader
	cb func([]byte)
}

func (p *sshPipeReader) drain() {
	buf := make([]byte, 8192)
	for {
		n, err := p.r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			p.cb(chunk)
		}
		if err != nil {
			return
		}
	}
}

type sshProcess struct {
	session  *ssh.Session
	stdin    io.WriteCloser
	mu       sync.Mutex
	exitCode int
	waited   bool
	done     chan struct{}
}

func (p *sshProcess) wait() {
	err := p.session.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waited = true
	if err == nil {
		p.exitCode = 0
	} else if exitErr, ok := err.(*ssh.ExitError); ok {
		p.exitCode = exitErr.ExitStatus()
	} else if _, ok := err.(*ssh.ExitMissingError); ok {
		p.exitCode = -2
	} else {
		p.exitCode = -1
	}
	_ = p.session.Close()
	close(p.done)
}

func (p *sshProcess) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.waited
}

func (p *sshProcess) ExitCode() int {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

func (p *sshProcess) Kill(force bool) error {
	sig := ssh.SIGINT
	if force {
		sig = ssh.SIGTERM
	}
	if err := p.session.Signal(sig); err != nil {
		return xerrors.IO(err, "signal remote process")
	}
	return nil
}

func (p *sshProcess) Write(b []byte) (int64, error) {
	if p.stdin == nil {
		return -1, xerrors.IO(nil, "process has no stdin pipe")
	}
	n, err := p.stdin.Write(b)
	if err != nil {
		return -1, xerrors.IO(err, "write to remote stdin")
	}
	return int64(n), nil
}

func (p *sshProcess) EOF() error {
	if p.stdin == nil {
		return nil
	}
	return p.stdin.Close()
}

type startFailedProcess struct{}

func (startFailedProcess) IsRunning() bool { return false }
func (startFailedProcess) ExitCode() int   { return -1 }
func (startFailedProcess) Kill(bool) error { return xerrors.IO(nil, "process never started") }
func (startFailedProcess) Write([]byte) (int64, error) {
	return -1, xerrors.IO(nil, "process never started")
}
func (startFailedProcess) EOF() error { return nil }

// externalProcess reattaches to a pid on the remote host by polling
// `kill -0` over a session, mirroring the local connector's restart
// semantics (spec.md section 4.8).
type externalProcess struct {
	conn *Connector
	pid  int
	job  connector.Job
}

func (p *externalProcess) alive() bool {
	_, _, code, err := p.conn.runCommand(fmt.Sprintf("kill -0 %d", p.pid))
	return err == nil && code == 0
}

func (p *externalProcess) IsRunning() bool { return p.alive() }

func (p *externalProcess) ExitCode() int {
	for p.alive() {
		time.Sleep(time.Second)
	}
	if p.job == nil {
		return -1
	}
	path := p.job.Locator().Resolve("job.exit_code")
	stdout, _, code, err := p.conn.runCommand("cat " + quote(path.Path))
	if err != nil || code != 0 {
		return -1
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(stdout)))
	if err != nil {
		return -1
	}
	return n
}

func (p *externalProcess) Kill(force bool) error {
	sig := "INT"
	if force {
		sig = "TERM"
	}
	_, _, code, err := p.conn.runCommand(fmt.Sprintf("kill -%s %d", sig, p.pid))
	if err != nil {
		return err
	}
	if code != 0 {
		return xerrors.IO(nil, "kill -%s %d failed on %s", sig, p.pid, p.conn.host)
	}
	return nil
}

func (p *externalProcess) Write([]byte) (int64, error) {
	return -1, xerrors.Argument("cannot write to a reattached process")
}

func (p *externalProcess) EOF() error {
	return xerrors.Argument("cannot close stdin of a reattached process")
}
