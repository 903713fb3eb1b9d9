// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

// Package launcher implements the Launcher abstraction from spec.md
// section 4.2: something that binds a connector to a script-building
// strategy plus environment/notification defaults, and knows how to
// reattach to an already-running job after a restart.
package launcher

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/experimaestro/experimaestro-go/internal/connector"
	"github.com/experimaestro/experimaestro-go/internal/process"
	"github.com/experimaestro/experimaestro-go/internal/script"
	"github.com/experimaestro/experimaestro-go/internal/xerrors"
	"github.com/experimaestro/experimaestro-go/internal/xpath"
)

// Launcher binds a connector to a script-building strategy and carries
// the environment/notification defaults applied to every job it runs,
// per spec.md section 4.2.
type Launcher interface {
	// Connector returns the connector this launcher submits through.
	Connector() connector.Connector

	// ScriptBuilder returns the script.Builder used to render a job's
	// run script on this launcher's connector.
	ScriptBuilder() *script.Builder

	// Environment returns the base environment merged into every job
	// (these entries override the workspace environment on collision).
	Environment() map[string]string

	// NotificationBaseURL is the XPM_NOTIFICATION_URL prefix exported
	// into every job's script; empty disables progress notification.
	NotificationBaseURL() string

	// Check reattaches to an externally running job left over from a
	// previous process, or returns (nil, nil) if none is running.
	Check(j connector.Job) (process.Process, error)

	// Submit starts scriptPath for job j and returns its process handle.
	Submit(j connector.Job, scriptPath xpath.Path) (process.Process, error)
}

// base holds the fields and reattachment logic common to every
// Launcher implementation.
type base struct {
	conn            connector.Connector
	builder         *script.Builder
	environment     map[string]string
	notificationURL string
}

func (b *base) Connector() connector.Connector { return b.conn }
func (b *base) ScriptBuilder() *script.Builder { return b.builder }
func (b *base) Environment() map[string]string { return b.environment }
func (b *base) NotificationBaseURL() string    { return b.notificationURL }

// check reattaches by reading job_dir/job.pid and calling
// connector.GetProcess(job, pid); per spec.md section 4.2, returns
// (nil, nil) if the pid file is absent.
func (b *base) check(j connector.Job) (process.Process, error) {
	pid, ok, err := ReadPID(b.conn, j)
	if err != nil || !ok {
		return nil, err
	}
	return b.conn.GetProcess(j, pid)
}

// ReadPID reads job_dir/job.pid through conn and parses it, returning
// (0, false, nil) if the file is absent or empty (e.g. truncated by
// Job.Resubmit). Exported so the workspace's restart scan can find a
// pid to reattach to without duplicating the pid-file protocol defined
// here.
func ReadPID(conn connector.Connector, j connector.Job) (int, bool, error) {
	pidPath := j.Locator().Resolve("job.pid")
	ft, err := conn.FileType(pidPath)
	if err != nil {
		return 0, false, err
	}
	if ft != connector.File {
		return 0, false, nil
	}

	r, err := conn.IStream(pidPath)
	if err != nil {
		return 0, false, err
	}
	defer r.Close()

	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		return 0, false, nil
	}
	pid, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return 0, false, xerrors.IO(err, "parsing pid file for %s", j.Locator().Path)
	}
	return pid, true, nil
}

// submit runs argv as a detached, inherited-stdio process rooted at
// the job's directory.
func (b *base) submit(j connector.Job, argv []string) (process.Process, error) {
	dir, err := b.conn.Resolve(j.Locator())
	if err != nil {
		return nil, err
	}
	return b.conn.ProcessBuilder().
		WorkingDirectory(xpath.Local(dir)).
		Command(argv).
		Stdin(process.RedirectNone{}).
		Stdout(process.RedirectInherit{}).
		Stderr(process.RedirectInherit{}).
		Detach(true).
		Start()
}

// DirectLauncher runs scripts directly through its connector's
// ProcessBuilder -- local execution or a bare SSH exec, with no
// scheduler in between.
type DirectLauncher struct {
	base
}

// NewDirectLauncher builds a DirectLauncher over conn, with the given
// base environment and notification URL (either may be empty/nil).
func NewDirectLauncher(conn connector.Connector, environment map[string]string, notificationBaseURL string) *DirectLauncher {
	return &DirectLauncher{base{
		conn:            conn,
		builder:         script.NewBuilder(conn),
		environment:     environment,
		notificationURL: notificationBaseURL,
	}}
}

func (l *DirectLauncher) Check(j connector.Job) (process.Process, error) { return l.check(j) }

// Submit starts scriptPath directly, detached so it outlives this
// process.
func (l *DirectLauncher) Submit(j connector.Job, scriptPath xpath.Path) (process.Process, error) {
	path, err := l.conn.Resolve(scriptPath)
	if err != nil {
		return nil, err
	}
	return l.submit(j, []string{path})
}

// OARLauncher composes an "oarsub" submission command around the
// inner script. Per spec.md section 4.2, OAR's resource-directive
// decoration is explicitly deferred ("not in core"); what's
// implemented here is the part spec.md does specify: the submission
// command wraps the unmodified inner script, and the script builder
// itself is the same ShScriptBuilder as DirectLauncher's -- no
// scheduler directives are injected into the script body. Resource
// requests (node/core counts, walltime) are only expressible by
// passing oarsub options verbatim through ExtraArgs.
type OARLauncher struct {
	base
	// OarsubPath is the oarsub binary to invoke; defaults to "oarsub"
	// if empty.
	OarsubPath string
	// ExtraArgs are passed to oarsub before the script path (e.g.
	// "-l", "nodes=1").
	ExtraArgs []string
}

// NewOARLauncher builds an OARLauncher over conn.
func NewOARLauncher(conn connector.Connector, environment map[string]string, notificationBaseURL string, extraArgs ...string) *OARLauncher {
	return &OARLauncher{
		base: base{
			conn:            conn,
			builder:         script.NewBuilder(conn),
			environment:     environment,
			notificationURL: notificationBaseURL,
		},
		OarsubPath: "oarsub",
		ExtraArgs:  extraArgs,
	}
}

// Check defers to the same pid-file reattachment as DirectLauncher:
// oarsub execs the script as a regular child process on the allocated
// node, so the pid file protocol is unchanged.
func (l *OARLauncher) Check(j connector.Job) (process.Process, error) { return l.check(j) }

// Submit wraps scriptPath in an oarsub invocation.
func (l *OARLauncher) Submit(j connector.Job, scriptPath xpath.Path) (process.Process, error) {
	path, err := l.conn.Resolve(scriptPath)
	if err != nil {
		return nil, err
	}
	oarsub := l.OarsubPath
	if oarsub == "" {
		oarsub = "oarsub"
	}
	argv := append([]string{oarsub}, l.ExtraArgs...)
	argv = append(argv, path)
	return l.submit(j, argv)
}

var (
	_ Launcher = (*DirectLauncher)(nil)
	_ Launcher = (*OARLauncher)(nil)
)
