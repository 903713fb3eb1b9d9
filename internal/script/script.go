// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

// Package script implements the ShScriptBuilder from spec.md section
// 4.5: it renders the full POSIX run-protocol script for one job,
// including the state-file handshake, environment export, cleanup
// trap, and the main command subshell.
package script

import (
	"fmt"
	"sort"
	"strings"

	"github.com/experimaestro/experimaestro-go/internal/command"
	"github.com/experimaestro/experimaestro-go/internal/connector"
	"github.com/experimaestro/experimaestro-go/internal/job"
	"github.com/experimaestro/experimaestro-go/internal/xerrors"
	"github.com/experimaestro/experimaestro-go/internal/xpath"
)

// Spec carries what ShScriptBuilder needs beyond what job.Job itself
// exposes: the rendered command line, environment, and notification
// target (spec.md section 4.5).
type Spec struct {
	Name                string // script base name, e.g. "job"
	Environment         map[string]string
	NotificationBaseURL string // XPM_NOTIFICATION_URL base; empty if unset
	JobID               string // appended as "<base>/<job-id>"
	CommandLine         *command.CommandLine
	WorkspaceGet        func(key string) (string, bool)
}

// Builder is the ShScriptBuilder: given a connector and a job, it
// writes an executable script at scriptPath.
type Builder struct {
	Connector connector.Connector
}

// NewBuilder returns a Builder bound to conn.
func NewBuilder(conn connector.Connector) *Builder {
	return &Builder{Connector: conn}
}

// Build renders and writes the script for j at scriptPath (the
// workspace runner places it inside the job's own directory, as
// job.sh), then marks it executable.
func (b *Builder) Build(j *job.Job, spec Spec, scriptPath xpath.Path) error {
	dir := j.Locator()
	name := spec.Name

	resolve := func(p xpath.Path) (string, error) { return b.Connector.Resolve(p) }

	lockPath, err := resolve(dir.Resolve(name + ".lock"))
	if err != nil {
		return err
	}
	startLockPath, err := resolve(dir.Resolve(name + ".lock.start"))
	if err != nil {
		return err
	}
	pidPath, err := resolve(dir.Resolve(name + ".pid"))
	if err != nil {
		return err
	}
	exitCodePath, err := resolve(dir.Resolve(name + ".exit_code"))
	if err != nil {
		return err
	}
	donePath, err := resolve(dir.Resolve(name + ".done"))
	if err != nil {
		return err
	}
	dirPath, err := resolve(dir)
	if err != nil {
		return err
	}

	var pipeNames []string
	if spec.CommandLine != nil {
		pipeNames = spec.CommandLine.PipeNames()
	}

	var s strings.Builder
	s.WriteString("#!/bin/sh\n")
	fmt.Fprintf(&s, "# run protocol script for %s\n\n", name)

	// step 2: external lock files held by the workspace before launch.
	fmt.Fprintf(&s, "if [ ! -e %s ]; then exit 017; fi\n", shQuote(lockPath))

	// step 3: start-lock gate, consumed immediately.
	fmt.Fprintf(&s, "if [ ! -e %s ]; then exit 017; fi\n", shQuote(startLockPath))
	fmt.Fprintf(&s, "rm -f %s\n\n", shQuote(startLockPath))

	// step 4
	s.WriteString("set -o pipefail\n\n")

	// step 5: pid file
	fmt.Fprintf(&s, "echo $$ > %s\n\n", shQuote(pidPath))

	// step 6: environment
	for _, k := range sortedKeys(spec.Environment) {
		fmt.Fprintf(&s, "export %s=\"%s\"\n", k, shQuoteDouble(spec.Environment[k]))
	}
	if len(spec.Environment) > 0 {
		s.WriteString("\n")
	}

	// step 7: notification url
	if spec.NotificationBaseURL != "" {
		fmt.Fprintf(&s, "export XPM_NOTIFICATION_URL=\"%s/%s\"\n\n",
			shQuoteDouble(spec.NotificationBaseURL), shQuoteDouble(spec.JobID))
	}

	// step 8: cd into the job directory
	fmt.Fprintf(&s, "cd %s\n\n", shQuote(dirPath))

	// step 9: preprocess command
	if spec.CommandLine != nil && spec.CommandLine.Preprocess != "" {
		fmt.Fprintf(&s, "%s\n\n", spec.CommandLine.Preprocess)
	}

	// step 10+11: cleanup() and trap
	s.WriteString("cleanup() {\n")
	s.WriteString("  echo 'cleaning up' >&2\n")
	s.WriteString("  trap - 0\n")
	fmt.Fprintf(&s, "  rm -f %s\n", shQuote(pidPath))
	fmt.Fprintf(&s, "  rm -f %s\n", shQuote(lockPath))
	for _, pipe := range pipeNames {
		p, err := resolve(dir.Resolve(pipe))
		if err != nil {
			return err
		}
		fmt.Fprintf(&s, "  rm -f %s\n", shQuote(p))
	}
	if spec.NotificationBaseURL != "" {
		s.WriteString("  curl -s -m 1 \"$XPM_NOTIFICATION_URL?status=done\" >/dev/null 2>&1 || true\n")
	}
	s.WriteString("  pkill -KILL -P $$ 2>/dev/null || true\n")
	s.WriteString("}\n")
	s.WriteString("trap cleanup 0\n\n")

	// step 12: checkerror()
	s.WriteString("checkerror() {\n")
	s.WriteString("  for code in \"$@\"; do\n")
	s.WriteString("    if [ \"$code\" != \"0\" ] && [ \"$code\" != \"141\" ]; then\n")
	fmt.Fprintf(&s, "      echo \"$code\" > %s\n", shQuote(exitCodePath))
	s.WriteString("      exit \"$code\"\n")
	s.WriteString("    fi\n")
	s.WriteString("  done\n")
	s.WriteString("}\n\n")

	for _, pipe := range pipeNames {
		p, err := resolve(dir.Resolve(pipe))
		if err != nil {
			return err
		}
		fmt.Fprintf(&s, "mkfifo %s 2>/dev/null || true\n", shQuote(p))
	}

	// step 13: main command subshell
	auxCounters := map[[2]string]int{}
	nextAux := func(prefix, suffix string) string {
		key := [2]string{prefix, suffix}
		auxCounters[key]++
		auxName := fmt.Sprintf("%s_%02d.%s.%s", name, auxCounters[key], prefix, suffix)
		resolved, _ := resolve(dir.Resolve(auxName))
		return resolved
	}

	ctx := &command.Context{
		Environment:  spec.Environment,
		Connector:    b.Connector,
		WorkspaceGet: spec.WorkspaceGet,
		NextAux:      nextAux,
	}

	body, err := renderCommandLine(ctx, bindWriters(spec.CommandLine, b.Connector), dir)
	if err != nil {
		return err
	}

	s.WriteString("(\n")
	s.WriteString(body)
	s.WriteString(") &\n")
	s.WriteString("PID=$!\n")
	s.WriteString("wait \"$PID\"\n")
	s.WriteString("code=$?\n")
	fmt.Fprintf(&s, "if [ \"$code\" != \"0\" ]; then echo \"$code\" > %s; exit \"$code\"; fi\n", shQuote(exitCodePath))
	fmt.Fprintf(&s, "echo 0 > %s\n", shQuote(exitCodePath))
	fmt.Fprintf(&s, "touch %s\n", shQuote(donePath))

	w, err := b.Connector.OStream(scriptPath)
	if err != nil {
		return xerrors.IO(err, "opening script %q for write", scriptPath)
	}
	if _, err := w.Write([]byte(s.String())); err != nil {
		w.Close()
		return xerrors.IO(err, "writing script %q", scriptPath)
	}
	if err := w.Close(); err != nil {
		return xerrors.IO(err, "closing script %q", scriptPath)
	}
	return b.Connector.SetExecutable(scriptPath, true)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
