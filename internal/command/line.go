// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package command

import "github.com/experimaestro/experimaestro-go/internal/xpath"

// RedirectKind discriminates a Command's stdin/stdout/stderr wiring,
// per spec.md section 4.5's command-rendering rules.
type RedirectKind int

const (
	RedirectNone RedirectKind = iota
	RedirectFile
	// RedirectPipeline names a fifo shared with other commands in the
	// same CommandLine: a command writing its stdout to it emits
	// "| tee <name> > /dev/null" (stderr: "2> <name>"), one reading from
	// it emits a "cat <name> | " prefix. The script builder mkfifo's
	// the name once per CommandLine and removes it in cleanup().
	RedirectPipeline
)

// Redirect is one end of a Command's stdio wiring.
type Redirect struct {
	Kind     RedirectKind
	Path     xpath.Path
	PipeName string
}

// NoRedirect leaves the stream inherited from the enclosing subshell.
func NoRedirect() Redirect { return Redirect{Kind: RedirectNone} }

// FileRedirect wires the stream to a file path.
func FileRedirect(p xpath.Path) Redirect { return Redirect{Kind: RedirectFile, Path: p} }

// PipeRedirect wires the stream through a named fifo shared across the
// CommandLine.
func PipeRedirect(name string) Redirect { return Redirect{Kind: RedirectPipeline, PipeName: name} }

// Command is one AbstractCommand: a sequence of Parts rendered
// space-separated, with its own stdio redirections.
type Command struct {
	Parts  []Part
	Stdin  Redirect
	Stdout Redirect
	Stderr Redirect
}

// CommandLine is the task's full command: an optional preprocess
// shell fragment, followed by one or more Commands. When there is
// more than one Command, they are rendered as a single subshell
// (spec.md section 4.5).
type CommandLine struct {
	Preprocess string
	Commands   []Command
}

// PipeNames returns the distinct named pipes referenced anywhere in cl,
// in first-seen order, so the script builder can mkfifo/cleanup them.
func (cl *CommandLine) PipeNames() []string {
	seen := map[string]bool{}
	var names []string
	add := func(r Redirect) {
		if r.Kind == RedirectPipeline && !seen[r.PipeName] {
			seen[r.PipeName] = true
			names = append(names, r.PipeName)
		}
	}
	for _, c := range cl.Commands {
		add(c.Stdin)
		add(c.Stdout)
		add(c.Stderr)
	}
	return names
}
