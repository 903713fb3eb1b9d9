// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package command

import "github.com/experimaestro/experimaestro-go/internal/value"

// BindRoot returns a copy of cl in which every Parameters part's Root
// is set to root. A Task's CommandLine (internal/xtype.Task's
// CommandLine field) is one shared template reused for every job
// submitted against that task -- spec.md section 4.4's Task.submit
// takes (workspace, launcher, value) and attaches the *same*
// command_line to a freshly constructed job each time. Only the value
// passed to that particular submit call is "the task's parameters"
// a Parameters part (section 4.6) must render, so the template itself
// carries a nil Root and this function fills it in once per
// submission, before the script builder's own bindWriters pass adds
// the write callbacks.
func BindRoot(cl *CommandLine, root *value.Value) *CommandLine {
	if cl == nil {
		return nil
	}
	out := &CommandLine{Preprocess: cl.Preprocess}
	out.Commands = make([]Command, len(cl.Commands))
	for i, c := range cl.Commands {
		out.Commands[i] = Command{
			Parts:  bindRootParts(c.Parts, root),
			Stdin:  c.Stdin,
			Stdout: c.Stdout,
			Stderr: c.Stderr,
		}
	}
	return out
}

func bindRootParts(parts []Part, root *value.Value) []Part {
	out := make([]Part, len(parts))
	for i, p := range parts {
		if params, ok := p.(Parameters); ok {
			params.Root = root
			out[i] = params
			continue
		}
		out[i] = p
	}
	return out
}
