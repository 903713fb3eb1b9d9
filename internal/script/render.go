// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package script

import (
	"strings"

	"github.com/experimaestro/experimaestro-go/internal/command"
	"github.com/experimaestro/experimaestro-go/internal/xpath"
)

// renderCommandLine renders cl as the body of the main subshell from
// spec.md section 4.5 step 13. Multiple Commands are joined into a
// single shell pipe chain ("cmd1 | cmd2 | ..."), relying on the
// "set -o pipefail" from step 4 so a single "$?" is non-zero when any
// stage fails (it carries the rightmost failing stage's status);
// checkerror() then applies the exit-code-file
// and exit logic uniformly whether there was one command or several.
//
// Multiple consumers of one named pipe are approximated with a single
// shared fifo and "tee": a true fan-out (one fifo per consumer) is
// left out of scope, noted in DESIGN.md.
func renderCommandLine(ctx *command.Context, cl *command.CommandLine, dir xpath.Path) (string, error) {
	if cl == nil || len(cl.Commands) == 0 {
		return "  :\n", nil
	}

	lines := make([]string, 0, len(cl.Commands))
	for _, cmd := range cl.Commands {
		line, err := renderCommand(ctx, cmd, dir)
		if err != nil {
			return "", err
		}
		lines = append(lines, line)
	}

	var body strings.Builder
	body.WriteString("  ")
	body.WriteString(strings.Join(lines, " | "))
	body.WriteString("\n  checkerror $?\n")
	return body.String(), nil
}

func renderCommand(ctx *command.Context, cmd command.Command, dir xpath.Path) (string, error) {
	parts := make([]string, 0, len(cmd.Parts))
	for _, part := range cmd.Parts {
		var b strings.Builder
		if err := part.Render(ctx, &b); err != nil {
			return "", err
		}
		parts = append(parts, b.String())
	}
	line := strings.Join(parts, " ")

	prefix, err := renderStdin(ctx, cmd.Stdin, dir)
	if err != nil {
		return "", err
	}
	suffix, err := renderOutput(ctx, cmd.Stdout, ">", dir)
	if err != nil {
		return "", err
	}
	errSuffix, err := renderOutput(ctx, cmd.Stderr, "2>", dir)
	if err != nil {
		return "", err
	}

	return prefix + line + suffix + errSuffix, nil
}

func renderStdin(ctx *command.Context, r command.Redirect, dir xpath.Path) (string, error) {
	switch r.Kind {
	case command.RedirectFile:
		p, err := ctx.Connector.Resolve(r.Path)
		if err != nil {
			return "", err
		}
		return "cat " + shQuote(p) + " | ", nil
	case command.RedirectPipeline:
		p, err := ctx.Connector.Resolve(dir.Resolve(r.PipeName))
		if err != nil {
			return "", err
		}
		return "cat " + shQuote(p) + " | ", nil
	default:
		return "", nil
	}
}

func renderOutput(ctx *command.Context, r command.Redirect, op string, dir xpath.Path) (string, error) {
	switch r.Kind {
	case command.RedirectFile:
		p, err := ctx.Connector.Resolve(r.Path)
		if err != nil {
			return "", err
		}
		return " " + op + " " + shQuote(p), nil
	case command.RedirectPipeline:
		p, err := ctx.Connector.Resolve(dir.Resolve(r.PipeName))
		if err != nil {
			return "", err
		}
		if op == ">" {
			return " | tee " + shQuote(p) + " > /dev/null", nil
		}
		return " " + op + " " + shQuote(p), nil
	default:
		return "", nil
	}
}
