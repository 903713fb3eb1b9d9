// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package script

import (
	"github.com/experimaestro/experimaestro-go/internal/command"
	"github.com/experimaestro/experimaestro-go/internal/connector"
	"github.com/experimaestro/experimaestro-go/internal/value"
	"github.com/experimaestro/experimaestro-go/internal/xerrors"
	"github.com/experimaestro/experimaestro-go/internal/xpath"
)

// bindWriters returns a copy of cl in which every CommandContent and
// CommandParameters part is given a Write/WriteJSON callback that
// persists through conn -- spec.md section 4.5 names the script
// builder as the owner of the job directory these auxiliary files are
// written into, so the callbacks are bound here rather than by
// whoever first constructed the CommandLine (the workspace, at task
// submission time, before a connector or job directory even exists).
func bindWriters(cl *command.CommandLine, conn connector.Connector) *command.CommandLine {
	if cl == nil {
		return nil
	}
	out := &command.CommandLine{Preprocess: cl.Preprocess}
	out.Commands = make([]command.Command, len(cl.Commands))
	for i, c := range cl.Commands {
		out.Commands[i] = command.Command{
			Parts:  bindParts(c.Parts, conn),
			Stdin:  c.Stdin,
			Stdout: c.Stdout,
			Stderr: c.Stderr,
		}
	}
	return out
}

func bindParts(parts []command.Part, conn connector.Connector) []command.Part {
	out := make([]command.Part, len(parts))
	for i, p := range parts {
		switch part := p.(type) {
		case command.Content:
			part.Write = func(auxPath, text string) error {
				return writeString(conn, auxPath, text)
			}
			out[i] = part
		case command.Parameters:
			part.WriteJSON = func(auxPath string, root *value.Value) error {
				resolve := func(p xpath.Path) (string, error) { return conn.Resolve(p) }
				data, err := root.MarshalParameterJSON(resolve)
				if err != nil {
					return err
				}
				return writeString(conn, auxPath, string(data))
			}
			out[i] = part
		default:
			out[i] = p
		}
	}
	return out
}

func writeString(conn connector.Connector, resolvedPath, text string) error {
	w, err := conn.OStream(xpath.Local(resolvedPath))
	if err != nil {
		return xerrors.IO(err, "opening auxiliary file %q for write", resolvedPath)
	}
	if _, err := w.Write([]byte(text)); err != nil {
		w.Close()
		return xerrors.IO(err, "writing auxiliary file %q", resolvedPath)
	}
	return w.Close()
}
