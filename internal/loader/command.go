// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package loader

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/experimaestro/experimaestro-go/internal/command"
	"github.com/experimaestro/experimaestro-go/internal/xerrors"
	"github.com/experimaestro/experimaestro-go/internal/xpath"
)

// partDef is one AbstractCommandComponent, spec.md section 4.6's
// CommandString/CommandPath/CommandPathReference/CommandContent/
// CommandParameters -- exactly one field is set per entry.
type partDef struct {
	String     *string     `yaml:"string"`
	Path       *string     `yaml:"path"`
	PathRef    *string     `yaml:"path_ref"`
	Content    *contentDef `yaml:"content"`
	Parameters bool        `yaml:"parameters"`
}

type contentDef struct {
	Key  string `yaml:"key"`
	Text string `yaml:"text"`
}

// stageDef is one full Command: a parts list plus its own stdio
// wiring, for the multi-command pipeline shape of spec.md section
// 4.5 ("a CommandLine is a sequence of Commands").
type stageDef struct {
	Parts  []partDef `yaml:"parts"`
	Stdin  string    `yaml:"stdin"`
	Stdout string    `yaml:"stdout"`
	Stderr string    `yaml:"stderr"`
}

// partOrStage is one element of a task's command array. Most tasks
// need only a single Command, so a bare part-spec (no "parts" key) is
// the common case; an entry carrying "parts" (and optionally
// stdin/stdout/stderr) opts into the multi-command pipeline shape.
// Mixing the two shapes in one command array is rejected rather than
// guessed at.
type partOrStage struct {
	isStage bool
	stage   stageDef
	part    partDef
}

func (p *partOrStage) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("command entry: expected a mapping, got kind %d", node.Kind)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == "parts" {
			p.isStage = true
			break
		}
	}
	if p.isStage {
		return node.Decode(&p.stage)
	}
	return node.Decode(&p.part)
}

// buildCommandLine translates a task entry's preprocess string and
// command array into a *command.CommandLine. Parameters parts are
// left with a nil Root: internal/command.BindRoot fills it in once
// per job submission, since the CommandLine built here is the shared
// template attached to every job of this task (see DESIGN.md).
func buildCommandLine(preprocess string, defs []partOrStage) (*command.CommandLine, error) {
	cl := &command.CommandLine{Preprocess: preprocess}
	if len(defs) == 0 {
		return cl, nil
	}

	anyStage := false
	for _, d := range defs {
		if d.isStage {
			anyStage = true
			break
		}
	}

	if !anyStage {
		parts := make([]partDef, len(defs))
		for i, d := range defs {
			parts[i] = d.part
		}
		built, err := buildParts(parts)
		if err != nil {
			return nil, err
		}
		cl.Commands = []command.Command{{Parts: built}}
		return cl, nil
	}

	cl.Commands = make([]command.Command, len(defs))
	for i, d := range defs {
		if !d.isStage {
			return nil, xerrors.Argument("command entry %d: cannot mix bare parts with \"parts\"-keyed stages in one command array", i)
		}
		built, err := buildParts(d.stage.Parts)
		if err != nil {
			return nil, err
		}
		cl.Commands[i] = command.Command{
			Parts:  built,
			Stdin:  parseRedirect(d.stage.Stdin),
			Stdout: parseRedirect(d.stage.Stdout),
			Stderr: parseRedirect(d.stage.Stderr),
		}
	}
	return cl, nil
}

func buildParts(defs []partDef) ([]command.Part, error) {
	out := make([]command.Part, len(defs))
	for i, pd := range defs {
		part, err := buildPart(pd)
		if err != nil {
			return nil, xerrors.Argument("command part %d: %v", i, err)
		}
		out[i] = part
	}
	return out, nil
}

func buildPart(pd partDef) (command.Part, error) {
	switch {
	case pd.String != nil:
		return command.String{Text: *pd.String}, nil
	case pd.Path != nil:
		return command.Path{P: xpath.Local(*pd.Path)}, nil
	case pd.PathRef != nil:
		return command.PathReference{Key: *pd.PathRef}, nil
	case pd.Content != nil:
		return command.Content{Key: pd.Content.Key, Text: pd.Content.Text}, nil
	case pd.Parameters:
		return command.Parameters{}, nil
	default:
		return nil, fmt.Errorf("must set exactly one of string/path/path_ref/content/parameters")
	}
}

// parseRedirect reads a stdin/stdout/stderr entry: empty means
// inherited (NoRedirect), a "pipe:<name>" prefix means the named-fifo
// redirection of spec.md section 4.5, anything else is a file path.
func parseRedirect(s string) command.Redirect {
	if s == "" {
		return command.NoRedirect()
	}
	if name, ok := strings.CutPrefix(s, "pipe:"); ok {
		return command.PipeRedirect(name)
	}
	return command.FileRedirect(xpath.Local(s))
}
