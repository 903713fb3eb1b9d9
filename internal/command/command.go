// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

// Package command implements the composable command model from
// spec.md section 4.6: AbstractCommandComponent variants referencing
// parameters, paths, and inline content, plus the add_dependencies
// walk that anchors parameter-driven dependency discovery.
package command

import (
	"github.com/experimaestro/experimaestro-go/internal/connector"
	"github.com/experimaestro/experimaestro-go/internal/resource"
	"github.com/experimaestro/experimaestro-go/internal/value"
	"github.com/experimaestro/experimaestro-go/internal/xerrors"
	"github.com/experimaestro/experimaestro-go/internal/xpath"
)

// Context is the rendering context threaded through Output: workspace
// environment variables for CommandString expansion, a connector to
// resolve paths, the workspace key/value lookup used by PathReference,
// and an auxiliary-file naming counter. Per spec.md section 9's design note,
// the per-part identity keys (e.g. for named-pipe assignment) are
// plain Go pointer identity, not an explicit integer id -- Go has
// first-class pointer identity, unlike the reference language this
// design note was written against.
type Context struct {
	Environment map[string]string
	Connector   connector.Connector
	WorkspaceGet func(key string) (string, bool)
	NextAux     func(prefix, suffix string) string
}

// Part is one node of a rendered command: for_each(visitor) and
// output(context, writer) from spec.md section 4.6, realized in Go as
// Walk and Render.
type Part interface {
	// Render writes this part's textual contribution to w.
	Render(ctx *Context, w StringWriter) error
	// Walk visits this part and, for composite parts, its children.
	Walk(visit func(Part))
	// AddDependencies lets a part contribute job dependencies when the
	// owning job's parameter tree is walked (only CommandParameters
	// does anything here).
	AddDependencies(target resource.DependencyTarget, addDependency func(resource.Dependency))
}

// StringWriter is the minimal sink Render needs; *strings.Builder
// satisfies it.
type StringWriter interface {
	WriteString(s string) (int, error)
}

// String is a literal command token; {{var}} references are expanded
// against ctx.Environment in a single, non-recursive pass.
type String struct{ Text string }

func (c String) Render(ctx *Context, w StringWriter) error {
	_, err := w.WriteString(expandBraces(c.Text, ctx.Environment))
	return err
}
func (c String) Walk(visit func(Part))                                              { visit(c) }
func (c String) AddDependencies(resource.DependencyTarget, func(resource.Dependency)) {}

// Path emits connector.Resolve(P).
type Path struct{ P xpath.Path }

func (c Path) Render(ctx *Context, w StringWriter) error {
	resolved, err := ctx.Connector.Resolve(c.P)
	if err != nil {
		return err
	}
	_, err = w.WriteString(resolved)
	return err
}
func (c Path) Walk(visit func(Part))                                              { visit(c) }
func (c Path) AddDependencies(resource.DependencyTarget, func(resource.Dependency)) {}

// PathReference looks up a named path in the workspace's key/value
// store, failing if absent.
type PathReference struct{ Key string }

func (c PathReference) Render(ctx *Context, w StringWriter) error {
	v, ok := ctx.WorkspaceGet(c.Key)
	if !ok {
		return xerrors.Argument("unresolved path reference %q", c.Key)
	}
	_, err := w.WriteString(v)
	return err
}
func (c PathReference) Walk(visit func(Part))                                              { visit(c) }
func (c PathReference) AddDependencies(resource.DependencyTarget, func(resource.Dependency)) {}

// Content writes Text to an auxiliary file named
// "<base>_NN.<Key>.input" and emits that file's path.
type Content struct {
	Key  string
	Text string
	// Write persists Text to the resolved auxiliary path; supplied by
	// the script builder, which owns the job directory and naming
	// counters.
	Write func(auxPath string, text string) error
}

func (c Content) Render(ctx *Context, w StringWriter) error {
	auxPath := ctx.NextAux(c.Key, "input")
	if c.Write != nil {
		if err := c.Write(auxPath, c.Text); err != nil {
			return err
		}
	}
	_, err := w.WriteString(auxPath)
	return err
}
func (c Content) Walk(visit func(Part))                                              { visit(c) }
func (c Content) AddDependencies(resource.DependencyTarget, func(resource.Dependency)) {}

// Parameters writes the task's parameter tree as JSON to
// "<base>_NN.params.json" and emits that file's path. It is the anchor
// for parameter-driven dependency discovery: add_dependencies walks
// Root's descendants and, for every Map whose Job back-reference is set
// and which is not ignorable, creates a dependency from that job onto
// target. Root's own Job back-reference is not tested.
type Parameters struct {
	Root *value.Value
	// WriteJSON persists the rendered parameter JSON to auxPath;
	// supplied by the script builder.
	WriteJSON func(auxPath string, root *value.Value) error
}

func (c Parameters) Render(ctx *Context, w StringWriter) error {
	auxPath := ctx.NextAux("params", "json")
	if c.WriteJSON != nil {
		if err := c.WriteJSON(auxPath, c.Root); err != nil {
			return err
		}
	}
	_, err := w.WriteString(auxPath)
	return err
}
func (c Parameters) Walk(visit func(Part)) { visit(c) }

func (c Parameters) AddDependencies(target resource.DependencyTarget, addDependency func(resource.Dependency)) {
	walkParameterDependencyChildren(c.Root, target, addDependency)
}

// CollectDependencies walks v (a task's whole parameter tree, not just
// one CommandParameters part) and registers a dependency with target
// for every Map carrying a Job back-reference. This is what
// spec.md section 4.7's "collects dependencies by walking the value
// tree" names at the Task.submit level, reusing the same walk
// CommandParameters.AddDependencies anchors for in-command references.
//
// v's own root is never tested for a Job back-reference, only
// descended into: by the time this runs, Task.submit has already set
// v.Job to the job being submitted itself (spec.md section 4.4), so
// testing the root would manufacture a self-dependency on every job
// whose command line carries a CommandParameters part. Only a nested
// Map -- an argument value that is itself another task's sealed
// output, carrying that task's own Job back-reference -- contributes
// a real dependency.
func CollectDependencies(v *value.Value, target resource.DependencyTarget, addDependency func(resource.Dependency)) {
	walkParameterDependencyChildren(v, target, addDependency)
}

func walkParameterDependencies(v *value.Value, target resource.DependencyTarget, addDependency func(resource.Dependency)) {
	if v == nil || value.IsIgnorable(v) {
		return
	}
	switch v.Kind {
	case value.KindArray:
		walkParameterDependencyChildren(v, target, addDependency)
	case value.KindMap:
		if v.Job != nil {
			d := v.Job.CreateDependency()
			d.SetTarget(target)
			addDependency(d)
		}
		walkParameterDependencyChildren(v, target, addDependency)
	}
}

func walkParameterDependencyChildren(v *value.Value, target resource.DependencyTarget, addDependency func(resource.Dependency)) {
	if v == nil {
		return
	}
	switch v.Kind {
	case value.KindArray:
		for _, e := range v.Elements {
			walkParameterDependencies(e, target, addDependency)
		}
	case value.KindMap:
		for _, k := range v.Keys() {
			child, _ := v.Get(k)
			walkParameterDependencies(child, target, addDependency)
		}
	}
}

// expandBraces performs a single, non-recursive {{var}} substitution
// pass against env.
func expandBraces(s string, env map[string]string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); {
		if i+1 < len(s) && s[i] == '{' && s[i+1] == '{' {
			end := indexFrom(s, "}}", i+2)
			if end >= 0 {
				key := s[i+2 : end]
				if val, ok := env[key]; ok {
					out = append(out, val...)
					i = end + 2
					continue
				}
			}
		}
		out = append(out, s[i])
		i++
	}
	return string(out)
}

func indexFrom(s, sub string, from int) int {
	if from > len(s) {
		return -1
	}
	idx := indexOf(s[from:], sub)
	if idx < 0 {
		return -1
	}
	return from + idx
}

func indexOf(s, sub string) int {
	n, m := len(s), len(sub)
	if m == 0 {
		return 0
	}
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == sub {
			return i
		}
	}
	return -1
}
