// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package xtype

import "github.com/experimaestro/experimaestro-go/internal/xpath"

// GenerationContext carries what a Generator needs to compute a missing
// argument's value, per spec.md section 3's Generator description.
//
// RootUniqueID is supplied lazily (a callback, not a precomputed
// string) because PathGenerator's own argument is conventionally
// ignorable (paths default to CanIgnore), so the root digest can be
// computed without first knowing the generated path -- calling it eagerly
// before generation would be a real cycle, calling it lazily is not.
type GenerationContext struct {
	JobsDir        xpath.Path
	TaskIdentifier Typename
	RootUniqueID   func() (string, error)
}

// Generator computes a value for an absent argument during generation.
// It returns an opaque dynamic value (e.g. xpath.Path for
// PathGenerator); the value package interprets the concrete type.
type Generator interface {
	Generate(ctx GenerationContext) (any, error)
}

// PathGenerator is the one generator variant spec.md names: it derives
// a path under the workspace's jobs directory, namespaced by task and
// the root value's unique id.
type PathGenerator struct {
	Name string
}

func (g PathGenerator) Generate(ctx GenerationContext) (any, error) {
	uid, err := ctx.RootUniqueID()
	if err != nil {
		return nil, err
	}
	p := ctx.JobsDir.Resolve(ctx.TaskIdentifier.String(), uid)
	if g.Name != "" {
		p = p.Resolve(g.Name)
	}
	return p, nil
}
