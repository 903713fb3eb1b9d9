// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package xtype

import (
	"sync"

	"github.com/experimaestro/experimaestro-go/internal/xerrors"
)

// Registry owns every known Type and Task, keyed by Typename. It is the
// resolution context for parent/element/argument-type references and
// for accepts/lca, both of which need to walk type ancestry.
type Registry struct {
	mu    sync.RWMutex
	types map[Typename]*Type
	tasks map[Typename]*Task
}

// castablePair whitelists (self, other) pairs accepted despite not
// being in a descends-from relationship -- initially just real<-integer.
var castablePairs = map[[2]Typename]bool{
	{"real", "integer"}: true,
}

// NewRegistry builds a Registry with the predefined leaves installed:
// any, boolean, integer, real, string, path.
func NewRegistry() *Registry {
	r := &Registry{
		types: make(map[Typename]*Type),
		tasks: make(map[Typename]*Task),
	}
	any_ := &Type{Name: "any", Kind: KindSimple, Arguments: NewArguments()}
	r.types["any"] = any_

	leaf := func(name Typename, kind ScalarKind, canIgnore bool) {
		r.types[name] = &Type{
			Name:       name,
			Kind:       KindSimple,
			ScalarKind: kind,
			ParentName: "any",
			Arguments:  NewArguments(),
			CanIgnore:  canIgnore,
		}
	}
	leaf("boolean", ScalarBoolean, false)
	leaf("integer", ScalarInteger, false)
	leaf("real", ScalarReal, false)
	leaf("string", ScalarString, false)
	leaf("path", ScalarPath, true)
	return r
}

// Get returns the Type registered under name, resolving a trailing
// "[]" into an ArrayType wrapper lazily (the wrapper is built on each
// lookup and never stored in the registry, matching the
// "resolves... lazily" wording of spec.md section 4.4).
func (r *Registry) Get(name Typename) (*Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getLocked(name)
}

func (r *Registry) getLocked(name Typename) (*Type, bool) {
	if t, ok := r.types[name]; ok {
		return t, true
	}
	if name.IsArray() {
		elem, ok := r.getLocked(name.ElementName())
		if !ok {
			return nil, false
		}
		return &Type{Name: name, Kind: KindArray, ElementName: elem.Name, Arguments: NewArguments()}, true
	}
	return nil, false
}

// Placeholder returns the Type registered under name, creating an
// unresolved placeholder if none exists yet.
func (r *Registry) Placeholder(name Typename) *Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.types[name]; ok {
		return t
	}
	t := newPlaceholder(name)
	r.types[name] = t
	return t
}

// Define installs a fully-specified type under name. If a placeholder
// was previously registered under this name, its fields are mutated in
// place so that any Type already captured via Placeholder keeps
// pointing at live data once this call returns -- this is how argument
// and parent references taken before a forward-declared type was
// defined "see" the real definition afterward. Redefining an
// already-defined, non-placeholder type is an argument_error.
func (r *Registry) Define(def *Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.types[def.Name]
	if ok && !existing.Placeholder {
		return xerrors.Argument("type %q already defined", def.Name)
	}
	if !ok {
		r.types[def.Name] = def
		return nil
	}

	existing.Kind = def.Kind
	existing.ScalarKind = def.ScalarKind
	existing.ParentName = def.ParentName
	existing.ElementName = def.ElementName
	existing.Arguments = def.Arguments
	existing.Properties = def.Properties
	existing.CanIgnore = def.CanIgnore
	existing.Placeholder = false
	return nil
}

// Accepts implements Type.accepts(other) per spec.md section 3:
// self == any, or other descends from self, or (self, other) is a
// whitelisted castable pair.
func (r *Registry) Accepts(self, other *Type) bool {
	if self == nil || other == nil {
		return false
	}
	if self.Name == "any" {
		return true
	}
	if self.Name == other.Name {
		return true
	}
	if castablePairs[[2]Typename{self.Name, other.Name}] {
		return true
	}
	return r.descendsFrom(other, self.Name)
}

func (r *Registry) descendsFrom(t *Type, ancestor Typename) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[Typename]bool{}
	for cur := t; cur != nil && !seen[cur.Name]; {
		seen[cur.Name] = true
		if cur.Name == ancestor {
			return true
		}
		if cur.Kind == KindArray {
			return false
		}
		if cur.ParentName == "" {
			return false
		}
		next, ok := r.getLocked(cur.ParentName)
		if !ok {
			return false
		}
		cur = next
	}
	return false
}

// ancestors returns self and every ancestor up to and including "any".
func (r *Registry) ancestors(self *Type) []Typename {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var chain []Typename
	seen := map[Typename]bool{}
	for cur := self; cur != nil && !seen[cur.Name]; {
		seen[cur.Name] = true
		chain = append(chain, cur.Name)
		if cur.ParentName == "" {
			break
		}
		next, ok := r.getLocked(cur.ParentName)
		if !ok {
			break
		}
		cur = next
	}
	return chain
}

// LCA returns the lowest common ancestor of a and b, defaulting to
// "any". Symmetric by construction (the result does not depend on
// argument order).
func (r *Registry) LCA(a, b *Type) *Type {
	if a == nil || b == nil {
		t, _ := r.Get("any")
		return t
	}
	aChain := r.ancestors(a)
	bSet := map[Typename]bool{}
	for _, n := range r.ancestors(b) {
		bSet[n] = true
	}
	for _, n := range aChain {
		if bSet[n] {
			t, ok := r.Get(n)
			if ok {
				return t
			}
		}
	}
	t, _ := r.Get("any")
	return t
}

// AllArguments merges the argument sets of t and every ancestor,
// base-most first, so a more-derived declaration of the same name
// overrides its ancestor's -- this is what spec.md section 4.3 means
// by validating "for each argument declared on its type and all
// ancestors".
func (r *Registry) AllArguments(t *Type) *Arguments {
	chain := r.ancestors(t) // self, parent, ..., any
	merged := NewArguments()
	for i := len(chain) - 1; i >= 0; i-- {
		typ, ok := r.Get(chain[i])
		if !ok || typ.Arguments == nil {
			continue
		}
		for _, name := range typ.Arguments.Names() {
			arg, _ := typ.Arguments.Get(name)
			merged.Add(arg)
		}
	}
	return merged
}

// Task holds the identifier/output-type/command-line triple from
// spec.md section 4.4. CommandLine is opaque (any) for the same
// import-cycle reason as Argument.Default/Constant: the command
// package depends on the value package, which depends on xtype, so
// xtype cannot depend on command. The loader populates it with a
// *command.CommandLine; the workspace package type-asserts it back at
// submission time.
type Task struct {
	Identifier  Typename
	OutputType  Typename
	CommandLine any
}

// RegisterTask installs t under t.Identifier.
func (r *Registry) RegisterTask(t *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[t.Identifier] = t
}

func (r *Registry) Task(id Typename) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	return t, ok
}

// Tasks returns a snapshot of every registered task, for front ends
// (cmd/experimaestro's run subcommand) that submit every task a
// loaded document declares rather than one named task.
func (r *Registry) Tasks() []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	return out
}
