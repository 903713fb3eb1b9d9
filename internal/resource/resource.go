// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

// Package resource implements the dependency graph primitives from
// spec.md section 4.7: Resource, Dependency (JobDependency,
// CounterDependency), and capacity Tokens.
//
// spec.md asks dependents to be held weakly, upgraded and pruned
// lazily during iteration, to let a C++ shared_ptr graph collect
// cycles. Go's garbage collector already collects reference cycles, so
// there is nothing to prune: dependents are held as a plain strong
// slice. See DESIGN.md.
package resource

import "sync"

// DependencyTarget is notified when a Dependency it depends on flips
// satisfied/unsatisfied.
type DependencyTarget interface {
	DependencyChanged(d Dependency, satisfied bool)
}

// Dependency is an edge in the readiness DAG: origin -> target, with a
// satisfiability predicate evaluated by Check.
type Dependency interface {
	// Check recomputes Satisfied() and, if it differs from the last
	// observed value, notifies the target.
	Check()
	// Satisfied reports the dependency's current state without
	// notifying anyone.
	Satisfied() bool
	// SetTarget binds the dependent; called once by the code that
	// creates the dependency for a target (job.Job.AddDependency, the
	// command package's parameter walk).
	SetTarget(t DependencyTarget)
}

// Resource is the base for anything dependable: it tracks the
// dependencies that have been registered against it so a terminal
// transition can re-check all of them.
type Resource struct {
	mu         sync.Mutex
	dependents []Dependency
}

// AddDependent registers d as depending on this resource.
func (r *Resource) AddDependent(d Dependency) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dependents = append(r.dependents, d)
}

// NotifyDependents calls Check on every registered dependent, e.g.
// after this resource reaches a terminal state.
func (r *Resource) NotifyDependents() {
	r.mu.Lock()
	dependents := make([]Dependency, len(r.dependents))
	copy(dependents, r.dependents)
	r.mu.Unlock()

	for _, d := range dependents {
		d.Check()
	}
}
