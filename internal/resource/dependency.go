// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package resource

import "sync"

// baseDependency implements the oldSatisfied-tracking Check() protocol
// shared by every Dependency variant: under the dependency's own
// mutex, recompute satisfied(); if it differs from the cached value,
// notify the target. Variants embed this and provide satisfied().
type baseDependency struct {
	mu           sync.Mutex
	oldSatisfied bool
	started      bool
	target       DependencyTarget
	satisfiedFn  func() bool
}

func (d *baseDependency) SetTarget(t DependencyTarget) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.target = t
}

func (d *baseDependency) Satisfied() bool {
	return d.satisfiedFn()
}

func (d *baseDependency) Check() {
	d.mu.Lock()
	newSatisfied := d.satisfiedFn()
	changed := !d.started || newSatisfied != d.oldSatisfied
	d.started = true
	d.oldSatisfied = newSatisfied
	target := d.target
	d.mu.Unlock()

	if changed && target != nil {
		target.DependencyChanged(d, newSatisfied)
	}
}

// JobOrigin is the minimal view of a Job a JobDependency needs: whether
// it has reached its successful terminal state.
type JobOrigin interface {
	IsDone() bool
}

// JobDependency is satisfied iff its origin job is DONE.
type JobDependency struct {
	baseDependency
	Origin JobOrigin
}

// NewJobDependency builds a dependency on origin reaching DONE.
func NewJobDependency(origin JobOrigin) *JobDependency {
	d := &JobDependency{Origin: origin}
	d.satisfiedFn = origin.IsDone
	return d
}

// CounterDependency is satisfied iff token.used+count <= token.limit.
type CounterDependency struct {
	baseDependency
	Token *Token
	Count int
}

// NewCounterDependency builds a dependency on token having count free
// capacity.
func NewCounterDependency(token *Token, count int) *CounterDependency {
	d := &CounterDependency{Token: token, Count: count}
	d.satisfiedFn = func() bool { return token.HasCapacity(count) }
	return d
}
