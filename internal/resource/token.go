// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package resource

import (
	"sync"

	"github.com/experimaestro/experimaestro-go/internal/xerrors"
)

// Token is a capacity-limited Resource: CounterDependency checks
// against it, but handing out the dependency does not reserve
// capacity. Reservation happens at job RUN entry (Reserve) and is
// released on the job's terminal transition (Release).
type Token struct {
	Resource
	mu    sync.Mutex
	Limit int
	used  int
}

// NewToken builds a Token with the given capacity limit.
func NewToken(limit int) *Token {
	return &Token{Limit: limit}
}

// HasCapacity reports whether count more units fit under Limit.
func (t *Token) HasCapacity(count int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.used+count <= t.Limit
}

// Used returns the currently reserved count.
func (t *Token) Used() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.used
}

// Reserve claims count units, failing with a lock_error-flavored
// argument_error if doing so would exceed Limit -- callers are
// expected to have already checked CounterDependency.Satisfied()
// before RUN, so this should not normally fail under correct use.
func (t *Token) Reserve(count int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.used+count > t.Limit {
		return xerrors.Argument("token capacity exceeded: used=%d count=%d limit=%d", t.used, count, t.Limit)
	}
	t.used += count
	return nil
}

// Release gives back count previously reserved units, then re-checks
// every registered dependent (a released slot may satisfy a waiting
// CounterDependency).
func (t *Token) Release(count int) {
	t.mu.Lock()
	t.used -= count
	if t.used < 0 {
		t.used = 0
	}
	t.mu.Unlock()
	t.NotifyDependents()
}
