// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

// Package process defines the ProcessBuilder/Process/Redirect contract
// from spec.md section 4.2, implemented per-host by the connector
// packages.
package process

import "github.com/experimaestro/experimaestro-go/internal/xpath"

// Redirect controls stdin/stdout/stderr wiring for a started process.
type Redirect interface{ isRedirect() }

// RedirectInherit inherits the parent's stream.
type RedirectInherit struct{}

// RedirectFile redirects to/from a file path.
type RedirectFile struct{ Path xpath.Path }

// RedirectPipe streams chunks of at most 8KiB to Callback, draining on
// a dedicated goroutine that joins when the process exits.
type RedirectPipe struct{ Callback func(chunk []byte) }

// RedirectNone discards the stream.
type RedirectNone struct{}

func (RedirectInherit) isRedirect() {}
func (RedirectFile) isRedirect()    {}
func (RedirectPipe) isRedirect()    {}
func (RedirectNone) isRedirect()    {}

// Builder carries the parameters for starting a process, per spec.md
// section 4.2's ProcessBuilder struct.
type Builder interface {
	WorkingDirectory(p xpath.Path) Builder
	Command(argv []string) Builder
	Environment(env map[string]string) Builder
	Stdin(r Redirect) Builder
	Stdout(r Redirect) Builder
	Stderr(r Redirect) Builder
	Detach(detach bool) Builder
	Start() (Process, error)
}

// Process is a running or reattached process handle.
//
// ExitCode blocks until the process exits. It returns -1 if the
// process never started (spawn error), -2 if terminated by signal, -3
// if stopped.
type Process interface {
	IsRunning() bool
	ExitCode() int
	Kill(force bool) error
	Write(b []byte) (int64, error)
	EOF() error
}
