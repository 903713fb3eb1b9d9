// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

// Package connector defines the Connector abstraction from spec.md
// section 4.1: a host-independent boundary for filesystem access and
// process creation, implemented by connector/local and connector/ssh.
package connector

import (
	"io"
	"time"

	"github.com/experimaestro/experimaestro-go/internal/process"
	"github.com/experimaestro/experimaestro-go/internal/xpath"
)

// FileType classifies what, if anything, exists at a Path.
type FileType int

const (
	Unexisting FileType = iota
	File
	Directory
	Pipe
	Other
)

// Lock is an RAII-style guard around an advisory lock file. Dropping it
// (calling Release) removes the lock file unless Detach was called.
type Lock interface {
	Release() error
	Detach()
}

// Job is the minimal view of a job a Connector needs in order to
// reattach to an externally running process.
type Job interface {
	Locator() xpath.Path
}

// Connector abstracts filesystem and process creation for one host.
type Connector interface {
	// ProcessBuilder returns a fresh builder for a process on this host.
	ProcessBuilder() process.Builder

	// Resolve maps a logical Path to a string usable on the host.
	Resolve(p xpath.Path) (string, error)

	// SetExecutable marks or clears the executable bit.
	SetExecutable(p xpath.Path, flag bool) error

	// Mkdirs creates p, optionally creating parents, optionally erroring
	// if it already exists.
	Mkdirs(p xpath.Path, createParents, errorIfExists bool) error

	// Mkdir creates a single directory level; fails if it exists.
	Mkdir(p xpath.Path) error

	// FileType reports what kind of entry exists at p.
	FileType(p xpath.Path) (FileType, error)

	// OStream opens p for write, truncating any existing content.
	OStream(p xpath.Path) (io.WriteCloser, error)

	// IStream opens p for read.
	IStream(p xpath.Path) (io.ReadCloser, error)

	// Lock acquires an exclusive advisory lock on p, waiting up to
	// timeout (zero means block indefinitely). Returns a lock_error on
	// timeout.
	Lock(p xpath.Path, timeout time.Duration) (Lock, error)

	// GetProcess reattaches to an externally running process by pid.
	GetProcess(job Job, pid int) (process.Process, error)
}
