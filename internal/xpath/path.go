// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

// Package xpath implements the Path type from spec.md section 4.1: a
// (share, path) pair abstracting over local and remote filesystem
// locations, with POSIX-like (but non-normalizing) path arithmetic.
package xpath

import (
	"strings"

	"github.com/experimaestro/experimaestro-go/internal/xerrors"
)

// Path identifies a location on a host. An empty Share denotes the local
// filesystem; a non-empty Share names a mounted remote share understood
// by a particular Connector.
type Path struct {
	Share string
	Path  string
}

// Local builds a Path on the local filesystem (empty share).
func Local(path string) Path {
	return Path{Path: path}
}

// IsLocal reports whether the path has no share, i.e. refers to the
// local filesystem.
func (p Path) IsLocal() bool {
	return p.Share == ""
}

// LocalPath returns the bare path string, failing if Share is set.
func (p Path) LocalPath() (string, error) {
	if p.Share != "" {
		return "", xerrors.Argument("path %q is not local (share=%q)", p.Path, p.Share)
	}
	return p.Path, nil
}

// Parent returns the path one level up, by trimming the last "/"
// segment. The textual path is not normalized: "." and ".." segments
// are preserved verbatim rather than resolved.
func (p Path) Parent() Path {
	trimmed := strings.TrimRight(p.Path, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return Path{Share: p.Share, Path: ""}
	}
	if idx == 0 {
		return Path{Share: p.Share, Path: "/"}
	}
	return Path{Share: p.Share, Path: trimmed[:idx]}
}

// Name returns the final path component.
func (p Path) Name() string {
	trimmed := strings.TrimRight(p.Path, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return trimmed
	}
	return trimmed[idx+1:]
}

// Resolve joins components onto p using "/", without normalizing "."
// or "..".
func (p Path) Resolve(components ...string) Path {
	parts := make([]string, 0, len(components)+1)
	parts = append(parts, strings.TrimRight(p.Path, "/"))
	parts = append(parts, components...)
	return Path{Share: p.Share, Path: strings.Join(parts, "/")}
}

// RelativeTo computes a "../"-style traversal from other to p. Both
// paths must be absolute and share the same Share; otherwise an error
// is returned.
func (p Path) RelativeTo(other Path) (string, error) {
	if p.Share != other.Share {
		return "", xerrors.Argument("paths on different shares (%q vs %q) are not relative", p.Share, other.Share)
	}
	if !strings.HasPrefix(p.Path, "/") || !strings.HasPrefix(other.Path, "/") {
		return "", xerrors.Argument("relative_to requires absolute paths, got %q and %q", p.Path, other.Path)
	}

	pParts := splitClean(p.Path)
	oParts := splitClean(other.Path)

	common := 0
	for common < len(pParts) && common < len(oParts) && pParts[common] == oParts[common] {
		common++
	}

	up := len(oParts) - common
	var out []string
	for i := 0; i < up; i++ {
		out = append(out, "..")
	}
	out = append(out, pParts[common:]...)
	if len(out) == 0 {
		return ".", nil
	}
	return strings.Join(out, "/"), nil
}

func splitClean(path string) []string {
	var out []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// String renders the path for display/logging (not for host execution
// -- use Connector.Resolve for that).
func (p Path) String() string {
	if p.Share == "" {
		return p.Path
	}
	return p.Share + ":" + p.Path
}

// Equal reports structural equality.
func (p Path) Equal(o Path) bool {
	return p.Share == o.Share && p.Path == o.Path
}

// Parse inverts String: "share:path" splits into (share, path); a
// string with no ":" before the first "/" is taken as a local path.
// Used where a Path crosses a serialization boundary (e.g. a scalar
// Path value's JSON rendering) as plain text.
func Parse(s string) Path {
	if idx := strings.Index(s, ":"); idx >= 0 && !strings.Contains(s[:idx], "/") {
		return Path{Share: s[:idx], Path: s[idx+1:]}
	}
	return Path{Path: s}
}
