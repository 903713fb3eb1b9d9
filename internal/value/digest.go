// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package value

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"
)

// Digest computes the canonical SHA-1 fingerprint described in
// spec.md section 4.3. Sub-values contribute their own 20-byte digest
// to the parent's hash stream rather than their raw bytes, so the cost
// of re-digesting a large subtree is linear, not quadratic, in tree
// depth.
//
// A Map iterates its children in the type's *declared argument order*
// rather than Go-map insertion order. This is what makes the digest
// insensitive to the key order of the source JSON document (testable
// property 1): two documents that assign the same arguments in
// different textual order produce identical Values whose children are
// walked in the same canonical schema order regardless of how they
// were typed in.
func (v *Value) Digest() ([]byte, error) {
	h := sha1.New()
	if err := v.writeDigest(h); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// UniqueID returns the digest as lowercase hex, the job-directory
// identifier.
func (v *Value) UniqueID() (string, error) {
	d, err := v.Digest()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(d), nil
}

func (v *Value) writeDigest(h hash.Hash) error {
	switch v.Kind {
	case KindMap:
		h.Write([]byte{0})
		return v.writeMapDigest(h)
	case KindArray:
		h.Write([]byte{1})
		return v.writeArrayDigest(h)
	default:
		h.Write([]byte{2})
		return v.writeScalarDigest(h)
	}
}

func (v *Value) writeScalarDigest(h hash.Hash) error {
	h.Write([]byte{byte(v.ScalarKind)})
	switch v.ScalarKind {
	case ScalarUnset, ScalarNone:
		// tag + kind byte only
	case ScalarInteger:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(v.I))
		h.Write(buf[:])
	case ScalarReal:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v.R))
		h.Write(buf[:])
	case ScalarBoolean:
		if v.B {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	case ScalarString, ScalarPath:
		writeLengthPrefixed(h, []byte(v.S))
	}
	return nil
}

func (v *Value) writeArrayDigest(h hash.Hash) error {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(v.Elements)))
	h.Write(lenBuf[:])
	for _, e := range v.Elements {
		ed, err := e.Digest()
		if err != nil {
			return err
		}
		h.Write(ed)
	}
	return nil
}

func (v *Value) writeMapDigest(h hash.Hash) error {
	typename := ""
	if v.Type != nil {
		typename = v.Type.Name.String()
	}
	writeLengthPrefixed(h, []byte(typename))

	if v.Task != "" {
		writeLengthPrefixed(h, []byte(v.Task))
	} else {
		h.Write([]byte{0})
	}

	for _, name := range v.digestOrder() {
		child, ok := v.Get(name)
		if !ok || IsIgnorable(child) {
			continue
		}
		writeLengthPrefixed(h, []byte(name))
		cd, err := child.Digest()
		if err != nil {
			return err
		}
		h.Write(cd)
	}
	return nil
}

// digestOrder returns the canonical key order for digesting: the
// type's declared argument order when the map is typed, else raw
// insertion order (an untyped map has no schema to canonicalize
// against).
func (v *Value) digestOrder() []string {
	if v.Type != nil && v.Type.Arguments != nil && v.Type.Arguments.Len() > 0 {
		return v.Type.Arguments.Names()
	}
	return v.Keys()
}

func writeLengthPrefixed(h hash.Hash, b []byte) {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(b)))
	h.Write(lenBuf[:])
	h.Write(b)
}

// IsIgnorable reports whether a Map child is excluded from the digest
// and from parameter-driven dependency discovery: its IGNORE flag is
// set, its DEFAULT flag is set, or its type's CanIgnore is true (only
// "path" by default).
func IsIgnorable(v *Value) bool {
	if v == nil {
		return true
	}
	if v.Flags.Has(FlagIgnore) || v.Flags.Has(FlagDefault) {
		return true
	}
	if v.Type != nil && v.Type.CanIgnore {
		return true
	}
	return false
}
