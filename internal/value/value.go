// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

// Package value implements the Value model from spec.md section 4.3:
// a tagged Scalar | Map | Array sum type, with the flag bitset, the
// canonical digest, and the validate/generate/seal operations.
//
// The C++ original uses polymorphic value objects; per spec.md section
// 9's design note this is replaced with a single Go struct carrying a
// Kind discriminator and match-based dispatch, mirroring how the
// xtype package represents Type.
package value

import (
	"github.com/experimaestro/experimaestro-go/internal/resource"
	"github.com/experimaestro/experimaestro-go/internal/xpath"
	"github.com/experimaestro/experimaestro-go/internal/xtype"
)

// Kind discriminates the three Value variants.
type Kind int

const (
	KindScalar Kind = iota
	KindMap
	KindArray
)

// ScalarKind discriminates the seven scalar states from spec.md
// section 3.
type ScalarKind int

const (
	ScalarUnset ScalarKind = iota
	ScalarNone
	ScalarInteger
	ScalarReal
	ScalarBoolean
	ScalarString
	ScalarPath
)

// Flags is the bitset replacing the three-flag C++ struct: SEALED,
// DEFAULT, VALIDATED, GENERATED, IGNORE.
type Flags uint8

const (
	FlagSealed Flags = 1 << iota
	FlagDefault
	FlagValidated
	FlagGenerated
	FlagIgnore
)

func (f Flags) Has(flag Flags) bool { return f&flag != 0 }

// JobHandle is the back-reference a Map value may carry to the Job
// that produced it (set when reconstructed from a "$job" JSON tag).
// It is a narrow interface, not the concrete job.Job type, to avoid an
// import cycle: the job package depends on the value package (a Job
// owns parameter Values), so the value package cannot depend back on
// job.
type JobHandle interface {
	// Locator identifies the job for "$job" reification.
	Locator() string
	// CreateDependency returns a fresh, not-yet-targeted Dependency
	// whose origin is this job, per spec.md section 4.6's
	// add_dependencies walk.
	CreateDependency() resource.Dependency
}

// Value is a typed parameter tree node: scalar, map, or array.
type Value struct {
	Kind  Kind
	Flags Flags
	Type  *xtype.Type

	// Scalar fields, meaningful when Kind == KindScalar.
	ScalarKind ScalarKind
	I          int64
	R          float64
	B          bool
	S          string // String or Path payload

	// Map fields, meaningful when Kind == KindMap.
	keys   []string
	fields map[string]*Value
	Task   xtype.Typename // empty if unbound
	Job    JobHandle      // nil if not reified from $job

	// Array fields, meaningful when Kind == KindArray.
	Elements []*Value
}

// --- constructors ---

func Unset() *Value { return &Value{Kind: KindScalar, ScalarKind: ScalarUnset} }
func None() *Value  { return &Value{Kind: KindScalar, ScalarKind: ScalarNone} }

func Integer(i int64) *Value { return &Value{Kind: KindScalar, ScalarKind: ScalarInteger, I: i} }
func Real(r float64) *Value  { return &Value{Kind: KindScalar, ScalarKind: ScalarReal, R: r} }
func Boolean(b bool) *Value  { return &Value{Kind: KindScalar, ScalarKind: ScalarBoolean, B: b} }
func String(s string) *Value { return &Value{Kind: KindScalar, ScalarKind: ScalarString, S: s} }
func PathValue(p xpath.Path) *Value {
	return &Value{Kind: KindScalar, ScalarKind: ScalarPath, S: p.String()}
}

// NewMap builds an empty, insertion-ordered Map value of the given
// type (may be nil if not yet typed, e.g. before loader binding).
func NewMap(t *xtype.Type) *Value {
	return &Value{Kind: KindMap, Type: t, fields: make(map[string]*Value)}
}

// NewArray builds an Array value from elements; its type is derived
// lazily by callers via DeriveArrayType, not stored eagerly here.
func NewArray(elements []*Value) *Value {
	return &Value{Kind: KindArray, Elements: elements}
}

// --- Map accessors ---

// Set inserts or overwrites key, failing with sealed_error if this map
// is sealed. Mirrors MapParameters::set (xpm.cpp): when the type
// declares key as an argument, a child equal to that argument's
// default is flagged DEFAULT (so the digest ignores it, per spec.md
// section 8 property 2 / scenario S1), and a child under an ignored
// or "path"-typed argument is flagged IGNORE (paths are ignorable,
// scenario S2).
func (v *Value) Set(key string, child *Value) error {
	if v.Kind != KindMap {
		return sealedTypeError(v)
	}
	if v.Flags.Has(FlagSealed) {
		return SealedError(key)
	}
	if restrictedKeys[key] {
		return ReservedKeyError(key)
	}
	if _, exists := v.fields[key]; !exists {
		v.keys = append(v.keys, key)
	}

	if v.Type != nil && v.Type.Arguments != nil {
		if arg, ok := v.Type.Arguments.Get(key); ok {
			if def, ok := arg.Default.(*Value); ok && def.Equals(child) {
				child.Flags |= FlagDefault
			}
			if arg.Ignored || arg.TypeName == "path" {
				child.Flags |= FlagIgnore
			}
		}
	}

	v.fields[key] = child
	return nil
}

// Equals reports whether v and other are the same scalar value --
// same ScalarKind and payload -- mirroring Scalar::equals/Value::equals
// in the original (scalar.cpp, value.cpp). Argument defaults are
// always scalar literals (internal/loader's buildLiteral only builds
// scalars), so map/array values never equal a default and simply
// compare false.
func (v *Value) Equals(other *Value) bool {
	if v == nil || other == nil {
		return v == other
	}
	if v.Kind != KindScalar || other.Kind != KindScalar {
		return false
	}
	if v.ScalarKind != other.ScalarKind {
		return false
	}
	switch v.ScalarKind {
	case ScalarPath, ScalarString:
		return v.S == other.S
	case ScalarInteger:
		return v.I == other.I
	case ScalarReal:
		return v.R == other.R
	case ScalarBoolean:
		return v.B == other.B
	case ScalarNone:
		return true
	default:
		return false
	}
}

// Get returns the child stored under key, if any.
func (v *Value) Get(key string) (*Value, bool) {
	if v.Kind != KindMap {
		return nil, false
	}
	child, ok := v.fields[key]
	return child, ok
}

// Keys returns the map's keys in insertion order.
func (v *Value) Keys() []string {
	out := make([]string, len(v.keys))
	copy(out, v.keys)
	return out
}

// Len reports the number of fields in a Map value.
func (v *Value) Len() int { return len(v.keys) }
