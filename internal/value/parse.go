// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package value

import (
	"regexp"
	"strconv"

	"github.com/experimaestro/experimaestro-go/internal/xerrors"
)

var (
	integerPattern = regexp.MustCompile(`^\d+$`)
	realPattern    = regexp.MustCompile(`^[+-]?(0|[1-9]\d*)(\.\d*)?([eE][+-]?\d+)?$`)
)

var booleanTrue = map[string]bool{"Y": true, "Yes": true, "true": true, "ON": true}
var booleanFalse = map[string]bool{"N": true, "No": true, "false": true, "OFF": true}

// ParseTypedString converts a raw string into a Scalar of the
// requested kind, per spec.md section 3's typed-string grammar.
func ParseTypedString(kind ScalarKind, s string) (*Value, error) {
	switch kind {
	case ScalarInteger:
		if !integerPattern.MatchString(s) {
			return nil, xerrors.Cast("%q is not a valid integer literal", s)
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, xerrors.Cast("integer literal %q out of range", s)
		}
		return Integer(i), nil
	case ScalarReal:
		if !realPattern.MatchString(s) {
			return nil, xerrors.Cast("%q is not a valid real literal", s)
		}
		r, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, xerrors.Cast("real literal %q out of range", s)
		}
		return Real(r), nil
	case ScalarBoolean:
		if booleanTrue[s] {
			return Boolean(true), nil
		}
		if booleanFalse[s] {
			return Boolean(false), nil
		}
		return nil, xerrors.Cast("%q is not a valid boolean literal", s)
	case ScalarString, ScalarPath:
		return &Value{Kind: KindScalar, ScalarKind: kind, S: s}, nil
	default:
		return nil, xerrors.Cast("cannot parse typed string into scalar kind %d", kind)
	}
}

// AsInteger converts a scalar to int64, losslessly: integer directly,
// real only if integral-valued.
func (v *Value) AsInteger() (int64, error) {
	switch v.ScalarKind {
	case ScalarInteger:
		return v.I, nil
	case ScalarReal:
		if v.R == float64(int64(v.R)) {
			return int64(v.R), nil
		}
		return 0, xerrors.Cast("real %v is not integral-valued", v.R)
	}
	return 0, xerrors.Cast("cannot convert scalar kind %d to integer", v.ScalarKind)
}

// AsReal converts a scalar to float64: real directly, integer always
// (widening is always lossless).
func (v *Value) AsReal() (float64, error) {
	switch v.ScalarKind {
	case ScalarReal:
		return v.R, nil
	case ScalarInteger:
		return float64(v.I), nil
	}
	return 0, xerrors.Cast("cannot convert scalar kind %d to real", v.ScalarKind)
}
