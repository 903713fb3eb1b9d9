// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package loader

import (
	"github.com/experimaestro/experimaestro-go/internal/value"
	"github.com/experimaestro/experimaestro-go/internal/xerrors"
	"github.com/experimaestro/experimaestro-go/internal/xpath"
	"github.com/experimaestro/experimaestro-go/internal/xtype"
)

// buildLiteral converts a raw YAML/JSON scalar (decoded by yaml.v3 as
// one of nil/bool/int/float64/string) into a *value.Value of kind,
// for an argument's default/constant entry. internal/value.generate.go
// and validate.go type-assert Argument.Default/Constant back to
// *value.Value by convention (see xtype.Argument's doc comment) --
// this is the one place that convention is upheld on the write side.
func buildLiteral(raw any, kind xtype.ScalarKind) (*value.Value, error) {
	if raw == nil {
		return value.None(), nil
	}
	switch kind {
	case xtype.ScalarBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, xerrors.Argument("expected a boolean literal, got %T", raw)
		}
		return value.Boolean(b), nil
	case xtype.ScalarInteger:
		switch n := raw.(type) {
		case int:
			return value.Integer(int64(n)), nil
		case int64:
			return value.Integer(n), nil
		}
		return nil, xerrors.Argument("expected an integer literal, got %T", raw)
	case xtype.ScalarReal:
		switch n := raw.(type) {
		case float64:
			return value.Real(n), nil
		case int:
			return value.Real(float64(n)), nil
		case int64:
			return value.Real(float64(n)), nil
		}
		return nil, xerrors.Argument("expected a real literal, got %T", raw)
	case xtype.ScalarString:
		s, ok := raw.(string)
		if !ok {
			return nil, xerrors.Argument("expected a string literal, got %T", raw)
		}
		return value.String(s), nil
	case xtype.ScalarPath:
		s, ok := raw.(string)
		if !ok {
			return nil, xerrors.Argument("expected a path literal, got %T", raw)
		}
		return value.PathValue(xpath.Local(s)), nil
	default:
		return nil, xerrors.Argument("argument literals are only supported for scalar-kind types")
	}
}

// buildPropertyValue converts a raw property literal into a
// *value.Value, inferring its scalar kind from yaml.v3's own decoded
// Go type rather than a declared TypeName -- spec.md section 4.4's
// type entry schema gives properties no type annotation ("properties:
// { name: value } # values are themselves Values"). Nested
// maps/sequences are out of scope for this boundary-only translator;
// a sequence of scalars is supported since it needs no type beyond
// "array of whatever its elements are".
func buildPropertyValue(raw any) (*value.Value, error) {
	switch v := raw.(type) {
	case nil:
		return value.None(), nil
	case bool:
		return value.Boolean(v), nil
	case int:
		return value.Integer(int64(v)), nil
	case int64:
		return value.Integer(v), nil
	case float64:
		return value.Real(v), nil
	case string:
		return value.String(v), nil
	case []any:
		elements := make([]*value.Value, len(v))
		for i, e := range v {
			ev, err := buildPropertyValue(e)
			if err != nil {
				return nil, err
			}
			elements[i] = ev
		}
		return value.NewArray(elements), nil
	default:
		return nil, xerrors.Argument("unsupported property literal type %T", raw)
	}
}
