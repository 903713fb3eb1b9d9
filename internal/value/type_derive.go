// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package value

import "github.com/experimaestro/experimaestro-go/internal/xtype"

func scalarTypeName(kind ScalarKind) xtype.Typename {
	switch kind {
	case ScalarBoolean:
		return "boolean"
	case ScalarInteger:
		return "integer"
	case ScalarReal:
		return "real"
	case ScalarString:
		return "string"
	case ScalarPath:
		return "path"
	default:
		return "any"
	}
}

// EffectiveType returns v's Type, inferring a predefined scalar type
// from ScalarKind when Type was never set explicitly (e.g. a
// freshly-constructed literal not yet bound to a schema).
func (v *Value) EffectiveType(reg *xtype.Registry) *xtype.Type {
	if v.Type != nil {
		return v.Type
	}
	if v.Kind != KindScalar {
		t, _ := reg.Get("any")
		return t
	}
	t, ok := reg.Get(scalarTypeName(v.ScalarKind))
	if !ok {
		t, _ = reg.Get("any")
	}
	return t
}

// DeriveArrayType computes ArrayType(lca over elements), defaulting to
// ArrayType(any) for an empty array, per spec.md section 3.
func (v *Value) DeriveArrayType(reg *xtype.Registry) *xtype.Type {
	if v.Kind != KindArray {
		return nil
	}
	if len(v.Elements) == 0 {
		any_, _ := reg.Get("any")
		return &xtype.Type{Name: any_.Name.Array(), Kind: xtype.KindArray, ElementName: any_.Name}
	}
	elem := v.Elements[0].EffectiveType(reg)
	for _, e := range v.Elements[1:] {
		elem = reg.LCA(elem, e.EffectiveType(reg))
	}
	return &xtype.Type{Name: elem.Name.Array(), Kind: xtype.KindArray, ElementName: elem.Name}
}
