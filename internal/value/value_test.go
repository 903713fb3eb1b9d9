// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package value_test

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/experimaestro/experimaestro-go/internal/resource"
	"github.com/experimaestro/experimaestro-go/internal/value"
	"github.com/experimaestro/experimaestro-go/internal/xpath"
	"github.com/experimaestro/experimaestro-go/internal/xtype"
)

func xpathRoot() xpath.Path {
	return xpath.Local("/jobs")
}

// typeT installs Type T { a: integer required; b: integer default=2 }
// from scenario S1.
func typeT(t *testing.T, reg *xtype.Registry) *xtype.Type {
	args := xtype.NewArguments()
	args.Add(&xtype.Argument{Name: "a", TypeName: "integer", Required: true})
	args.Add(&xtype.Argument{Name: "b", TypeName: "integer", Required: false, Default: value.Integer(2)})
	typ := &xtype.Type{Name: "T", Kind: xtype.KindSimple, ParentName: "any", Arguments: args}
	require.NoError(t, reg.Define(typ))
	return typ
}

func TestS1_DefaultEquivalence(t *testing.T) {
	reg := xtype.NewRegistry()
	typ := typeT(t, reg)

	v1 := value.NewMap(typ)
	_ = v1.Set("a", value.Integer(1))
	require.NoError(t, v1.Generate(reg, xpathRoot(), "T"))

	v2 := value.NewMap(typ)
	_ = v2.Set("a", value.Integer(1))
	_ = v2.Set("b", value.Integer(2))
	require.NoError(t, v2.Generate(reg, xpathRoot(), "T"))

	d1, err := v1.Digest()
	require.NoError(t, err)
	d2, err := v2.Digest()
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(d1), hex.EncodeToString(d2))
}

func TestS2_IgnoredPath(t *testing.T) {
	reg := xtype.NewRegistry()
	args := xtype.NewArguments()
	args.Add(&xtype.Argument{Name: "a", TypeName: "integer", Required: true})
	args.Add(&xtype.Argument{Name: "b", TypeName: "path", Required: true})
	typ := &xtype.Type{Name: "T2", Kind: xtype.KindSimple, ParentName: "any", Arguments: args}
	require.NoError(t, reg.Define(typ))

	v1 := value.NewMap(typ)
	_ = v1.Set("a", value.Integer(1))
	_ = v1.Set("b", value.String("/x"))

	v2 := value.NewMap(typ)
	_ = v2.Set("a", value.Integer(1))
	_ = v2.Set("b", value.String("/y"))

	d1, err := v1.Digest()
	require.NoError(t, err)
	d2, err := v2.Digest()
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}

type stubJob struct{ locator string }

func (s stubJob) Locator() string                       { return s.locator }
func (s stubJob) CreateDependency() resource.Dependency { return nil }

func TestS3_WrappedValueEquivalence(t *testing.T) {
	reg := xtype.NewRegistry()

	wrapped, err := value.ParseDocument(reg, map[string]any{"$value": int64(1), "z": "ignored"}, nil)
	require.NoError(t, err)
	bare := value.Integer(1)

	d1, err := wrapped.Digest()
	require.NoError(t, err)
	d2, err := bare.Digest()
	require.NoError(t, err)
	assert.Equal(t, d1, d2)

	resolved, err := value.ParseDocument(reg, map[string]any{"$job": "/jobs/x"}, func(locator string) (value.JobHandle, error) {
		return stubJob{locator: locator}, nil
	})
	require.NoError(t, err)
	require.NotNil(t, resolved.Job)
	assert.Equal(t, "/jobs/x", resolved.Job.Locator())

	_, err = value.ParseDocument(reg, map[string]any{"$value": int64(1), "$job": "/jobs/x"}, nil)
	require.Error(t, err)

	err = value.NewMap(nil).Set("$type", value.Integer(1))
	require.Error(t, err)
}

func TestS4_RequiredMissing(t *testing.T) {
	reg := xtype.NewRegistry()
	args := xtype.NewArguments()
	args.Add(&xtype.Argument{Name: "a", TypeName: "integer", Required: true})
	typ := &xtype.Type{Name: "T4", Kind: xtype.KindSimple, ParentName: "any", Arguments: args}
	require.NoError(t, reg.Define(typ))

	v := value.NewMap(typ)
	err := v.Validate(reg, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path=a")
}

func TestGenerateIdempotent(t *testing.T) {
	reg := xtype.NewRegistry()
	typ := typeT(t, reg)

	v := value.NewMap(typ)
	_ = v.Set("a", value.Integer(1))
	require.NoError(t, v.Generate(reg, xpathRoot(), "T"))
	d1, _ := v.Digest()
	require.NoError(t, v.Generate(reg, xpathRoot(), "T"))
	d2, _ := v.Digest()
	assert.Equal(t, d1, d2)
}

func TestSealRejectsMutation(t *testing.T) {
	reg := xtype.NewRegistry()
	typ := typeT(t, reg)
	v := value.NewMap(typ)
	_ = v.Set("a", value.Integer(1))
	require.NoError(t, v.Generate(reg, xpathRoot(), "T"))
	v.Seal()

	err := v.Set("a", value.Integer(99))
	require.Error(t, err)
}

func TestValidateIdempotent(t *testing.T) {
	reg := xtype.NewRegistry()
	typ := typeT(t, reg)
	v := value.NewMap(typ)
	_ = v.Set("a", value.Integer(1))
	require.NoError(t, v.Generate(reg, xpathRoot(), "T"))
	require.NoError(t, v.Validate(reg, ""))
	require.NoError(t, v.Validate(reg, ""))
}

func TestParseTypedString(t *testing.T) {
	v, err := value.ParseTypedString(value.ScalarInteger, "42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.I)

	_, err = value.ParseTypedString(value.ScalarInteger, "-1")
	assert.Error(t, err)

	v, err = value.ParseTypedString(value.ScalarBoolean, "Yes")
	require.NoError(t, err)
	assert.True(t, v.B)

	v, err = value.ParseTypedString(value.ScalarReal, "3.14e2")
	require.NoError(t, err)
	assert.InDelta(t, 314.0, v.R, 0.0001)
}

func TestArrayLCA(t *testing.T) {
	reg := xtype.NewRegistry()
	arr := value.NewArray([]*value.Value{value.Integer(1), value.Real(2.5)})
	derived := arr.DeriveArrayType(reg)
	assert.Equal(t, xtype.Typename("any[]"), derived.Name)

	empty := value.NewArray(nil)
	derivedEmpty := empty.DeriveArrayType(reg)
	assert.Equal(t, xtype.Typename("any[]"), derivedEmpty.Name)
}

func TestTypeAcceptance(t *testing.T) {
	reg := xtype.NewRegistry()
	anyT, _ := reg.Get("any")
	intT, _ := reg.Get("integer")
	realT, _ := reg.Get("real")

	assert.True(t, reg.Accepts(intT, intT))
	assert.True(t, reg.Accepts(anyT, intT))
	assert.True(t, reg.Accepts(realT, intT))
	assert.False(t, reg.Accepts(intT, realT))
}

func TestLCACommutative(t *testing.T) {
	reg := xtype.NewRegistry()
	intT, _ := reg.Get("integer")
	realT, _ := reg.Get("real")
	assert.Equal(t, reg.LCA(intT, realT).Name, reg.LCA(realT, intT).Name)
}
