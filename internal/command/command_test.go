// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package command_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/experimaestro/experimaestro-go/internal/command"
	"github.com/experimaestro/experimaestro-go/internal/connector/local"
	"github.com/experimaestro/experimaestro-go/internal/resource"
	"github.com/experimaestro/experimaestro-go/internal/value"
	"github.com/experimaestro/experimaestro-go/internal/xpath"
	"github.com/experimaestro/experimaestro-go/internal/xtype"
)

func testContext() *command.Context {
	return &command.Context{
		Environment: map[string]string{"name": "world"},
		Connector:   local.New(),
		WorkspaceGet: func(key string) (string, bool) {
			if key == "known" {
				return "/resolved/known", true
			}
			return "", false
		},
		NextAux: func(prefix, suffix string) string {
			return "/jobs/t/aux_00." + prefix + "." + suffix
		},
	}
}

func renderOne(t *testing.T, p command.Part, ctx *command.Context) string {
	t.Helper()
	var b strings.Builder
	require.NoError(t, p.Render(ctx, &b))
	return b.String()
}

func TestString_ExpandsKnownVariable(t *testing.T) {
	out := renderOne(t, command.String{Text: "hello {{name}}"}, testContext())
	assert.Equal(t, "hello world", out)
}

func TestString_LeavesUnknownVariableLiteral(t *testing.T) {
	out := renderOne(t, command.String{Text: "hello {{missing}}"}, testContext())
	assert.Equal(t, "hello {{missing}}", out)
}

func TestPath_ResolvesThroughConnector(t *testing.T) {
	out := renderOne(t, command.Path{P: xpath.Local("/a/b")}, testContext())
	assert.Equal(t, "/a/b", out)
}

func TestPathReference_Known(t *testing.T) {
	out := renderOne(t, command.PathReference{Key: "known"}, testContext())
	assert.Equal(t, "/resolved/known", out)
}

func TestPathReference_Unknown(t *testing.T) {
	var b strings.Builder
	err := command.PathReference{Key: "absent"}.Render(testContext(), &b)
	require.Error(t, err)
}

func TestContent_WritesAuxiliaryFileAndEmitsPath(t *testing.T) {
	var written string
	part := command.Content{
		Key:  "stdin",
		Text: "payload",
		Write: func(auxPath, text string) error {
			written = auxPath + "=" + text
			return nil
		},
	}
	out := renderOne(t, part, testContext())
	assert.Equal(t, "/jobs/t/aux_00.stdin.input", out)
	assert.Equal(t, "/jobs/t/aux_00.stdin.input=payload", written)
}

type fakeJobHandle struct {
	locator string
	dep     resource.Dependency
}

func (f *fakeJobHandle) Locator() string                      { return f.locator }
func (f *fakeJobHandle) CreateDependency() resource.Dependency { return f.dep }

type fakeDependency struct {
	target resource.DependencyTarget
}

func (d *fakeDependency) Check()               {}
func (d *fakeDependency) Satisfied() bool      { return true }
func (d *fakeDependency) SetTarget(t resource.DependencyTarget) { d.target = t }

type fakeTarget struct{}

func (fakeTarget) DependencyChanged(resource.Dependency, bool) {}

func TestParameters_AddDependenciesWalksNestedJobs(t *testing.T) {
	reg := xtype.NewRegistry()
	args := xtype.NewArguments()
	args.Add(&xtype.Argument{Name: "upstream", TypeName: "any"})
	typ := &xtype.Type{Name: "T", Kind: xtype.KindSimple, ParentName: "any", Arguments: args}
	require.NoError(t, reg.Define(typ))

	inner := value.NewMap(typ)
	dep := &fakeDependency{}
	inner.Job = &fakeJobHandle{locator: "j1", dep: dep}

	root := value.NewMap(typ)
	require.NoError(t, root.Set("upstream", inner))

	part := command.Parameters{Root: root}
	var found []resource.Dependency
	part.AddDependencies(fakeTarget{}, func(d resource.Dependency) { found = append(found, d) })

	require.Len(t, found, 1)
	assert.Same(t, dep, found[0])
	assert.Equal(t, fakeTarget{}, dep.target)
}

func TestParameters_AddDependenciesIgnoresOwnRootJob(t *testing.T) {
	// A task's own root value has its Job back-reference set to the job
	// being submitted itself (internal/workspace.SubmitTask); walking it
	// must never contribute a dependency from that job onto itself.
	reg := xtype.NewRegistry()
	args := xtype.NewArguments()
	args.Add(&xtype.Argument{Name: "upstream", TypeName: "any"})
	typ := &xtype.Type{Name: "T", Kind: xtype.KindSimple, ParentName: "any", Arguments: args}
	require.NoError(t, reg.Define(typ))

	inner := value.NewMap(typ)
	innerDep := &fakeDependency{}
	inner.Job = &fakeJobHandle{locator: "upstream-job", dep: innerDep}

	root := value.NewMap(typ)
	require.NoError(t, root.Set("upstream", inner))
	root.Job = &fakeJobHandle{locator: "self", dep: &fakeDependency{}}

	part := command.Parameters{Root: root}
	var found []resource.Dependency
	part.AddDependencies(fakeTarget{}, func(d resource.Dependency) { found = append(found, d) })

	require.Len(t, found, 1)
	assert.Same(t, innerDep, found[0])
}

func TestCollectDependencies_IgnoresOwnRootJob(t *testing.T) {
	reg := xtype.NewRegistry()
	args := xtype.NewArguments()
	args.Add(&xtype.Argument{Name: "upstream", TypeName: "any"})
	typ := &xtype.Type{Name: "T", Kind: xtype.KindSimple, ParentName: "any", Arguments: args}
	require.NoError(t, reg.Define(typ))

	inner := value.NewMap(typ)
	innerDep := &fakeDependency{}
	inner.Job = &fakeJobHandle{locator: "upstream-job", dep: innerDep}

	root := value.NewMap(typ)
	require.NoError(t, root.Set("upstream", inner))
	root.Job = &fakeJobHandle{locator: "self", dep: &fakeDependency{}}

	var found []resource.Dependency
	command.CollectDependencies(root, fakeTarget{}, func(d resource.Dependency) { found = append(found, d) })

	require.Len(t, found, 1)
	assert.Same(t, innerDep, found[0])
}

func TestCollectDependencies_SkipsIgnorableChildren(t *testing.T) {
	reg := xtype.NewRegistry()
	args := xtype.NewArguments()
	args.Add(&xtype.Argument{Name: "upstream", TypeName: "any"})
	typ := &xtype.Type{Name: "T", Kind: xtype.KindSimple, ParentName: "any", Arguments: args}
	require.NoError(t, reg.Define(typ))

	inner := value.NewMap(typ)
	inner.Job = &fakeJobHandle{locator: "ignored-job", dep: &fakeDependency{}}
	inner.Flags |= value.FlagIgnore

	root := value.NewMap(typ)
	require.NoError(t, root.Set("upstream", inner))

	var found []resource.Dependency
	command.CollectDependencies(root, fakeTarget{}, func(d resource.Dependency) { found = append(found, d) })

	assert.Empty(t, found)
}

func TestBindRoot_FillsParametersRootAcrossCommands(t *testing.T) {
	reg := xtype.NewRegistry()
	typ := &xtype.Type{Name: "T", Kind: xtype.KindSimple, ParentName: "any", Arguments: xtype.NewArguments()}
	require.NoError(t, reg.Define(typ))

	template := &command.CommandLine{
		Commands: []command.Command{
			{Parts: []command.Part{command.String{Text: "run"}, command.Parameters{}}},
			{Parts: []command.Part{command.Parameters{}}},
		},
	}

	root := value.NewMap(typ)
	bound := command.BindRoot(template, root)

	for _, c := range bound.Commands {
		var sawParameters bool
		for _, p := range c.Parts {
			if params, ok := p.(command.Parameters); ok {
				sawParameters = true
				assert.Same(t, root, params.Root)
			}
		}
		assert.True(t, sawParameters)
	}

	// The template itself must be untouched: a second BindRoot call
	// against a different value must not see the first root.
	other := value.NewMap(typ)
	boundOther := command.BindRoot(template, other)
	params := boundOther.Commands[0].Parts[1].(command.Parameters)
	assert.Same(t, other, params.Root)
}

func TestParameters_RenderWritesJSONAndEmitsPath(t *testing.T) {
	reg := xtype.NewRegistry()
	typ := &xtype.Type{Name: "T", Kind: xtype.KindSimple, ParentName: "any", Arguments: xtype.NewArguments()}
	require.NoError(t, reg.Define(typ))
	root := value.NewMap(typ)

	var wrotePath string
	var wroteRoot *value.Value
	part := command.Parameters{
		Root: root,
		WriteJSON: func(auxPath string, r *value.Value) error {
			wrotePath = auxPath
			wroteRoot = r
			return nil
		},
	}
	out := renderOne(t, part, testContext())
	assert.Equal(t, "/jobs/t/aux_00.params.json", out)
	assert.Equal(t, wrotePath, out)
	assert.Same(t, root, wroteRoot)
}
