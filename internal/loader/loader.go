// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package loader

import (
	"github.com/experimaestro/experimaestro-go/internal/xerrors"
	"github.com/experimaestro/experimaestro-go/internal/xtype"
)

// Load parses data (YAML or JSON) and installs every type and task it
// declares into reg, per spec.md section 4.4's "loader accepts a
// document with top-level types and tasks objects". Types are defined
// before tasks are registered, since a task's command array can embed
// CommandParameters parts whose rendering later depends on the type
// already being resolvable -- though the Registry's own placeholder
// promotion (xtype.Registry.Define) means within "types" itself, entry
// order never matters.
func Load(data []byte, reg *xtype.Registry) error {
	doc, err := parseDocument(data)
	if err != nil {
		return err
	}

	for name, def := range doc.Types {
		if err := defineType(reg, xtype.Typename(name), def); err != nil {
			return xerrors.Wrap(xerrors.CodeArgument, "type "+name, err)
		}
	}

	for id, def := range doc.Tasks {
		if err := defineTask(reg, xtype.Typename(id), def); err != nil {
			return xerrors.Wrap(xerrors.CodeArgument, "task "+id, err)
		}
	}

	return nil
}

func defineType(reg *xtype.Registry, name xtype.Typename, def typeDef) error {
	parent := xtype.Typename(def.Parent)
	if parent == "" && name != "any" {
		parent = "any"
	}

	args := xtype.NewArguments()
	for _, entry := range def.Arguments.entries {
		arg, err := buildArgument(reg, entry.name, entry.def)
		if err != nil {
			return err
		}
		args.Add(arg)
	}

	var properties map[string]any
	if len(def.Properties) > 0 {
		properties = make(map[string]any, len(def.Properties))
		for key, raw := range def.Properties {
			v, err := buildPropertyValue(raw)
			if err != nil {
				return xerrors.Wrap(xerrors.CodeArgument, "property "+key, err)
			}
			properties[key] = v
		}
	}

	return reg.Define(&xtype.Type{
		Name:       name,
		Kind:       xtype.KindSimple,
		ParentName: parent,
		Arguments:  args,
		Properties: properties,
	})
}

func buildArgument(reg *xtype.Registry, name string, def argumentDef) (*xtype.Argument, error) {
	typeName := xtype.Typename(def.Type)
	if typeName == "" {
		typeName = "any"
	}

	required := true
	if def.Required != nil {
		required = *def.Required
	}

	arg := &xtype.Argument{
		Name:     name,
		TypeName: typeName,
		Required: required,
		Ignored:  def.Ignored,
		Help:     def.Help,
	}

	if def.Generator != nil {
		switch def.Generator.Type {
		case "path":
			arg.Generator = xtype.PathGenerator{Name: def.Generator.Name}
		default:
			return nil, xerrors.Argument("argument %q: unknown generator type %q", name, def.Generator.Type)
		}
	}

	// Default/Constant literals are converted against the argument's
	// own declared scalar kind where resolvable at load time; a
	// placeholder (forward-referenced, not-yet-defined type) simply
	// has no ScalarKind yet, so a literal under such a type is
	// rejected rather than silently accepted as untyped.
	if def.Default != nil || def.Constant != nil {
		typ, ok := reg.Get(typeName)
		if !ok {
			typ = reg.Placeholder(typeName)
		}
		if def.Default != nil {
			lit, err := buildLiteral(def.Default, typ.ScalarKind)
			if err != nil {
				return nil, xerrors.Wrap(xerrors.CodeArgument, "argument "+name+" default", err)
			}
			arg.Default = lit
			arg.Required = false
		}
		if def.Constant != nil {
			lit, err := buildLiteral(def.Constant, typ.ScalarKind)
			if err != nil {
				return nil, xerrors.Wrap(xerrors.CodeArgument, "argument "+name+" constant", err)
			}
			arg.Constant = lit
		}
	}

	return arg, nil
}

func defineTask(reg *xtype.Registry, id xtype.Typename, def taskDef) error {
	cl, err := buildCommandLine(def.Preprocess, def.Command)
	if err != nil {
		return err
	}

	typeName := xtype.Typename(def.Type)
	if typeName == "" {
		typeName = id
	}
	// Ensure the output type resolves even if "types" declares it only
	// after this task, or not at all (a task's own type.Arguments
	// double as its parameter schema) -- same forward-reference
	// tolerance spec.md section 4.4 describes for argument/parent
	// references.
	reg.Placeholder(typeName)

	reg.RegisterTask(&xtype.Task{
		Identifier:  id,
		OutputType:  typeName,
		CommandLine: cl,
	})
	return nil
}
