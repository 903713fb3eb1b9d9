// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package value

import (
	"github.com/experimaestro/experimaestro-go/internal/xerrors"
	"github.com/experimaestro/experimaestro-go/internal/xpath"
	"github.com/experimaestro/experimaestro-go/internal/xtype"
)

// Generate runs the pre-order generation pass from spec.md section
// 4.3 over v (the root of a parameter tree), filling every absent
// argument via its generator, its default, or None. It is idempotent:
// already-generated subtrees (FlagGenerated) are skipped.
func (v *Value) Generate(reg *xtype.Registry, jobsDir xpath.Path, taskID xtype.Typename) error {
	root := v
	ctx := xtype.GenerationContext{
		JobsDir:        jobsDir,
		TaskIdentifier: taskID,
		RootUniqueID:   func() (string, error) { return root.UniqueID() },
	}
	stack := map[*Value]bool{}
	return v.generate(reg, ctx, stack)
}

func (v *Value) generate(reg *xtype.Registry, ctx xtype.GenerationContext, stack map[*Value]bool) error {
	if v.Flags.Has(FlagGenerated) {
		return nil
	}
	if stack[v] {
		return xerrors.Assertion("cyclic value reference detected during generation")
	}
	stack[v] = true
	defer delete(stack, v)

	switch v.Kind {
	case KindArray:
		for _, e := range v.Elements {
			if err := e.generate(reg, ctx, stack); err != nil {
				return err
			}
		}
		v.Flags |= FlagGenerated
		return nil
	case KindScalar:
		v.Flags |= FlagGenerated
		return nil
	}

	if v.Type == nil {
		return xerrors.Assertion("cannot generate an untyped map")
	}

	args := reg.AllArguments(v.Type)
	for _, name := range args.Names() {
		arg, _ := args.Get(name)
		child, present := v.Get(name)
		isNull := !present || (child.Kind == KindScalar && (child.ScalarKind == ScalarUnset || child.ScalarKind == ScalarNone))

		if isNull {
			generated, err := v.generateMissing(ctx, arg)
			if err != nil {
				return err
			}
			generated.Flags |= FlagDefault
			if err := v.Set(name, generated); err != nil {
				return err
			}
			child = generated
		}

		if child != nil {
			if err := child.generate(reg, ctx, stack); err != nil {
				return err
			}
		}
	}
	v.Flags |= FlagGenerated
	return nil
}

func (v *Value) generateMissing(ctx xtype.GenerationContext, arg *xtype.Argument) (*Value, error) {
	switch {
	case arg.Generator != nil:
		result, err := arg.Generator.Generate(ctx)
		if err != nil {
			return nil, err
		}
		return wrapGeneratorResult(result)
	case arg.Default != nil:
		defVal, ok := arg.Default.(*Value)
		if !ok {
			return nil, xerrors.Assertion("argument %q default is not a value.Value", arg.Name)
		}
		generated := defVal.Copy()
		if arg.Ignored {
			generated.Flags |= FlagIgnore
		}
		return generated, nil
	default:
		return None(), nil
	}
}

func wrapGeneratorResult(result any) (*Value, error) {
	switch r := result.(type) {
	case xpath.Path:
		return PathValue(r), nil
	case string:
		return String(r), nil
	default:
		return nil, xerrors.Assertion("unsupported generator result type %T", result)
	}
}
