// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package value

import (
	"fmt"

	"github.com/experimaestro/experimaestro-go/internal/xerrors"
	"github.com/experimaestro/experimaestro-go/internal/xtype"
)

// Validate checks v (and its subtree) against reg, per spec.md
// section 4.3. It is idempotent: a value already carrying
// FlagValidated returns immediately without re-walking. path is the
// dotted prefix to prepend to any parameter_error raised here (empty
// for the root).
func (v *Value) Validate(reg *xtype.Registry, path string) error {
	if v.Flags.Has(FlagValidated) {
		return nil
	}
	if err := v.validate(reg, path); err != nil {
		return err
	}
	v.Flags |= FlagValidated
	return nil
}

func (v *Value) validate(reg *xtype.Registry, path string) error {
	switch v.Kind {
	case KindArray:
		for i, e := range v.Elements {
			if err := e.validate(reg, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	case KindScalar:
		return nil
	}

	if v.Type == nil {
		return xerrors.Assertion("cannot validate an untyped map at %q", path)
	}

	args := reg.AllArguments(v.Type)
	for _, name := range args.Names() {
		arg, _ := args.Get(name)
		childPath := joinPath(path, name)

		child, present := v.Get(name)
		isNull := !present || child.Kind == KindScalar && (child.ScalarKind == ScalarUnset || child.ScalarKind == ScalarNone)

		if isNull {
			if arg.Required && arg.Generator == nil && arg.Default == nil {
				return xerrors.Parameter(childPath, "required argument %q is missing", name)
			}
			continue
		}

		argType, ok := reg.Get(arg.TypeName)
		if !ok {
			return xerrors.Assertion("argument %q references unknown type %q", name, arg.TypeName)
		}
		childType := child.EffectiveType(reg)
		if !reg.Accepts(argType, childType) {
			return xerrors.Parameter(childPath, "argument %q declared as %q does not accept %q", name, arg.TypeName, childType.Name)
		}
		if err := child.validate(reg, childPath); err != nil {
			return err
		}
	}
	return nil
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
