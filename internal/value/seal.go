// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package value

// Seal walks v post-order, per spec.md section 4.3, setting
// FlagSealed on every Map encountered (Set thereafter fails with
// sealed_error). Idempotent.
func (v *Value) Seal() {
	switch v.Kind {
	case KindArray:
		for _, e := range v.Elements {
			e.Seal()
		}
	case KindMap:
		for _, k := range v.keys {
			v.fields[k].Seal()
		}
		v.Flags |= FlagSealed
	}
}

// Copy returns a deep, unsealed, unflagged-except-structure copy of v,
// used when instantiating an Argument's default value for a fresh
// parameter tree.
func (v *Value) Copy() *Value {
	out := &Value{
		Kind:       v.Kind,
		Type:       v.Type,
		ScalarKind: v.ScalarKind,
		I:          v.I,
		R:          v.R,
		B:          v.B,
		S:          v.S,
		Task:       v.Task,
		Job:        v.Job,
	}
	switch v.Kind {
	case KindMap:
		out.fields = make(map[string]*Value, len(v.fields))
		out.keys = make([]string, len(v.keys))
		copy(out.keys, v.keys)
		for k, child := range v.fields {
			out.fields[k] = child.Copy()
		}
	case KindArray:
		out.Elements = make([]*Value, len(v.Elements))
		for i, e := range v.Elements {
			out.Elements[i] = e.Copy()
		}
	}
	return out
}
