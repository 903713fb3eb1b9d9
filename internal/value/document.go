// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package value

import (
	"github.com/experimaestro/experimaestro-go/internal/xerrors"
	"github.com/experimaestro/experimaestro-go/internal/xpath"
	"github.com/experimaestro/experimaestro-go/internal/xtype"
)

// Reserved key names from spec.md section 3, mirroring xpm.cpp's
// KEY_TYPE/KEY_TASK/KEY_VALUE/KEY_JOB and RESTRICTED_KEYS: a value
// document may carry these as metadata on an object, but they can
// never be written as an ordinary argument name.
const (
	KeyType  = "$type"
	KeyTask  = "$task"
	KeyValue = "$value"
	KeyJob   = "$job"
)

var restrictedKeys = map[string]bool{KeyType: true, KeyTask: true, KeyValue: true, KeyJob: true}

// JobResolver constructs a JobHandle for a "$job" locator found while
// parsing a value document. internal/value has no import of
// internal/job (see JobHandle's doc comment), so the caller -- the
// collaborator that owns job lookups -- supplies the resolution.
type JobResolver func(locator string) (JobHandle, error)

// ParseDocument converts a decoded JSON/YAML value -- as produced by
// encoding/json.Unmarshal or yaml.v3 into `any`: nil, bool, int/int64,
// float64, string, []any, map[string]any -- into a *Value tree, per
// spec.md section 3 and 4.6. Mirrors Parameters::create (xpm.cpp): an
// object carrying "$value" unwraps to the wrapped scalar/array (the
// wrapped-value equivalence scenario), "$job" reifies into Value.Job
// via resolve, "$task" binds the task name, and every other key
// becomes an ordinary Set call -- which rejects the four reserved key
// literals and flags DEFAULT/IGNORE children per the type's arguments.
//
// reg resolves "$type" names against the schema; it may be nil for
// documents that never carry a "$type" key.
func ParseDocument(reg *xtype.Registry, raw any, resolve JobResolver) (*Value, error) {
	switch v := raw.(type) {
	case nil:
		return None(), nil
	case bool:
		return Boolean(v), nil
	case int:
		return Integer(int64(v)), nil
	case int64:
		return Integer(v), nil
	case float64:
		return Real(v), nil
	case string:
		return String(v), nil
	case []any:
		elems := make([]*Value, len(v))
		for i, e := range v {
			ev, err := ParseDocument(reg, e, resolve)
			if err != nil {
				return nil, err
			}
			elems[i] = ev
		}
		return NewArray(elems), nil
	case map[string]any:
		return parseObject(reg, v, resolve)
	default:
		return nil, xerrors.Argument("unsupported value literal type %T", raw)
	}
}

func parseObject(reg *xtype.Registry, obj map[string]any, resolve JobResolver) (*Value, error) {
	var typ *xtype.Type
	if rawType, ok := obj[KeyType]; ok {
		name, ok := rawType.(string)
		if !ok {
			return nil, xerrors.Argument("%s must be a string, got %T", KeyType, rawType)
		}
		if t, found := reg.Get(xtype.Typename(name)); found {
			typ = t
		} else {
			typ = reg.Placeholder(xtype.Typename(name))
		}
	}

	if rawValue, hasValue := obj[KeyValue]; hasValue {
		// Per xpm.cpp's "Value cannot be something else", $value may
		// not coexist with $task or $job on the same object; any other
		// (non-reserved) sibling key is extra metadata and is ignored.
		for key := range obj {
			if key != KeyType && key != KeyValue && restrictedKeys[key] {
				return nil, xerrors.Argument("value cannot be something else: %q alongside %q", key, KeyValue)
			}
		}
		if typ != nil && typ.ScalarKind == xtype.ScalarPath {
			s, ok := rawValue.(string)
			if !ok {
				return nil, xerrors.Argument("%s must be a string for type %q, got %T", KeyValue, typ.Name, rawValue)
			}
			return PathValue(xpath.Local(s)), nil
		}
		return ParseDocument(reg, rawValue, resolve)
	}

	m := NewMap(typ)

	if rawJob, ok := obj[KeyJob]; ok {
		locator, ok := rawJob.(string)
		if !ok {
			return nil, xerrors.Argument("%s must be a string, got %T", KeyJob, rawJob)
		}
		if resolve == nil {
			return nil, xerrors.Argument("%s given but no job resolver configured", KeyJob)
		}
		job, err := resolve(locator)
		if err != nil {
			return nil, err
		}
		m.Job = job
	}

	if rawTask, ok := obj[KeyTask]; ok {
		name, ok := rawTask.(string)
		if !ok {
			return nil, xerrors.Argument("%s must be a string, got %T", KeyTask, rawTask)
		}
		m.Task = xtype.Typename(name)
	}

	for key, rawChild := range obj {
		if key == KeyType || key == KeyTask || key == KeyJob {
			continue
		}
		child, err := ParseDocument(reg, rawChild, resolve)
		if err != nil {
			return nil, err
		}
		if err := m.Set(key, child); err != nil {
			return nil, err
		}
	}

	return m, nil
}
