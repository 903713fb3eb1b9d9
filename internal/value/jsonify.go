// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package value

import (
	"bytes"
	"encoding/json"

	"github.com/experimaestro/experimaestro-go/internal/xpath"
)

// Resolver maps a Path to its host-resolved string form, for rendering
// a path scalar's "$value" in parameter JSON (spec.md section 4.5's
// CommandParameters rendering). Kept as a callback rather than an
// import of internal/connector, so the value package stays free of any
// host-execution dependency.
type Resolver func(p xpath.Path) (string, error)

// MarshalParameterJSON renders v as the auxiliary parameter file JSON
// spec.md section 4.5 describes for CommandParameters: an object
// carrying "$type"/"$task"/"$job" plus each declared argument in
// canonical order for a Map, a "$type"/"$value" wrapper for a path or
// array scalar, and the bare JSON literal for every other scalar. A
// nil v, or an untyped/un-task-bound empty map, renders as JSON null.
//
// No *xtype.Registry is needed: a Map's own Type pointer and
// digestOrder already carry the canonical argument order this needs.
func (v *Value) MarshalParameterJSON(resolve Resolver) ([]byte, error) {
	var buf bytes.Buffer
	if err := v.writeParameterJSON(&buf, resolve); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v *Value) writeParameterJSON(buf *bytes.Buffer, resolve Resolver) error {
	if v == nil {
		buf.WriteString("null")
		return nil
	}
	switch v.Kind {
	case KindScalar:
		return v.writeScalarJSON(buf, resolve)
	case KindArray:
		return v.writeArrayJSON(buf, resolve)
	case KindMap:
		return v.writeMapJSON(buf, resolve)
	default:
		buf.WriteString("null")
		return nil
	}
}

func (v *Value) writeScalarJSON(buf *bytes.Buffer, resolve Resolver) error {
	switch v.ScalarKind {
	case ScalarUnset, ScalarNone:
		buf.WriteString("null")
		return nil
	case ScalarPath:
		resolved := v.S
		if resolve != nil {
			r, err := resolve(xpath.Parse(v.S))
			if err != nil {
				return err
			}
			resolved = r
		}
		buf.WriteString(`{"$type":"path","$value":`)
		enc, err := json.Marshal(resolved)
		if err != nil {
			return err
		}
		buf.Write(enc)
		buf.WriteByte('}')
		return nil
	case ScalarBoolean:
		if v.B {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case ScalarInteger:
		enc, err := json.Marshal(v.I)
		if err != nil {
			return err
		}
		buf.Write(enc)
		return nil
	case ScalarReal:
		enc, err := json.Marshal(v.R)
		if err != nil {
			return err
		}
		buf.Write(enc)
		return nil
	case ScalarString:
		enc, err := json.Marshal(v.S)
		if err != nil {
			return err
		}
		buf.Write(enc)
		return nil
	default:
		buf.WriteString("null")
		return nil
	}
}

func (v *Value) writeArrayJSON(buf *bytes.Buffer, resolve Resolver) error {
	elemType := "any"
	if v.Type != nil && v.Type.ElementName != "" {
		elemType = v.Type.ElementName.String()
	}
	buf.WriteString(`{"$type":"`)
	buf.WriteString(elemType)
	buf.WriteString(`[]","$value":[`)
	for i, e := range v.Elements {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := e.writeParameterJSON(buf, resolve); err != nil {
			return err
		}
	}
	buf.WriteString("]}")
	return nil
}

func (v *Value) writeMapJSON(buf *bytes.Buffer, resolve Resolver) error {
	order := v.digestOrder()
	if v.Type == nil && v.Task == "" && len(order) == 0 {
		buf.WriteString("null")
		return nil
	}

	buf.WriteByte('{')
	wrote := false

	writeField := func(key string, encode func() error) error {
		if wrote {
			buf.WriteByte(',')
		}
		wrote = true
		keyEnc, err := json.Marshal(key)
		if err != nil {
			return err
		}
		buf.Write(keyEnc)
		buf.WriteByte(':')
		return encode()
	}

	if v.Type != nil {
		if err := writeField("$type", func() error {
			enc, err := json.Marshal(v.Type.Name.String())
			if err != nil {
				return err
			}
			buf.Write(enc)
			return nil
		}); err != nil {
			return err
		}
	}
	if v.Task != "" {
		if err := writeField("$task", func() error {
			enc, err := json.Marshal(v.Task.String())
			if err != nil {
				return err
			}
			buf.Write(enc)
			return nil
		}); err != nil {
			return err
		}
	}
	if v.Job != nil {
		if err := writeField("$job", func() error {
			enc, err := json.Marshal(v.Job.Locator())
			if err != nil {
				return err
			}
			buf.Write(enc)
			return nil
		}); err != nil {
			return err
		}
	}

	for _, key := range order {
		child, ok := v.Get(key)
		if err := writeField(key, func() error {
			if !ok || child == nil {
				buf.WriteString("null")
				return nil
			}
			return child.writeParameterJSON(buf, resolve)
		}); err != nil {
			return err
		}
	}

	buf.WriteByte('}')
	return nil
}
