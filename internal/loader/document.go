// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

// Package loader is the YAML/JSON front-end spec.md section 4.4 names
// ("Loading (from YAML or JSON, semantically identical after
// normalization)") and scopes as a boundary-only collaborator: it
// parses a document into the design-level type/task schema and calls
// straight into internal/xtype.Registry, with no semantics of its own.
//
// JSON is a subset of YAML 1.2 (the grammar gopkg.in/yaml.v3 parses),
// so one Load entry point serves both without a second parser.
package loader

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/experimaestro/experimaestro-go/internal/xerrors"
)

// document is the top-level shape spec.md section 4.4 names: "a
// document with top-level types and tasks objects".
type document struct {
	Types map[string]typeDef `yaml:"types"`
	Tasks map[string]taskDef `yaml:"tasks"`
}

// typeDef is one entry of the type schema from spec.md section 4.4.
type typeDef struct {
	Parent      string         `yaml:"parent"`
	Description string         `yaml:"description"`
	Properties  map[string]any `yaml:"properties"`
	Arguments   argumentList   `yaml:"arguments"`
}

// argumentDef is one argument entry, per spec.md section 4.4's type
// entry schema.
type argumentDef struct {
	Type      string        `yaml:"type"`
	Required  *bool         `yaml:"required"`
	Help      string        `yaml:"help"`
	Default   any           `yaml:"default"`
	Constant  any           `yaml:"constant"`
	Ignored   bool          `yaml:"ignored"`
	Generator *generatorDef `yaml:"generator"`
}

// generatorDef names a Generator variant; "path" is the one spec.md
// names (PathGenerator).
type generatorDef struct {
	Type string `yaml:"type"`
	Name string `yaml:"name"`
}

// argumentEntry pairs a declared argument name with its definition,
// preserving the order arguments appeared in the document: spec.md
// section 4.6 renders CommandParameters JSON "in declared-argument
// order", so losing that order at load time would be a correctness
// bug, not just cosmetic. Plain Go maps don't preserve key order, so
// argumentList decodes the arguments mapping itself via yaml.Node
// rather than through yaml.v3's normal struct-tag decoding.
type argumentEntry struct {
	name string
	def  argumentDef
}

type argumentList struct {
	entries []argumentEntry
}

// UnmarshalYAML implements yaml.Unmarshaler by walking the mapping
// node's Content directly: for a yaml.MappingNode, Content holds
// interleaved (key, value) pairs in document order, which is the only
// place that order still exists once control leaves the parser.
func (a *argumentList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == 0 {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("arguments: expected a mapping, got kind %d", node.Kind)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]
		var name string
		if err := keyNode.Decode(&name); err != nil {
			return fmt.Errorf("argument name: %w", err)
		}
		var def argumentDef
		if err := valNode.Decode(&def); err != nil {
			return fmt.Errorf("argument %q: %w", name, err)
		}
		a.entries = append(a.entries, argumentEntry{name: name, def: def})
	}
	return nil
}

// taskDef is one task entry, per spec.md section 4.4's task schema.
type taskDef struct {
	Type       string        `yaml:"type"`
	Preprocess string        `yaml:"preprocess"`
	Command    []partOrStage `yaml:"command"`
}

// parseDocument decodes raw YAML or JSON bytes into a document.
func parseDocument(data []byte) (*document, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, xerrors.Argument("parsing document: %v", err)
	}
	return &doc, nil
}
