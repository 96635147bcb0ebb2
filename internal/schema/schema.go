// Package schema compiles JSON Schema documents embedded in the binary and
// validates raw JSON payloads against them.
package schema

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

type Schema struct {
	name   string
	schema *jsonschema.Schema
}

// Compile compiles doc, a JSON Schema document, under name.
func Compile(name, doc string) (*Schema, error) {
	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", name, err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, parsed); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", name, err)
	}
	sch, err := c.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &Schema{name: name, schema: sch}, nil
}

func MustCompile(name, doc string) *Schema {
	s, err := Compile(name, doc)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks raw against the schema. Malformed JSON is reported as a
// validation failure too.
func (s *Schema) Validate(raw []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%s: invalid JSON: %w", s.name, err)
	}
	if err := s.schema.Validate(inst); err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}
	return nil
}
