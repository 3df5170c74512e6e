// Package schema validates property values and action inputs against the
// JSON Schema fragments embedded in thing metadata.
//
// Compiled schemas are cached by their serialised form, so repeated
// validations against the same fragment skip recompilation.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validator compiles and evaluates JSON Schema fragments.
//
// The zero value is not usable; construct with NewValidator.
type Validator struct {
	mu       sync.Mutex
	compiled map[string]*jsonschema.Schema
}

// NewValidator returns a ready-to-use validator with an empty cache.
func NewValidator() *Validator {
	return &Validator{
		compiled: make(map[string]*jsonschema.Schema),
	}
}

// Validate checks value against the given schema fragment. A nil or empty
// schema accepts every value. The returned error describes the first
// violation found.
func (v *Validator) Validate(schema map[string]any, value any) error {
	if len(schema) == 0 {
		return nil
	}

	sch, err := v.compile(schema)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	// Round-trip through JSON so Go-native values (ints, structs) arrive
	// in the decoded form the evaluator expects.
	doc, err := normalize(value)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	return sch.Validate(doc)
}

func (v *Validator) compile(schema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	key := string(raw)

	v.mu.Lock()
	defer v.mu.Unlock()

	if sch, ok := v.compiled[key]; ok {
		return sch, nil
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("inline.json", doc); err != nil {
		return nil, err
	}
	sch, err := compiler.Compile("inline.json")
	if err != nil {
		return nil, err
	}

	v.compiled[key] = sch
	return sch, nil
}

func normalize(value any) (any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(raw))
}
