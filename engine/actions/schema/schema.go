// Package schema builds and validates the JSON Schemas that guard typed
// action payloads (spec §4.2): every work item action and workflow action
// declares a schema, and the engine rejects a payload before it ever
// reaches the action's callback.
//
// Schemas are produced two ways: Reflect derives one from a Go struct
// (grounded on the teacher's invopop/jsonschema-based schema generator),
// and Compile accepts a hand-written JSON Schema document directly
// (compiled and validated via kaptinlin/jsonschema, which understands the
// full draft the reflector emits).
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	kjsonschema "github.com/kaptinlin/jsonschema"

	"github.com/tasquencer/tasquencer/engine/core"
)

// Schema validates a decoded payload against a compiled JSON Schema
// document.
type Schema interface {
	// Validate reports the payload's schema violations, if any, as a
	// tagged PayloadInvalid error.
	Validate(payload map[string]any) error
	// Document returns the compiled schema as a JSON document, e.g. for
	// exposing to clients building a submission form.
	Document() json.RawMessage
}

type compiledSchema struct {
	doc      json.RawMessage
	compiled *kjsonschema.Schema
}

func (s *compiledSchema) Document() json.RawMessage { return s.doc }

func (s *compiledSchema) Validate(payload map[string]any) error {
	result := s.compiled.Validate(payload)
	if result.IsValid() {
		return nil
	}
	details := map[string]any{}
	for field, err := range result.Errors {
		details[field] = err.Error()
	}
	return core.NewError(fmt.Errorf("payload failed schema validation"), core.ErrCodePayloadInvalid, details)
}

var reflector = &jsonschema.Reflector{
	RequiredFromJSONSchemaTags: true,
	AllowAdditionalProperties:  false,
	DoNotReference:             false,
	ExpandedStruct:             true,
}

// Reflect derives a Schema from the zero value of T's JSON-tagged fields.
// Use this for actions whose payload is a native Go struct.
func Reflect[T any]() (Schema, error) {
	var zero T
	reflected := reflector.Reflect(&zero)
	doc, err := json.Marshal(reflected)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reflected schema: %w", err)
	}
	return Compile(doc)
}

// Compile compiles a raw JSON Schema document for direct validation. Use
// this for actions whose payload shape is declared data rather than a Go
// struct (e.g. builder-supplied work item schemas).
func Compile(doc json.RawMessage) (Schema, error) {
	compiler := kjsonschema.NewCompiler()
	compiled, err := compiler.Compile(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return &compiledSchema{doc: doc, compiled: compiled}, nil
}

// Open is the permissive schema used when an action declares no explicit
// payload shape: any JSON object is accepted.
var Open Schema = openSchema{}

type openSchema struct{}

func (openSchema) Validate(map[string]any) error { return nil }
func (openSchema) Document() json.RawMessage      { return json.RawMessage(`{"type":"object"}`) }
