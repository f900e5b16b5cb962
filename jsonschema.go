package socketdispatch

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/kaptinlin/jsonschema"
)

// JSONSchema returns a SchemaSource for a JSON Schema document. The document
// is compiled on first use of the event.
//
// Example:
//
//	socketdispatch.JSONSchema([]byte(`{
//	    "type": "object",
//	    "required": ["settingsName", "value"],
//	    "properties": {
//	        "settingsName": {"enum": ["sounds", "music"]},
//	        "value": {"type": "number", "minimum": 0, "maximum": 100}
//	    }
//	}`))
func JSONSchema(doc []byte) SchemaSource {
	return jsonSchemaSource{doc: doc}
}

type jsonSchemaSource struct {
	doc []byte
}

func (s jsonSchemaSource) Compile() (Schema, error) {
	schema, err := jsonschema.NewCompiler().Compile(s.doc)
	if err != nil {
		return nil, fmt.Errorf("compile json schema: %w", err)
	}
	return &jsonSchema{schema: schema}, nil
}

type jsonSchema struct {
	schema *jsonschema.Schema
}

func (s *jsonSchema) Validate(payload json.RawMessage) []Failure {
	var instance any
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &instance); err != nil {
			return []Failure{{Message: "payload must be valid JSON."}}
		}
	}

	result := s.schema.Validate(instance)
	if result.IsValid() {
		return nil
	}
	failures := collectFailures(result)
	if len(failures) == 0 {
		return []Failure{{Message: "payload does not match the schema."}}
	}
	return failures
}

// collectFailures flattens an evaluation result, most specific first. Keywords
// within one location are sorted so the first failure is stable.
func collectFailures(r *jsonschema.EvaluationResult) []Failure {
	if r == nil {
		return nil
	}

	var failures []Failure
	for _, detail := range r.Details {
		failures = append(failures, collectFailures(detail)...)
	}

	keywords := make([]string, 0, len(r.Errors))
	for k := range r.Errors {
		keywords = append(keywords, k)
	}
	slices.Sort(keywords)
	for _, k := range keywords {
		failures = append(failures, Failure{
			Path:    r.InstanceLocation,
			Message: r.Errors[k].Error(),
		})
	}
	return failures
}
