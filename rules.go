package socketdispatch

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Rule checks one field of a payload. Check is only called when the field
// exists and returns the failure message when the value is not acceptable.
type Rule interface {
	Check(v View, path string) (msg string, ok bool)
}

// FieldRules are the rules of one payload field.
type FieldRules struct {
	Path  string
	Rules []Rule
}

// Field declares the rules of the field at path (a gjson path).
func Field(path string, rules ...Rule) FieldRules {
	return FieldRules{Path: path, Rules: rules}
}

// Fields returns a SchemaSource checking payload fields in declaration order.
// Each field reports at most one failure: the first rule it breaks. A missing
// field fails only when it is Required.
//
// Example:
//
//	socketdispatch.Fields(
//	    socketdispatch.Field("settingsName", socketdispatch.Required(), socketdispatch.OfType(socketdispatch.String), socketdispatch.OneOf("sounds", "music")),
//	    socketdispatch.Field("value", socketdispatch.Required(), socketdispatch.OfType(socketdispatch.Number), socketdispatch.Between(0, 100)),
//	)
func Fields(fields ...FieldRules) SchemaSource {
	return fieldsSource{fields: fields}
}

type fieldsSource struct {
	fields []FieldRules
}

// compilable is implemented by rules with work to do before first use.
type compilable interface {
	compile() (Rule, error)
}

func (s fieldsSource) Compile() (Schema, error) {
	compiled := make([]FieldRules, 0, len(s.fields))
	for _, f := range s.fields {
		rules := make([]Rule, 0, len(f.Rules))
		for _, r := range f.Rules {
			if c, ok := r.(compilable); ok {
				cr, err := c.compile()
				if err != nil {
					return nil, fmt.Errorf("field %s: %w", f.Path, err)
				}
				r = cr
			}
			rules = append(rules, r)
		}
		compiled = append(compiled, FieldRules{Path: f.Path, Rules: rules})
	}
	return fieldSchema{fields: compiled}, nil
}

type fieldSchema struct {
	fields []FieldRules
}

func (s fieldSchema) Validate(payload json.RawMessage) []Failure {
	view, err := Inspect(payload)
	if err != nil {
		return []Failure{{Message: "payload must be valid JSON."}}
	}

	var failures []Failure
	for _, f := range s.fields {
		if !view.HasField(f.Path) {
			if slices.ContainsFunc(f.Rules, isRequired) {
				failures = append(failures, Failure{Path: f.Path, Message: f.Path + " is required."})
			}
			continue
		}
		for _, r := range f.Rules {
			if msg, ok := r.Check(view, f.Path); !ok {
				failures = append(failures, Failure{Path: f.Path, Message: msg})
				break
			}
		}
	}
	return failures
}

func isRequired(r Rule) bool {
	_, ok := r.(required)
	return ok
}

// Required fails when the field is missing.
func Required() Rule { return required{} }

type required struct{}

func (required) Check(View, string) (string, bool) { return "", true }

// OfType fails when the field is not of kind k.
func OfType(k Kind) Rule { return ofType{kind: k} }

type ofType struct {
	kind Kind
}

func (r ofType) Check(v View, path string) (string, bool) {
	if v.Kind(path) == r.kind {
		return "", true
	}
	return fmt.Sprintf("%s must be of type %s.", path, r.kind), false
}

// OneOf fails when the field is not a string equal to one of values.
func OneOf(values ...string) Rule { return oneOf{values: slices.Clone(values)} }

type oneOf struct {
	values []string
}

func (r oneOf) Check(v View, path string) (string, bool) {
	if s, ok := v.GetString(path); ok && slices.Contains(r.values, s) {
		return "", true
	}
	return fmt.Sprintf("%s must be either %s.", path, strings.Join(r.values, " or ")), false
}

// Between fails when the field is not a number in [min, max].
func Between(min, max float64) Rule { return between{min: min, max: max} }

type between struct {
	min, max float64
}

func (r between) Check(v View, path string) (string, bool) {
	if n, ok := v.GetNumber(path); ok && n >= r.min && n <= r.max {
		return "", true
	}
	return fmt.Sprintf("%s must be between %s and %s.", path, formatFloat(r.min), formatFloat(r.max)), false
}

// Length fails when the field is not a string or array with a length in
// [min, max].
func Length(min, max int) Rule { return length{min: min, max: max} }

type length struct {
	min, max int
}

func (r length) Check(v View, path string) (string, bool) {
	if n, ok := v.Len(path); ok && n >= r.min && n <= r.max {
		return "", true
	}
	return fmt.Sprintf("%s must have a length between %d and %d.", path, r.min, r.max), false
}

// Matches fails when the field is not a string matching pattern. The pattern
// is compiled with the schema.
func Matches(pattern string) Rule { return matches{pattern: pattern} }

type matches struct {
	pattern string
	re      *regexp.Regexp
}

func (r matches) compile() (Rule, error) {
	re, err := regexp.Compile(r.pattern)
	if err != nil {
		return nil, fmt.Errorf("compile pattern: %w", err)
	}
	return matches{pattern: r.pattern, re: re}, nil
}

func (r matches) Check(v View, path string) (string, bool) {
	if s, ok := v.GetString(path); ok && r.re != nil && r.re.MatchString(s) {
		return "", true
	}
	return fmt.Sprintf("%s must match %s.", path, r.pattern), false
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
