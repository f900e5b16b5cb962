package socketdispatch

import (
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"
)

// ErrInvalidJSON is returned when a payload is not valid JSON.
var ErrInvalidJSON = errors.New("invalid JSON")

// Kind is the JSON type of a payload field.
type Kind uint8

// Field kinds.
const (
	Missing Kind = iota
	Null
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "boolean"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "missing"
	}
}

// View provides field access over a payload using gjson paths.
type View interface {
	// HasField returns true if the path exists in the payload.
	HasField(path string) bool

	// Kind returns the JSON type at path, or Missing.
	Kind(path string) Kind

	// GetString returns the string value at path, or false if not found
	// or not a string.
	GetString(path string) (string, bool)

	// GetNumber returns the numeric value at path, or false if not found
	// or not a number.
	GetNumber(path string) (float64, bool)

	// Len returns the element count of an array or the rune count of a
	// string at path, or false for any other kind.
	Len(path string) (int, bool)
}

// Inspect returns a View over payload. An empty payload is an empty object.
func Inspect(payload json.RawMessage) (View, error) {
	if len(payload) == 0 {
		return jsonView{raw: []byte("{}")}, nil
	}
	if !gjson.ValidBytes(payload) {
		return nil, ErrInvalidJSON
	}
	return jsonView{raw: payload}, nil
}

type jsonView struct {
	raw []byte
}

func (v jsonView) get(path string) gjson.Result {
	return gjson.GetBytes(v.raw, path)
}

func (v jsonView) HasField(path string) bool {
	return v.get(path).Exists()
}

func (v jsonView) Kind(path string) Kind {
	r := v.get(path)
	if !r.Exists() {
		return Missing
	}
	switch r.Type {
	case gjson.Null:
		return Null
	case gjson.True, gjson.False:
		return Bool
	case gjson.Number:
		return Number
	case gjson.String:
		return String
	}
	if r.IsArray() {
		return Array
	}
	return Object
}

func (v jsonView) GetString(path string) (string, bool) {
	r := v.get(path)
	if !r.Exists() || r.Type != gjson.String {
		return "", false
	}
	return r.String(), true
}

func (v jsonView) GetNumber(path string) (float64, bool) {
	r := v.get(path)
	if !r.Exists() || r.Type != gjson.Number {
		return 0, false
	}
	return r.Float(), true
}

func (v jsonView) Len(path string) (int, bool) {
	r := v.get(path)
	switch {
	case r.Type == gjson.String:
		return len([]rune(r.String())), true
	case r.IsArray():
		return len(r.Array()), true
	}
	return 0, false
}
