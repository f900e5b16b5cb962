package socketdispatch

import "encoding/json"

// Failure is one validation failure. Message is sent to the caller verbatim,
// so schema messages must be caller-safe.
type Failure struct {
	Path    string
	Message string
}

// Schema validates a payload and returns its failures in order, or none.
type Schema interface {
	Validate(payload json.RawMessage) []Failure
}

// SchemaSource is the declared form of a schema. A definition compiles its
// source once, on first use, and reuses the result across connections.
type SchemaSource interface {
	Compile() (Schema, error)
}

// SchemaFunc adapts a function to both Schema and SchemaSource.
type SchemaFunc func(payload json.RawMessage) []Failure

// Validate implements Schema.
func (f SchemaFunc) Validate(payload json.RawMessage) []Failure { return f(payload) }

// Compile implements SchemaSource.
func (f SchemaFunc) Compile() (Schema, error) { return f, nil }
