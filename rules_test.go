package socketdispatch

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileFields(t *testing.T, fields ...FieldRules) Schema {
	t.Helper()
	schema, err := Fields(fields...).Compile()
	require.NoError(t, err)
	return schema
}

func TestFields_ChangeVolume(t *testing.T) {
	schema := compileFields(t,
		Field("settingsName", Required(), OfType(String), OneOf("sounds", "music")),
		Field("value", Required(), OfType(Number), Between(0, 100)),
	)

	tests := map[string]struct {
		payload string
		want    []string
	}{
		"valid":                {`{"settingsName": "music", "value": 40}`, nil},
		"bounds are inclusive": {`{"settingsName": "sounds", "value": 100}`, nil},
		"missing everything":   {`{}`, []string{"settingsName is required.", "value is required."}},
		"empty payload":        {``, []string{"settingsName is required.", "value is required."}},
		"wrong type":           {`{"settingsName": 1, "value": 40}`, []string{"settingsName must be of type string."}},
		"not in enum":          {`{"settingsName": "voice", "value": 40}`, []string{"settingsName must be either sounds or music."}},
		"out of range":         {`{"settingsName": "music", "value": 101.5}`, []string{"value must be between 0 and 100."}},
		"number as string":     {`{"settingsName": "music", "value": "40"}`, []string{"value must be of type number."}},
		"invalid json":         {`{"settingsName"`, []string{"payload must be valid JSON."}},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			failures := schema.Validate(json.RawMessage(tt.payload))

			var got []string
			for _, f := range failures {
				got = append(got, f.Message)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFields_OptionalFieldsSkipWhenMissing(t *testing.T) {
	schema := compileFields(t, Field("nickname", Length(2, 8)))

	assert.Empty(t, schema.Validate(json.RawMessage(`{}`)))
	assert.Empty(t, schema.Validate(json.RawMessage(`{"nickname": "neo"}`)))

	failures := schema.Validate(json.RawMessage(`{"nickname": "n"}`))
	require.Len(t, failures, 1)
	assert.Equal(t, "nickname", failures[0].Path)
	assert.Equal(t, "nickname must have a length between 2 and 8.", failures[0].Message)
}

func TestFields_NestedPaths(t *testing.T) {
	schema := compileFields(t, Field("profile.id", Required(), Matches(`^[0-9]+$`)))

	assert.Empty(t, schema.Validate(json.RawMessage(`{"profile": {"id": "123"}}`)))

	failures := schema.Validate(json.RawMessage(`{"profile": {"id": "abc"}}`))
	require.Len(t, failures, 1)
	assert.Equal(t, "profile.id must match ^[0-9]+$.", failures[0].Message)
}

func TestFields_CompileRejectsBadPattern(t *testing.T) {
	_, err := Fields(Field("q", Matches("("))).Compile()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "field q")
}

func TestFields_LengthOfArrays(t *testing.T) {
	schema := compileFields(t, Field("tags", OfType(Array), Length(1, 2)))

	assert.Empty(t, schema.Validate(json.RawMessage(`{"tags": ["a"]}`)))
	assert.Len(t, schema.Validate(json.RawMessage(`{"tags": []}`)), 1)
	assert.Len(t, schema.Validate(json.RawMessage(`{"tags": "a"}`)), 1)
}

func TestSchemaFunc(t *testing.T) {
	src := SchemaFunc(func(payload json.RawMessage) []Failure {
		if len(payload) == 0 {
			return []Failure{{Message: "payload_required"}}
		}
		return nil
	})

	schema, err := src.Compile()
	require.NoError(t, err)
	assert.Equal(t, []Failure{{Message: "payload_required"}}, schema.Validate(nil))
	assert.Empty(t, schema.Validate(json.RawMessage(`{}`)))
}
