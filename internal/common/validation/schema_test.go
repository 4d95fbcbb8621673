package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const classificationSchema = `{
  "type": "object",
  "required": ["intent"],
  "properties": {
    "intent": {"type": "string"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1}
  }
}`

func TestSchema_ValidateJSON(t *testing.T) {
	s := MustCompile(classificationSchema)

	tests := []struct {
		name      string
		doc       string
		valid     bool
		errorCode string
	}{
		{"valid", `{"intent":"root.billing","confidence":0.8}`, true, ""},
		{"missing intent", `{"confidence":0.8}`, false, "REQUIRED"},
		{"confidence out of range", `{"intent":"x","confidence":3}`, false, "NUMBER_LTE"},
		{"wrong type", `{"intent":42}`, false, "INVALID_TYPE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.ValidateJSON([]byte(tt.doc))
			require.NoError(t, err)
			assert.Equal(t, tt.valid, res.Valid)
			if !tt.valid {
				require.NotEmpty(t, res.Errors)
				assert.Equal(t, tt.errorCode, res.Errors[0].Code)
				assert.NotEmpty(t, res.Error())
			}
		})
	}
}

func TestSchema_ValidateJSON_NotJSON(t *testing.T) {
	s := MustCompile(classificationSchema)
	_, err := s.ValidateJSON([]byte("not json"))
	assert.Error(t, err)
}

func TestSchema_ValidateDocument(t *testing.T) {
	s := MustCompile(classificationSchema)
	res, err := s.ValidateDocument(map[string]interface{}{"intent": "root.chitchat"})
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestCompile_InvalidSchema(t *testing.T) {
	_, err := Compile(`{"type": 12}`)
	assert.Error(t, err)
}
